package action

import "testing"

func TestParseKindCaseInsensitive(t *testing.T) {
	cases := map[string]Kind{
		"Shutdown": Shutdown,
		"shutdown": Shutdown,
		"RESTART":  Restart,
		"suspend":  Suspend,
		"Sleep":    Sleep,
		"openexe":  OpenExecutable,
		" Lock ":   Lock,
	}
	for in, want := range cases {
		got, ok := ParseKind(in)
		if !ok {
			t.Errorf("ParseKind(%q) not recognized", in)
			continue
		}
		if got != want {
			t.Errorf("ParseKind(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseKindUnknown(t *testing.T) {
	if _, ok := ParseKind("Hibernate"); ok {
		t.Error("Hibernate should not parse")
	}
	if _, ok := ParseKind(""); ok {
		t.Error("empty string should not parse")
	}
}

func TestKindStringRoundTrip(t *testing.T) {
	for _, k := range []Kind{Shutdown, Restart, Suspend, Sleep, OpenExecutable, Lock} {
		parsed, ok := ParseKind(k.String())
		if !ok || parsed != k {
			t.Errorf("round trip failed for %v (wire %q)", k, k.String())
		}
	}
}

func TestOpenExecutableRequiresPath(t *testing.T) {
	if err := Execute(OpenExecutable, ""); err == nil {
		t.Fatal("OpenExe with empty path must fail")
	}
}
