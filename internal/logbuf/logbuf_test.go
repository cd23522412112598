package logbuf

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"
)

func TestWriteTeesToSinks(t *testing.T) {
	var a, b bytes.Buffer
	buf := New(10, &a, &b)
	fmt.Fprintln(buf, "hello")
	if a.String() != "hello\n" || b.String() != "hello\n" {
		t.Fatalf("sinks got %q / %q", a.String(), b.String())
	}
}

func TestTakeRecentDrains(t *testing.T) {
	buf := New(10, &bytes.Buffer{})
	fmt.Fprintln(buf, "one")
	fmt.Fprintln(buf, "two")

	got := buf.TakeRecent()
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("TakeRecent = %q", got)
	}
	if again := buf.TakeRecent(); len(again) != 0 {
		t.Fatalf("second TakeRecent = %q, want empty", again)
	}
}

func TestRingDropsOldestBeyondCapacity(t *testing.T) {
	buf := New(3, &bytes.Buffer{})
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(buf, "line%d\n", i)
	}
	got := buf.TakeRecent()
	if strings.Join(got, ",") != "line3,line4,line5" {
		t.Fatalf("ring contents = %q", got)
	}
}

func TestWorksAsLogOutput(t *testing.T) {
	buf := New(5, &bytes.Buffer{})
	logger := log.New(buf, "", 0)
	logger.Printf("[Session] state: Connected")

	got := buf.TakeRecent()
	if len(got) != 1 || !strings.Contains(got[0], "[Session] state: Connected") {
		t.Fatalf("log line missing from ring: %q", got)
	}
}

func TestZeroCapacityDisablesCapture(t *testing.T) {
	var sink bytes.Buffer
	buf := New(0, &sink)
	fmt.Fprintln(buf, "line")
	if len(buf.TakeRecent()) != 0 {
		t.Fatal("capture should be disabled")
	}
	if sink.String() != "line\n" {
		t.Fatal("tee must still work")
	}
}
