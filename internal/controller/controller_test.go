package controller

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mpm-project/mpm/internal/ipc"
	"github.com/mpm-project/mpm/internal/session"
)

type fakeSender struct {
	mu      sync.Mutex
	probe   bool
	replies map[string]string
	fail    bool
	sent    []string
}

func (f *fakeSender) Probe() bool { return f.probe }

func (f *fakeSender) Send(cmd string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	if f.fail {
		return "", errors.New("service unreachable: connection refused")
	}
	if reply, ok := f.replies[cmd]; ok {
		return reply, nil
	}
	return ipc.ReplyErr, nil
}

func (f *fakeSender) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeSender) setReply(cmd, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replies == nil {
		f.replies = map[string]string{}
	}
	f.replies[cmd] = reply
}

func (f *fakeSender) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeLocal struct {
	mu          sync.Mutex
	status      session.Status
	connects    int
	disconnects []bool
	reloads     int
}

func (f *fakeLocal) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeLocal) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeLocal) Disconnect(userInitiated bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, userInitiated)
}

func (f *fakeLocal) Reload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
}

func TestModeProbing(t *testing.T) {
	remote := New(&fakeSender{probe: true}, &fakeLocal{})
	if remote.Mode() != ModeRemote {
		t.Fatal("reachable endpoint should select remote mode")
	}
	local := New(&fakeSender{probe: false}, &fakeLocal{})
	if local.Mode() != ModeLocal {
		t.Fatal("unreachable endpoint should select local mode")
	}
}

func TestRemoteStatusParsesTuple(t *testing.T) {
	sender := &fakeSender{probe: true}
	sender.setReply(ipc.CmdStatus2, "0,1,0")
	c := New(sender, nil)

	snap := c.Status()
	if !snap.Available || snap.State != session.Disconnected || !snap.ReconnectArmed || snap.UserDisconnected {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestRemoteStatusFallsBackToPlainState(t *testing.T) {
	// A service that predates status2 answers "err"; the controller must
	// retry with the plain status command.
	sender := &fakeSender{probe: true}
	sender.setReply(ipc.CmdStatus, "2")
	c := New(sender, nil)

	snap := c.Status()
	if !snap.Available || snap.State != session.Connected {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestPollMarksUnavailableAfterConsecutiveMisses(t *testing.T) {
	sender := &fakeSender{probe: true}
	sender.setReply(ipc.CmdStatus2, "2,0,0")

	var mu sync.Mutex
	var seen []Snapshot
	c := New(sender, nil,
		WithPollInterval(10*time.Millisecond),
		WithStatusFunc(func(s Snapshot) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}),
	)
	c.Start()
	defer c.Stop()

	waitSnapshot(t, &mu, &seen, func(s Snapshot) bool {
		return s.Available && s.State == session.Connected
	}, "available snapshot")

	sender.setFail(true)
	waitSnapshot(t, &mu, &seen, func(s Snapshot) bool {
		return !s.Available
	}, "unavailable snapshot")

	// A single hiccup must not flip availability: recovery resets misses.
	sender.setFail(false)
	waitSnapshot(t, &mu, &seen, func(s Snapshot) bool {
		return s.Available && s.State == session.Connected
	}, "recovered snapshot")
}

func waitSnapshot(t *testing.T, mu *sync.Mutex, seen *[]Snapshot, cond func(Snapshot) bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		for _, s := range *seen {
			if cond(s) {
				mu.Unlock()
				return
			}
		}
		*seen = (*seen)[:0]
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never observed %s", what)
}

func TestPollDrainsLogsPeriodically(t *testing.T) {
	sender := &fakeSender{probe: true}
	sender.setReply(ipc.CmdStatus2, "2,0,0")
	sender.setReply(ipc.CmdGetLogs, "line one\nline two")

	logs := make(chan []string, 8)
	c := New(sender, nil,
		WithPollInterval(5*time.Millisecond),
		WithLogsFunc(func(lines []string) { logs <- lines }),
	)
	c.Start()
	defer c.Stop()

	select {
	case lines := <-logs:
		if len(lines) != 2 || lines[0] != "line one" {
			t.Fatalf("unexpected log lines: %q", lines)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("logs never drained")
	}
}

func TestToggleRemoteReloadsThenActs(t *testing.T) {
	sender := &fakeSender{probe: true}
	sender.setReply(ipc.CmdStatus2, "0,0,0")
	sender.setReply(ipc.CmdReloadSettings, ipc.ReplyOK)
	sender.setReply(ipc.CmdConnect, ipc.ReplyOK)
	sender.setReply(ipc.CmdDisconnect, ipc.ReplyOK)
	c := New(sender, nil)

	if err := c.Toggle(); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	cmds := sender.commands()
	if !containsInOrder(cmds, ipc.CmdReloadSettings, ipc.CmdConnect) {
		t.Fatalf("disconnected toggle sent %v", cmds)
	}

	sender.setReply(ipc.CmdStatus2, "2,0,0")
	if err := c.Toggle(); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	cmds = sender.commands()
	if !containsInOrder(cmds, ipc.CmdReloadSettings, ipc.CmdDisconnect) {
		t.Fatalf("connected toggle sent %v", cmds)
	}
}

func containsInOrder(cmds []string, want ...string) bool {
	i := 0
	for _, cmd := range cmds {
		if i < len(want) && cmd == want[i] {
			i++
		}
	}
	return i == len(want)
}

func TestLocalModeDrivesManagerDirectly(t *testing.T) {
	local := &fakeLocal{}
	c := New(&fakeSender{probe: false}, local)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	local.mu.Lock()
	defer local.mu.Unlock()
	if local.connects != 1 || local.reloads != 1 {
		t.Fatalf("unexpected local calls: %+v", local)
	}
	if len(local.disconnects) != 1 || !local.disconnects[0] {
		t.Fatal("local disconnect must be user-initiated")
	}
}

func TestLocalToggle(t *testing.T) {
	local := &fakeLocal{}
	c := New(&fakeSender{probe: false}, local)

	if err := c.Toggle(); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	local.mu.Lock()
	local.status.State = session.Connected
	local.mu.Unlock()
	if err := c.Toggle(); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	local.mu.Lock()
	defer local.mu.Unlock()
	if local.connects != 1 || len(local.disconnects) != 1 {
		t.Fatalf("unexpected toggle effects: %+v", local)
	}
}
