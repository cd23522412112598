package daemon

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpm-project/mpm/internal/config"
	"github.com/mpm-project/mpm/internal/ipc"
	"github.com/mpm-project/mpm/internal/ipcauth"
	"github.com/mpm-project/mpm/internal/logbuf"
	"github.com/mpm-project/mpm/internal/runtime"
)

func testPaths(t *testing.T) *config.Paths {
	t.Helper()
	dir := t.TempDir()
	return &config.Paths{
		Dir:          dir,
		SettingsFile: filepath.Join(dir, "settings.yaml"),
		TokenFile:    filepath.Join(dir, "ipc_token"),
		KeyFile:      filepath.Join(dir, ".secret.key"),
		PIDFile:      filepath.Join(dir, "mpmd.pid"),
		Endpoint:     filepath.Join(dir, "mpmd.sock"),
	}
}

func startDaemon(t *testing.T, paths *config.Paths) *Daemon {
	t.Helper()
	d, err := New(Options{
		Paths: paths,
		Logs:  logbuf.New(logbuf.DefaultMaxLines, &bytes.Buffer{}),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		d.Shutdown(shutdownCtx)
		cancel()
	})
	return d
}

func controlClient(t *testing.T, paths *config.Paths) *ipc.Client {
	t.Helper()
	token, err := ipcauth.Load(paths.TokenFile)
	if err != nil || token == "" {
		t.Fatalf("token not provisioned: %q, %v", token, err)
	}
	return ipc.NewClient(paths.Endpoint, token)
}

func TestDaemonServesStatusOverIPC(t *testing.T) {
	paths := testPaths(t)
	startDaemon(t, paths)

	client := controlClient(t, paths)
	reply, err := client.Send(ipc.CmdStatus, 2*time.Second)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if reply != "0" {
		t.Fatalf("fresh daemon status = %q, want \"0\"", reply)
	}
}

func TestDaemonWritesAndClearsPIDFile(t *testing.T) {
	paths := testPaths(t)
	d := startDaemon(t, paths)

	pid, err := runtime.ReadPIDFile(paths.PIDFile)
	if err != nil {
		t.Fatalf("ReadPIDFile failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid file holds %d, want %d", pid, os.Getpid())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := os.Stat(paths.PIDFile); !os.IsNotExist(err) {
		t.Fatal("pid file survived shutdown")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	paths := testPaths(t)
	startDaemon(t, paths)

	second, err := New(Options{
		Paths: paths,
		Logs:  logbuf.New(logbuf.DefaultMaxLines, &bytes.Buffer{}),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = second.Start(context.Background())
	if err == nil {
		second.Shutdown(context.Background())
		t.Fatal("second instance started over a live pid file")
	}
}

func TestDaemonShutdownServiceCommand(t *testing.T) {
	paths := testPaths(t)
	d := startDaemon(t, paths)

	client := controlClient(t, paths)
	if err := client.Do(ipc.CmdShutdownService, 2*time.Second); err != nil {
		t.Fatalf("shutdown-service failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle did not observe shutdown-service")
	}
}

func TestDaemonReloadsOnSettingsFileChange(t *testing.T) {
	paths := testPaths(t)
	d := startDaemon(t, paths)

	// Persist settings with auto-connect off, then hand-edit the file; the
	// watcher must pick the change up and refresh the manager's snapshot.
	cfg, err := d.Store().Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.CustomID = "bench"
	if err := d.Store().Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		fresh, err := d.Store().Load()
		if err == nil && fresh.CustomID == "bench" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("settings change never became visible")
}
