// Package daemon assembles the background service: the shared settings
// store, the secret store, the MQTT session manager, and the IPC control
// server, hosted by the runtime.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mpm-project/mpm/internal/config"
	"github.com/mpm-project/mpm/internal/ipc"
	"github.com/mpm-project/mpm/internal/ipcauth"
	"github.com/mpm-project/mpm/internal/logbuf"
	"github.com/mpm-project/mpm/internal/procutil"
	"github.com/mpm-project/mpm/internal/runtime"
	"github.com/mpm-project/mpm/internal/secret"
	"github.com/mpm-project/mpm/internal/session"
	"github.com/mpm-project/mpm/internal/settings"
	"github.com/mpm-project/mpm/internal/version"
)

// settingsPollInterval is how often the settings file is checked for
// external edits.
const settingsPollInterval = 2 * time.Second

// Options groups dependencies required to construct a Daemon.
type Options struct {
	// Paths overrides the shared path layout, mainly for tests.
	Paths *config.Paths
	// Logs receives all daemon output; when nil a fresh buffer is created.
	Logs *logbuf.Buffer
	// ClientIDPrefix overrides the MQTT client identifier prefix.
	ClientIDPrefix string
}

// Daemon represents the background service process.
type Daemon struct {
	paths     config.Paths
	logs      *logbuf.Buffer
	store     *settings.Store
	manager   *session.Manager
	host      *runtime.ServiceHost
	lifecycle *runtime.Lifecycle

	stopWatcher func()
}

// New creates a daemon bound to the shared settings directory.
func New(opts Options) (*Daemon, error) {
	var paths config.Paths
	if opts.Paths != nil {
		paths = *opts.Paths
	} else {
		p, err := config.Shared()
		if err != nil {
			return nil, fmt.Errorf("daemon: resolve shared directory: %w", err)
		}
		paths = p
	}

	logs := opts.Logs
	if logs == nil {
		logs = logbuf.New(logbuf.DefaultMaxLines)
	}
	log.SetOutput(logs)

	secrets, err := secret.Open(paths.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("daemon: open secret store: %w", err)
	}
	store := settings.NewStore(paths.SettingsFile, secrets)

	prefix := opts.ClientIDPrefix
	if prefix == "" {
		prefix = "MPMService"
	}
	manager := session.NewManager(store, session.WithClientIDPrefix(prefix))

	d := &Daemon{
		paths:     paths,
		logs:      logs,
		store:     store,
		manager:   manager,
		host:      runtime.NewServiceHost(),
		lifecycle: runtime.NewLifecycle(),
	}

	token, err := ipcauth.LoadOrCreate(paths.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("daemon: prepare ipc token: %w", err)
	}
	server := ipc.NewServer(paths.Endpoint, token, manager, logs, d.lifecycle.Shutdown)

	if err := d.host.Register("mqtt_session", func(ctx context.Context) (runtime.Service, error) {
		return &sessionService{manager: manager, store: store}, nil
	}); err != nil {
		return nil, err
	}
	if err := d.host.Register("ipc_server", func(ctx context.Context) (runtime.Service, error) {
		return server, nil
	}); err != nil {
		return nil, err
	}

	return d, nil
}

// Start writes the pid file and brings up the runtime services.
func (d *Daemon) Start(ctx context.Context) error {
	if other := runningPID(d.paths.PIDFile); other != 0 {
		return fmt.Errorf("daemon: already running with pid %d", other)
	}
	if err := runtime.WritePIDFile(d.paths.PIDFile, os.Getpid()); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}
	config.RelaxFile(d.paths.PIDFile)

	log.Printf("[Daemon] %s starting, data dir %s", version.String(), d.paths.Dir)

	if err := d.host.Start(ctx); err != nil {
		runtime.RemovePIDFile(d.paths.PIDFile)
		return err
	}

	d.stopWatcher = runtime.WatchFile(ctx, d.paths.SettingsFile, settingsPollInterval, func() {
		log.Printf("[Daemon] settings file changed on disk")
		d.manager.Reload()
	})

	return nil
}

// Wait blocks until a shutdown is requested, via IPC or signal.
func (d *Daemon) Wait() {
	<-d.lifecycle.Done()
}

// RequestShutdown unblocks Wait. Safe to call from signal handlers and
// from the IPC path concurrently.
func (d *Daemon) RequestShutdown() {
	d.lifecycle.Shutdown()
}

// Shutdown stops the runtime services and removes the pid file. Safe to
// call more than once.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.lifecycle.Shutdown()
	if d.stopWatcher != nil {
		d.stopWatcher()
		d.stopWatcher = nil
	}
	err := d.host.Stop(ctx)
	runtime.RemovePIDFile(d.paths.PIDFile)
	log.Printf("[Daemon] stopped")
	return err
}

// Manager exposes the session manager to the in-process fallback mode.
func (d *Daemon) Manager() *session.Manager {
	return d.manager
}

// Store exposes the settings store.
func (d *Daemon) Store() *settings.Store {
	return d.store
}

// IsRunning checks whether a daemon holds the shared pid file and its
// process is alive. A stale pid file is cleaned up.
func IsRunning() bool {
	paths, err := config.Shared()
	if err != nil {
		return false
	}
	return runningPID(paths.PIDFile) != 0
}

func runningPID(pidFile string) int {
	pid, err := runtime.ReadPIDFile(pidFile)
	if err != nil || pid == 0 {
		return 0
	}
	if !procutil.IsProcessAlive(pid) {
		runtime.RemovePIDFile(pidFile)
		return 0
	}
	return pid
}

// sessionService adapts the session manager to the runtime service
// contract. Start honors the auto-connect flag; Shutdown disconnects
// cleanly so the retained "offline" announcement is published.
type sessionService struct {
	manager *session.Manager
	store   *settings.Store
}

func (s *sessionService) Start(ctx context.Context) error {
	cfg, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	s.manager.Reload()
	if cfg.AutoConnect {
		s.manager.Connect()
	}
	return nil
}

func (s *sessionService) Shutdown(ctx context.Context) error {
	s.manager.Disconnect(false)
	return nil
}
