// Package controller is the process-local brain of the interactive client.
// It decides whether a background service is present, and either drives it
// over IPC or falls back to an in-process session manager. A front-end
// observes it through callbacks; the CLI consumes single snapshots.
package controller

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/mpm-project/mpm/internal/ipc"
	"github.com/mpm-project/mpm/internal/session"
)

// Mode says who owns the MQTT session.
type Mode int

const (
	// ModeLocal runs the session inside this process.
	ModeLocal Mode = iota
	// ModeRemote drives the background service over IPC.
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// Snapshot is one observation of the session, local or remote.
type Snapshot struct {
	Available        bool // false when a remote service stopped answering
	State            session.State
	ReconnectArmed   bool
	UserDisconnected bool
}

// Sender is the IPC client surface the controller needs.
type Sender interface {
	Probe() bool
	Send(cmd string, timeout time.Duration) (string, error)
}

// LocalSession is the in-process fallback surface.
type LocalSession interface {
	Status() session.Status
	Connect()
	Disconnect(userInitiated bool)
	Reload()
}

const (
	pollInterval   = time.Second
	requestTimeout = time.Second
	// maxMisses consecutive failed polls flip a remote service to
	// unavailable. Polling continues so a restarted service is found.
	maxMisses = 3
	// logsEvery spaces out log drains relative to status polls.
	logsEvery = 5
)

// Controller supervises one session, remote or local.
type Controller struct {
	sender   Sender
	local    LocalSession
	interval time.Duration
	onStatus func(Snapshot)
	onLogs   func([]string)

	mu     sync.Mutex
	mode   Mode
	last   Snapshot
	misses int
	ticks  int
	stop   chan struct{}
	done   chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval overrides the status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithStatusFunc registers a callback invoked after every poll.
func WithStatusFunc(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onStatus = fn }
}

// WithLogsFunc registers a callback receiving drained service log lines.
func WithLogsFunc(fn func([]string)) Option {
	return func(c *Controller) { c.onLogs = fn }
}

// New creates a controller. The mode is probed once at construction: a
// reachable service endpoint wins over the in-process fallback.
func New(sender Sender, local LocalSession, opts ...Option) *Controller {
	c := &Controller{
		sender:   sender,
		local:    local,
		interval: pollInterval,
		mode:     ModeLocal,
	}
	for _, opt := range opts {
		opt(c)
	}
	if sender != nil && sender.Probe() {
		c.mode = ModeRemote
	}
	log.Printf("[Controller] session mode: %s", c.mode)
	return c
}

// Mode returns the mode chosen at construction.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Start begins the poll loop. No-op in local mode: local status is
// observed synchronously.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeRemote || c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.pollLoop(c.stop, c.done)
}

// Stop ends the poll loop and waits for it.
func (c *Controller) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

func (c *Controller) pollLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.pollOnce()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *Controller) pollOnce() {
	snap, ok := c.queryRemote()

	c.mu.Lock()
	c.ticks++
	if ok {
		c.misses = 0
		snap.Available = true
		c.last = snap
	} else {
		c.misses++
		if c.misses >= maxMisses && c.last.Available {
			log.Printf("[Controller] service stopped answering")
			c.last = Snapshot{Available: false}
		}
	}
	current := c.last
	drainLogs := ok && c.ticks%logsEvery == 0
	c.mu.Unlock()

	if c.onStatus != nil {
		c.onStatus(current)
	}
	if drainLogs && c.onLogs != nil {
		if reply, err := c.sender.Send(ipc.CmdGetLogs, requestTimeout); err == nil && reply != "" {
			c.onLogs(strings.Split(reply, "\n"))
		}
	}
}

// queryRemote asks for the rich status tuple and falls back to the plain
// state number for services that predate status2.
func (c *Controller) queryRemote() (Snapshot, bool) {
	reply, err := c.sender.Send(ipc.CmdStatus2, requestTimeout)
	if err == nil && reply != ipc.ReplyErr && reply != ipc.ReplyUnauthorized {
		if snap, ok := parseStatus2(reply); ok {
			return snap, true
		}
	}
	if err != nil {
		return Snapshot{}, false
	}

	reply, err = c.sender.Send(ipc.CmdStatus, requestTimeout)
	if err != nil || reply == ipc.ReplyUnauthorized {
		return Snapshot{}, false
	}
	state, convErr := cast.ToIntE(strings.TrimSpace(reply))
	if convErr != nil {
		return Snapshot{}, false
	}
	return Snapshot{State: session.State(state)}, true
}

func parseStatus2(reply string) (Snapshot, bool) {
	parts := strings.Split(strings.TrimSpace(reply), ",")
	if len(parts) != 3 {
		return Snapshot{}, false
	}
	state, err1 := cast.ToIntE(parts[0])
	reconnect, err2 := cast.ToIntE(parts[1])
	userDisc, err3 := cast.ToIntE(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Snapshot{}, false
	}
	return Snapshot{
		State:            session.State(state),
		ReconnectArmed:   reconnect != 0,
		UserDisconnected: userDisc != 0,
	}, true
}

// Status returns the current snapshot. In local mode it is read from the
// in-process manager; in remote mode it is the last poll result, or a live
// query when the poll loop is not running.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	mode := c.mode
	polling := c.stop != nil
	last := c.last
	c.mu.Unlock()

	if mode == ModeLocal {
		st := c.local.Status()
		return Snapshot{
			Available:        true,
			State:            st.State,
			ReconnectArmed:   st.ReconnectArmed,
			UserDisconnected: st.UserDisconnected,
		}
	}
	if polling {
		return last
	}
	snap, ok := c.queryRemote()
	if !ok {
		return Snapshot{Available: false}
	}
	snap.Available = true
	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
	return snap
}

// Toggle flips the connection. The remote settings are reloaded first so
// the service connects with whatever the user just saved.
func (c *Controller) Toggle() error {
	if c.Mode() == ModeLocal {
		if c.local.Status().State == session.Disconnected {
			c.local.Connect()
		} else {
			c.local.Disconnect(true)
		}
		return nil
	}

	if err := c.do(ipc.CmdReloadSettings); err != nil {
		return err
	}
	if c.Status().State == session.Disconnected {
		return c.do(ipc.CmdConnect)
	}
	return c.do(ipc.CmdDisconnect)
}

// Connect requests a connection.
func (c *Controller) Connect() error {
	if c.Mode() == ModeLocal {
		c.local.Connect()
		return nil
	}
	return c.do(ipc.CmdConnect)
}

// Disconnect requests a user-initiated disconnect.
func (c *Controller) Disconnect() error {
	if c.Mode() == ModeLocal {
		c.local.Disconnect(true)
		return nil
	}
	return c.do(ipc.CmdDisconnect)
}

// Reload pushes freshly saved settings into the session.
func (c *Controller) Reload() error {
	if c.Mode() == ModeLocal {
		c.local.Reload()
		return nil
	}
	return c.do(ipc.CmdReloadSettings)
}

func (c *Controller) do(cmd string) error {
	reply, err := c.sender.Send(cmd, requestTimeout)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reply) != ipc.ReplyOK {
		return &ReplyError{Cmd: cmd, Reply: reply}
	}
	return nil
}

// ReplyError reports a non-ok service answer.
type ReplyError struct {
	Cmd   string
	Reply string
}

func (e *ReplyError) Error() string {
	return "service answered " + e.Reply + " to " + e.Cmd
}
