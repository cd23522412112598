// Package session owns one MQTT broker connection and its lifecycle: the
// connect/disconnect state machine, the reconnect policy, the last-will
// announcement, and the dispatch of inbound messages to the action
// executor. One instance runs inside the background service; the
// interactive process runs its own when no service is present.
package session

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/mpm-project/mpm/internal/action"
	"github.com/mpm-project/mpm/internal/settings"
)

// topicRoot is the fixed namespace all topics live under:
// mqttpowermanager/{customId}/{actionName} for commands and
// mqttpowermanager/{customId}/health for availability.
const topicRoot = "mqttpowermanager"

// State is the connection state of one session manager.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// Status is the observable snapshot backing the IPC status commands.
type Status struct {
	State            State
	ReconnectArmed   bool
	UserDisconnected bool
}

// Source supplies fresh settings snapshots. The settings file is the source
// of truth; the manager's copy is a cache refreshed by Reload.
type Source interface {
	Load() (*settings.Settings, error)
}

// Executor performs one machine action. Swappable for tests; the default is
// action.Execute.
type Executor func(kind action.Kind, exePath string) error

// Manager drives one MQTT client connection.
type Manager struct {
	source    Source
	execute   Executor
	newClient func(*mqtt.ClientOptions) mqtt.Client
	idPrefix  string

	mu             sync.Mutex
	cfg            *settings.Settings
	client         mqtt.Client
	state          State
	userDisconnect bool
	reconnectArmed bool
	reconnectTimer *time.Timer
	timeoutTimer   *time.Timer
	attempt        uint64 // invalidates callbacks from superseded connect attempts
}

// Option configures a Manager.
type Option func(*Manager)

// WithExecutor replaces the action executor.
func WithExecutor(exec Executor) Option {
	return func(m *Manager) { m.execute = exec }
}

// WithClientFactory replaces the MQTT client constructor.
func WithClientFactory(factory func(*mqtt.ClientOptions) mqtt.Client) Option {
	return func(m *Manager) { m.newClient = factory }
}

// WithClientIDPrefix sets the MQTT client identifier prefix. A random
// suffix is appended per connect attempt so a GUI and a service instance
// never collide on the broker.
func WithClientIDPrefix(prefix string) Option {
	return func(m *Manager) { m.idPrefix = prefix }
}

// NewManager creates a session manager reading configuration from source.
func NewManager(source Source, opts ...Option) *Manager {
	m := &Manager{
		source:    source,
		execute:   action.Execute,
		newClient: func(o *mqtt.ClientOptions) mqtt.Client { return mqtt.NewClient(o) },
		idPrefix:  "MPM",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect requests a connection. Explicit requests clear a previous
// user-initiated disconnect. No-op unless currently Disconnected.
func (m *Manager) Connect() {
	m.connect(true)
}

func (m *Manager) connect(explicit bool) {
	m.mu.Lock()
	if m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	if explicit {
		m.userDisconnect = false
	} else if m.userDisconnect {
		m.mu.Unlock()
		return
	}
	if m.cfg == nil {
		if err := m.loadConfigLocked(); err != nil {
			m.mu.Unlock()
			log.Printf("[Session] cannot connect, settings unavailable: %v", err)
			return
		}
	}
	cfg := m.cfg
	m.stopReconnectLocked()

	m.attempt++
	attempt := m.attempt
	client := m.newClient(m.buildOptions(cfg, attempt))
	m.client = client
	m.setStateLocked(Connecting)
	if cfg.TimeoutSec > 0 {
		m.timeoutTimer = time.AfterFunc(time.Duration(cfg.TimeoutSec)*time.Second, func() {
			m.onConnectTimeout(attempt)
		})
	}
	m.mu.Unlock()

	log.Printf("[Session] connecting to %s:%d", cfg.Host, cfg.Port)
	go func() {
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			m.handshakeFailed(attempt, err)
		}
		// Success is driven by the OnConnect handler.
	}()
}

// Disconnect tears the connection down. A user-initiated disconnect
// suppresses the auto-reconnect loop until the next explicit Connect; an
// internal one (settings change, connect timeout) leaves it eligible.
// While still connected, a retained "offline" is published best-effort so
// subscribers see the session leave even though the will won't fire on a
// clean disconnect.
func (m *Manager) Disconnect(userInitiated bool) {
	m.mu.Lock()
	if userInitiated {
		m.userDisconnect = true
	}
	if m.state == Disconnected {
		m.stopReconnectIfSuppressedLocked()
		m.mu.Unlock()
		return
	}
	wasConnected := m.state == Connected
	client := m.client
	cfg := m.cfg
	m.attempt++ // orphan any in-flight handshake or timer callback
	m.stopTimeoutLocked()
	m.toDisconnectedLocked()
	m.mu.Unlock()

	if client != nil {
		if wasConnected {
			if topic := availabilityTopic(cfg.CustomID); topic != "" {
				client.Publish(topic, 0, true, "offline").WaitTimeout(time.Second)
			}
		}
		client.Disconnect(250)
	}
}

// Reload re-reads the settings store. When broker parameters changed while
// connected, the session is force-disconnected (not user-initiated) so the
// reconnect/auto-connect logic re-establishes with the new parameters.
func (m *Manager) Reload() {
	fresh, err := m.source.Load()
	if err != nil {
		log.Printf("[Session] settings reload failed: %v", err)
		return
	}

	m.mu.Lock()
	old := m.cfg
	m.cfg = fresh
	state := m.state
	userDisc := m.userDisconnect
	m.mu.Unlock()
	log.Printf("[Session] settings reloaded")

	changed := old != nil && (old.Host != fresh.Host || old.Port != fresh.Port ||
		old.Username != fresh.Username || old.Password != fresh.Password)
	if changed && state == Connected {
		log.Printf("[Session] connection parameters changed; reconnecting")
		m.Disconnect(false)
	}
	if fresh.AutoConnect && m.State() == Disconnected {
		m.Connect()
		return
	}
	if fresh.AutoReconnect && m.State() == Disconnected && !userDisc {
		m.mu.Lock()
		m.armReconnectLocked()
		m.mu.Unlock()
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the snapshot served over IPC.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:            m.state,
		ReconnectArmed:   m.reconnectArmed,
		UserDisconnected: m.userDisconnect,
	}
}

func (m *Manager) loadConfigLocked() error {
	cfg, err := m.source.Load()
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

// buildOptions translates a settings snapshot into client options for one
// connect attempt. The will must be (re)configured here, immediately before
// each attempt, so an ungraceful loss publishes "offline" to the same
// health topic the manager uses for explicit announcements.
func (m *Manager) buildOptions(cfg *settings.Settings, attempt uint64) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("%s-%s", m.idPrefix, uuid.NewString()[:8]))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(false) // the manager owns the reconnect policy
	opts.SetConnectRetry(false)
	if topic := availabilityTopic(cfg.CustomID); topic != "" {
		opts.SetWill(topic, "offline", 0, true)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.onConnected(attempt, c)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.onConnectionLost(attempt, err)
	})
	return opts
}

func (m *Manager) onConnected(attempt uint64, c mqtt.Client) {
	m.mu.Lock()
	if attempt != m.attempt || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.stopTimeoutLocked()
	m.stopReconnectLocked()
	m.userDisconnect = false
	m.setStateLocked(Connected)
	cfg := m.cfg
	m.mu.Unlock()

	topic := subscribeTopic(cfg.CustomID)
	if topic == "" {
		log.Printf("[Session] customId is empty; no subscription")
	} else if token := c.Subscribe(topic, 0, m.onMessage); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[Session] subscribe %s failed: %v", topic, token.Error())
	} else {
		log.Printf("[Session] subscribed to %s", topic)
	}
	if avail := availabilityTopic(cfg.CustomID); avail != "" {
		c.Publish(avail, 0, true, "online")
	}
}

func (m *Manager) onConnectionLost(attempt uint64, err error) {
	m.mu.Lock()
	if attempt != m.attempt || m.state != Connected {
		m.mu.Unlock()
		return
	}
	m.toDisconnectedLocked()
	m.mu.Unlock()
	log.Printf("[Session] connection lost: %v", err)
}

func (m *Manager) handshakeFailed(attempt uint64, err error) {
	m.mu.Lock()
	if attempt != m.attempt || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.stopTimeoutLocked()
	m.toDisconnectedLocked()
	m.mu.Unlock()
	log.Printf("[Session] connect failed: %v", err)
}

func (m *Manager) onConnectTimeout(attempt uint64) {
	m.mu.Lock()
	if attempt != m.attempt || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	client := m.client
	m.attempt++ // the aborted handshake must not resurrect the session
	m.toDisconnectedLocked()
	m.mu.Unlock()

	log.Printf("[Session] connect timed out; aborting")
	if client != nil {
		client.Disconnect(0)
	}
}

// onReconnectTimer fires the single-shot reconnect timer. Conditions are
// rechecked under the lock: the timer may have raced a state change.
func (m *Manager) onReconnectTimer() {
	m.mu.Lock()
	m.reconnectArmed = false
	if m.state != Disconnected || m.userDisconnect || m.cfg == nil || !m.cfg.AutoReconnect {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	log.Printf("[Session] reconnecting...")
	m.connect(false)
}

// onMessage handles one inbound publication. The health topic is filtered
// before anything else; print-only short-circuits before dispatch; matching
// is case-insensitive on both the action name and the payload, first match
// in list order wins.
func (m *Manager) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	if strings.HasSuffix(topic, "/health") {
		return
	}
	payload := string(msg.Payload())
	log.Printf("[Session] received %q on %s", payload, topic)

	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()
	if cfg == nil {
		return
	}

	if cfg.PrintOnly {
		log.Printf("[Session] print-only mode enabled; ignoring commands")
		return
	}

	parts := strings.Split(topic, "/")
	actionName := ""
	if len(parts) >= 3 {
		actionName = parts[len(parts)-1]
	}

	for _, a := range cfg.Actions {
		if !strings.EqualFold(a.Name, actionName) || !strings.EqualFold(a.Message, payload) {
			continue
		}
		log.Printf("[Session] executing action name=%s type=%s exePath=%s", a.Name, a.Type, a.ExePath)
		if err := m.execute(a.Type, a.ExePath); err != nil {
			log.Printf("[Session] action %s failed: %v", a.Name, err)
		}
		return
	}
	log.Printf("[Session] message ignored: %q on %s", payload, topic)
}

// toDisconnectedLocked records the transition into Disconnected and rearms
// the reconnect timer when eligible.
func (m *Manager) toDisconnectedLocked() {
	m.setStateLocked(Disconnected)
	m.armReconnectLocked()
}

func (m *Manager) armReconnectLocked() {
	m.stopReconnectLocked()
	if m.cfg == nil || !m.cfg.AutoReconnect || m.userDisconnect {
		return
	}
	interval := m.cfg.ReconnectSec
	if interval < 1 {
		interval = 1
	}
	m.reconnectArmed = true
	m.reconnectTimer = time.AfterFunc(time.Duration(interval)*time.Second, m.onReconnectTimer)
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectArmed = false
}

// stopReconnectIfSuppressedLocked cancels a pending reconnect after a
// user-initiated disconnect request arrives while already disconnected.
func (m *Manager) stopReconnectIfSuppressedLocked() {
	if m.userDisconnect {
		m.stopReconnectLocked()
	}
}

func (m *Manager) stopTimeoutLocked() {
	if m.timeoutTimer != nil {
		m.timeoutTimer.Stop()
		m.timeoutTimer = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	log.Printf("[Session] state: %s", s)
}

func subscribeTopic(customID string) string {
	if customID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/+", topicRoot, customID)
}

func availabilityTopic(customID string) string {
	if customID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/health", topicRoot, customID)
}
