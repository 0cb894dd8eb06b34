package conn

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the externally visible connection lifecycle phase.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Socket is the minimal surface the manager needs from a websocket
// connection. *websocket.Conn satisfies it; tests substitute fakes.
type Socket interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// Dialer opens the push channel. The default wraps gorilla's dialer.
type Dialer func(ctx context.Context, url string, header http.Header) (Socket, error)

func gorillaDialer(ctx context.Context, url string, header http.Header) (Socket, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

const (
	DefaultBaseDelay        = 1 * time.Second
	DefaultMaxDelay         = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

type Config struct {
	URL    string
	Header http.Header

	// Capped exponential backoff between reconnect attempts.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	HandshakeTimeout time.Duration

	// Handler receives each decodable inbound frame while connected.
	Handler func(frame []byte)

	// OnStateChange, if set, observes every transition (metrics, display).
	OnStateChange func(State)

	// Dial overrides the websocket dialer (tests).
	Dial Dialer
}

// Manager owns the single push connection: connect, dispatch, detect
// closure, reconnect. The socket handle, attempt counter, and retry timer
// are private; the only external controls are Open and Close. Close is
// the only terminal action; otherwise the manager retries forever.
type Manager struct {
	cfg  Config
	dial Dialer

	mu      sync.Mutex
	state   State
	attempt int
	sock    Socket
	timer   *time.Timer
	closed  bool
}

func NewManager(cfg Config) *Manager {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	dial := cfg.Dial
	if dial == nil {
		dial = gorillaDialer
	}
	return &Manager{
		cfg:   cfg,
		dial:  dial,
		state: StateDisconnected,
	}
}

// Open starts the first connection attempt. Non-blocking.
func (m *Manager) Open() {
	go m.connect()
}

// Close tears the manager down: cancels any pending reconnect timer,
// closes the active socket, and stops all further attempts.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	sock := m.sock
	m.sock = nil
	m.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	m.setState(StateDisconnected)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.closed && s != StateDisconnected {
		m.mu.Unlock()
		return
	}
	changed := m.state != s
	m.state = s
	cb := m.cfg.OnStateChange
	m.mu.Unlock()

	if changed && cb != nil {
		cb(s)
	}
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	sock, err := m.dial(ctx, m.cfg.URL, m.cfg.Header)
	cancel()
	if err != nil {
		log.Printf("[ERROR] Conn: dial %s failed: %v", m.cfg.URL, err)
		m.setState(StateErrored)
		m.scheduleRetry()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sock.Close()
		return
	}
	m.sock = sock
	// Reset only on a successful handshake so sustained outages keep
	// backing off instead of oscillating.
	m.attempt = 0
	m.mu.Unlock()

	m.setState(StateConnected)
	m.readLoop(sock)
}

func (m *Manager) readLoop(sock Socket) {
	for {
		_, frame, err := sock.ReadMessage()
		if err != nil {
			m.mu.Lock()
			closed := m.closed
			if m.sock == sock {
				m.sock = nil
			}
			m.mu.Unlock()

			if closed {
				return
			}
			log.Printf("[DEBUG] Conn: channel closed: %v", err)
			m.setState(StateDisconnected)
			m.scheduleRetry()
			return
		}

		// Decode failures are dropped here; they never touch connection
		// state or downstream stores.
		if !json.Valid(frame) {
			log.Printf("[ERROR] Conn: discarding undecodable frame (%d bytes)", len(frame))
			continue
		}
		if m.cfg.Handler != nil {
			m.cfg.Handler(frame)
		}
	}
}

func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	delay := backoff(m.cfg.BaseDelay, m.cfg.MaxDelay, m.attempt)
	m.attempt++
	log.Printf("[DEBUG] Conn: reconnecting in %v (attempt %d)", delay, m.attempt)
	m.timer = time.AfterFunc(delay, m.connect)
}

// backoff returns min(base << attempt, max).
func backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return max
	}
	d := base << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}
