// Package stream maintains the authenticated websocket connection that
// carries job events from the backend.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the link state of the managed connection.
type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
)

// Defaults for Options.
const (
	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

// closeUnauthorized is the application close code the backend uses for a
// rejected token.
const closeUnauthorized = 4001

// TokenSource supplies the credential sent in the auth frame.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource with a fixed value.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// Options configures a Manager.
type Options struct {
	URL    string
	Tokens TokenSource

	// ReconnectDelay is the fixed wait before each reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnects bounds consecutive reconnect attempts; 0 means no limit.
	// The count resets whenever a connection opens.
	MaxReconnects    int
	HandshakeTimeout time.Duration

	// OnFrame receives every text frame in arrival order, on the reader
	// goroutine of the connection.
	OnFrame func([]byte)
	// OnConnect and OnDisconnect report link transitions. They are meant
	// for connectivity indicators.
	OnConnect    func()
	OnDisconnect func(error)

	Logger *slog.Logger
}

// authFrame is the handshake written as soon as the link opens.
type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Manager owns at most one physical websocket connection and re-establishes
// it after involuntary closes. Callers never see the connection itself.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
	logger *slog.Logger

	writeMu sync.Mutex // serialises frame writes; taken before mu

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped on every attempt and every explicit teardown
	conn     *websocket.Conn
	cancel   context.CancelFunc
	timer    *time.Timer
	attempts int
	openedAt time.Time
}

// New creates a Manager. Nothing is dialed until Connect.
func New(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Tokens == nil {
		opts.Tokens = StaticToken("")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger: logger,
		state:  StateClosed,
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Connect opens the connection unless one is already open or being opened.
// A pending reconnect is replaced by an immediate attempt. The dial runs in
// the background; progress is reported through OnConnect and OnDisconnect.
func (m *Manager) Connect() error {
	if m.opts.Tokens.Token() == "" {
		return ErrNoToken
	}

	m.mu.Lock()
	if m.state != StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.stopTimerLocked()
	m.attempts = 0
	gen, ctx := m.beginLocked()
	m.mu.Unlock()

	go m.run(ctx, gen)
	return nil
}

// Disconnect closes the connection and cancels any pending reconnect or
// in-flight dial. No reconnect happens until the next Connect.
func (m *Manager) Disconnect() {
	if prev := m.teardown(); prev != StateClosed {
		m.logger.Info("stream disconnected")
		m.emitDisconnect(nil)
	}
}

// Reject tears the connection down after the backend refused the auth
// handshake. Like Disconnect it prevents reconnection; OnDisconnect receives
// an error wrapping ErrAuthRejected.
func (m *Manager) Reject(reason error) {
	prev := m.teardown()
	err := fmt.Errorf("%w: %v", ErrAuthRejected, reason)
	m.logger.Warn("stream authentication rejected", "reason", reason)
	if prev != StateClosed {
		m.emitDisconnect(err)
	}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OpenedAt returns when the link last opened; zero if it never did.
func (m *Manager) OpenedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openedAt
}

// Send writes v as a JSON text frame on the open connection.
func (m *Manager) Send(v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if conn == nil || state != StateOpen {
		return ErrNotConnected
	}
	return writeJSON(conn, v)
}

// =============================================================================
// CONNECTION LOOP
// =============================================================================

// beginLocked starts a new attempt. Caller must hold mu.
func (m *Manager) beginLocked() (uint64, context.Context) {
	m.gen++
	m.state = StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	return m.gen, ctx
}

// run dials, authenticates and reads until the connection drops.
func (m *Manager) run(ctx context.Context, gen uint64) {
	conn, resp, err := m.dialer.DialContext(ctx, m.opts.URL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			err = fmt.Errorf("%w: handshake status %d", ErrAuthRejected, resp.StatusCode)
		}
		m.handleClose(gen, fmt.Errorf("dial: %w", err), false)
		return
	}

	m.writeMu.Lock()
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.writeMu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.openedAt = time.Now()
	m.attempts = 0
	if m.cancel != nil {
		m.cancel() // the dial context is not used once the handshake is done
		m.cancel = nil
	}
	m.mu.Unlock()
	err = writeJSON(conn, authFrame{Type: "auth", Token: m.opts.Tokens.Token()})
	m.writeMu.Unlock()

	if err != nil {
		m.handleClose(gen, fmt.Errorf("send auth: %w", err), true)
		return
	}

	m.logger.Info("stream connected", "url", m.opts.URL)
	if m.opts.OnConnect != nil {
		m.opts.OnConnect()
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err, true)
			return
		}
		if mt != websocket.TextMessage {
			m.logger.Debug("dropping non-text frame", "type", mt)
			continue
		}
		if m.opts.OnFrame != nil {
			m.opts.OnFrame(data)
		}
	}
}

// handleClose reacts to the end of attempt gen. It does nothing if the
// attempt was superseded by Disconnect, Reject or a newer Connect.
func (m *Manager) handleClose(gen uint64, cause error, wasOpen bool) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = StateClosed

	var signal error
	switch {
	case isRejection(cause):
		m.gen++
		signal = rejection(cause)
		m.logger.Warn("stream authentication rejected", "error", cause)
	case m.opts.MaxReconnects > 0 && m.attempts >= m.opts.MaxReconnects:
		m.gen++
		signal = fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, m.attempts, cause)
		m.logger.Error("stream reconnect attempts exhausted", "attempts", m.attempts, "error", cause)
	default:
		m.attempts++
		m.timer = time.AfterFunc(m.opts.ReconnectDelay, func() { m.reconnect(gen) })
		m.logger.Warn("stream closed, reconnecting",
			"error", cause,
			"delay", m.opts.ReconnectDelay,
			"attempt", m.attempts)
		if wasOpen {
			signal = cause
		}
	}
	m.mu.Unlock()

	if signal != nil {
		m.emitDisconnect(signal)
	}
}

// reconnect is the scheduled retry for the attempt that ended as gen.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateClosed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	next, ctx := m.beginLocked()
	m.mu.Unlock()

	m.run(ctx, next)
}

// teardown invalidates the current attempt and closes the link. It returns
// the state before teardown.
func (m *Manager) teardown() State {
	m.mu.Lock()
	prev := m.state
	m.gen++
	m.stopTimerLocked()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = StateClosed
	m.attempts = 0
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		conn.Close()
	}
	return prev
}

// stopTimerLocked cancels a scheduled reconnect. Caller must hold mu.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) emitDisconnect(err error) {
	if m.opts.OnDisconnect != nil {
		m.opts.OnDisconnect(err)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// isRejection reports whether the backend refused the credential, either
// during the HTTP upgrade or with a policy close code.
func isRejection(err error) bool {
	return errors.Is(err, ErrAuthRejected) ||
		websocket.IsCloseError(err, websocket.ClosePolicyViolation, closeUnauthorized)
}

func rejection(err error) error {
	if errors.Is(err, ErrAuthRejected) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAuthRejected, err)
}
