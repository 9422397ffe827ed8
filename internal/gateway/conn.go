package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/config"
	"github.com/spec-kit/support-gateway/internal/observability"
)

// ConnState describes the manager's connection lifecycle phase.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

const handshakeTimeout = 45 * time.Second

// Manager owns the websocket connection to the gateway. It runs the connect,
// identify/resume, read and reconnect cycle until its context is cancelled.
type Manager struct {
	cfg       config.GatewayConfig
	session   *Session
	router    *Router
	heartbeat *Heartbeat
	metrics   *observability.Metrics
	logger    *zap.Logger
	dialer    *websocket.Dialer

	mu           sync.Mutex
	conn         *websocket.Conn
	state        ConnState
	altAuthTried bool
}

// NewManager wires the connection manager. The heartbeat controller is created
// internally so its send and force-close paths share the write mutex.
func NewManager(cfg config.GatewayConfig, session *Session, router *Router, metrics *observability.Metrics, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		session: session,
		router:  router,
		metrics: metrics,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		state:   StateDisconnected,
	}
	m.heartbeat = NewHeartbeat(session, m.sendHeartbeat, m.forceClose, logger)
	return m
}

// State returns the current connection phase.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run drives the reconnect loop until ctx is cancelled. Every exit path stops
// the heartbeat schedule and closes the socket.
func (m *Manager) Run(ctx context.Context) error {
	defer func() {
		m.heartbeat.Stop()
		m.closeConn()
		m.setState(StateDisconnected)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay, err := m.runOnce(ctx)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			m.logger.Warn("gateway connection ended", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runOnce performs one connect-and-read cycle and returns the delay before
// the next attempt.
func (m *Manager) runOnce(ctx context.Context) (time.Duration, error) {
	m.setState(StateConnecting)

	url := m.cfg.URL
	if m.session.CanResume() {
		if resumeURL := m.session.ResumeURL(); resumeURL != "" {
			url = resumeURL
		}
	}

	conn, _, err := m.dialer.DialContext(ctx, url, nil)
	if err != nil {
		m.setState(StateDisconnected)
		return m.cfg.FreshDelay(), err
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.mu.Unlock()

	m.router.ResetConnectionState()
	m.metrics.RecordReconnect()
	m.logger.Info("gateway connected",
		zap.String("url", url),
		zap.String("auth_mode", string(m.session.AuthMode())))

	delay := m.readLoop(ctx)

	m.heartbeat.Stop()
	m.closeConn()
	m.setState(StateDisconnected)
	return delay, nil
}

// readLoop consumes frames until the socket errors out, then classifies the
// failure into a reconnect delay.
func (m *Manager) readLoop(ctx context.Context) time.Duration {
	conn := m.currentConn()
	if conn == nil {
		return m.cfg.FreshDelay()
	}
	for {
		if ctx.Err() != nil {
			return m.cfg.ResumeDelay()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return m.classifyClose(err)
		}
		var env Envelope
		if uerr := json.Unmarshal(raw, &env); uerr != nil {
			m.logger.Warn("unparseable gateway frame", zap.Error(uerr))
			continue
		}
		if stop := m.handleFrame(env); stop {
			return m.classifyClose(nil)
		}
	}
}

// handleFrame processes one envelope. Returning true tears the connection
// down locally (reconnect or invalid-session paths).
func (m *Manager) handleFrame(env Envelope) bool {
	switch env.Op {
	case OpHello:
		var hello helloData
		if err := json.Unmarshal(env.D, &hello); err != nil {
			m.logger.Warn("malformed hello frame", zap.Error(err))
			return true
		}
		interval := time.Duration(hello.HeartbeatIntervalMs) * time.Millisecond
		m.session.SetHeartbeatInterval(interval)
		m.heartbeat.Start(interval)
		return m.authenticate()

	case OpHeartbeatACK:
		m.session.SetAck(true)

	case OpHeartbeat:
		// The server may request an immediate beat at any time.
		if err := m.sendHeartbeat(m.session.LastSeq()); err != nil {
			m.logger.Warn("on-demand heartbeat failed", zap.Error(err))
			return true
		}

	case OpReconnect:
		m.logger.Info("server requested reconnect, session preserved")
		m.writeClose(websocket.CloseServiceRestart)
		return true

	case OpInvalidSession:
		var resumable bool
		_ = json.Unmarshal(env.D, &resumable)
		m.logger.Warn("session invalidated", zap.Bool("resumable", resumable))
		if !resumable {
			m.session.Reset()
		}
		// Short grace before closing, mirroring the server's advised wait.
		time.Sleep(time.Duration(1+rand.Intn(4)) * time.Second)
		m.writeClose(websocket.CloseNormalClosure)
		return true

	case OpDispatch:
		m.router.Dispatch(env)
	}
	return false
}

// authenticate sends resume when the session is resumable, identify otherwise.
func (m *Manager) authenticate() bool {
	if m.session.CanResume() {
		seq := m.session.LastSeq()
		m.logger.Info("resuming session",
			zap.String("session_id", m.session.SessionID()),
			zap.Int64("seq", *seq))
		if err := m.writeJSON(resumeFrame(m.cfg.Token, m.session.SessionID(), *seq)); err != nil {
			m.logger.Warn("resume send failed", zap.Error(err))
			return true
		}
		return false
	}
	m.logger.Info("identifying", zap.String("auth_mode", string(m.session.AuthMode())))
	if err := m.writeJSON(identifyFrame(m.cfg.Token, m.session.AuthMode(), m.cfg.Intents)); err != nil {
		m.logger.Warn("identify send failed", zap.Error(err))
		return true
	}
	return false
}

// classifyClose maps a read error to the reconnect delay, adjusting session
// state so the next cycle resumes or identifies correctly.
func (m *Manager) classifyClose(err error) time.Duration {
	var closeErr *websocket.CloseError
	if err != nil && errors.As(err, &closeErr) {
		code := closeErr.Code
		switch {
		case code == CloseInvalidAuth:
			m.session.Reset()
			m.logger.Error("authentication rejected by gateway",
				zap.Int("close_code", code))
			if m.cfg.AlternateAuthRetry && !m.altAuthTried {
				m.altAuthTried = true
				alt := AuthModeBot
				if m.session.AuthMode() == AuthModeBot {
					alt = AuthModeUser
				}
				m.session.SetAuthMode(alt)
				m.logger.Warn("retrying once with alternate auth mode",
					zap.String("auth_mode", string(alt)))
				return m.cfg.FreshDelay()
			}
			return m.cfg.SlowDelay()

		case IsResumableClose(code):
			m.logger.Warn("resumable close",
				zap.Int("close_code", code), zap.String("reason", closeErr.Text))
			return m.cfg.ResumeDelay()

		default:
			m.session.Reset()
			m.logger.Warn("non-resumable close",
				zap.Int("close_code", code), zap.String("reason", closeErr.Text))
			return m.cfg.FreshDelay()
		}
	}

	// Transport-level failures keep session state so a resume gets attempted.
	if m.session.CanResume() {
		return m.cfg.ResumeDelay()
	}
	return m.cfg.FreshDelay()
}

// Subscribe requests store/forward delivery for a channel. Only meaningful in
// the user auth mode; a no-op error when disconnected.
func (m *Manager) Subscribe(guildID, channelID string) error {
	return m.writeJSON(subscribeFrame(guildID, channelID))
}

func (m *Manager) sendHeartbeat(seq *int64) error {
	return m.writeJSON(heartbeatFrame(seq))
}

// writeJSON serializes one outbound frame under the write mutex. Concurrent
// writers (heartbeat goroutine, dispatch callbacks) must never interleave.
func (m *Manager) writeJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return errors.New("gateway: not connected")
	}
	return m.conn.WriteJSON(v)
}

func (m *Manager) writeClose(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, "")
	_ = m.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
}

// forceClose tears the socket down from outside the read loop. The pending
// ReadMessage call returns an error and the reconnect path takes over.
func (m *Manager) forceClose() {
	m.closeConn()
}

func (m *Manager) closeConn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) currentConn() *websocket.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

func (m *Manager) setState(s ConnState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
