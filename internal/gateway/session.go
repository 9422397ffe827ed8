package gateway

import (
	"sync"
	"time"
)

// AuthMode selects the identify payload shape.
type AuthMode string

const (
	AuthModeBot  AuthMode = "bot"
	AuthModeUser AuthMode = "user"
)

// Session holds the resumable gateway session state. It is mutated only by
// the connection manager and the heartbeat controller.
type Session struct {
	mu                sync.Mutex
	sessionID         string
	resumeURL         string
	lastSeq           *int64
	authMode          AuthMode
	heartbeatInterval time.Duration
	lastAckReceived   bool
}

// NewSession returns a fresh session in the given auth mode.
func NewSession(mode AuthMode) *Session {
	return &Session{authMode: mode, lastAckReceived: true}
}

// CanResume reports whether both the session id and a sequence number are
// known, which is the precondition for sending a resume frame.
func (s *Session) CanResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID != "" && s.lastSeq != nil
}

// Reset clears the session identity after a non-resumable close.
func (s *Session) Reset() {
	s.mu.Lock()
	s.sessionID = ""
	s.resumeURL = ""
	s.lastSeq = nil
	s.mu.Unlock()
}

// ObserveSeq records a sequence number, keeping the maximum seen so far.
func (s *Session) ObserveSeq(seq int64) {
	s.mu.Lock()
	if s.lastSeq == nil || seq > *s.lastSeq {
		s.lastSeq = &seq
	}
	s.mu.Unlock()
}

// LastSeq returns the last observed sequence number, or nil.
func (s *Session) LastSeq() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeq == nil {
		return nil
	}
	seq := *s.lastSeq
	return &seq
}

// SetIdentity stores the session id and resume URL from the ready event.
func (s *Session) SetIdentity(sessionID, resumeURL string) {
	s.mu.Lock()
	s.sessionID = sessionID
	if resumeURL != "" {
		s.resumeURL = resumeURL
	}
	s.mu.Unlock()
}

// SessionID returns the current session identifier.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ResumeURL returns the server-provided reconnect URL, if any.
func (s *Session) ResumeURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeURL
}

// SetHeartbeatInterval stores the hello-frame heartbeat period.
func (s *Session) SetHeartbeatInterval(d time.Duration) {
	s.mu.Lock()
	s.heartbeatInterval = d
	s.mu.Unlock()
}

// HeartbeatInterval returns the negotiated heartbeat period.
func (s *Session) HeartbeatInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeatInterval
}

// AckReceived reports whether an ack arrived since the last beat.
func (s *Session) AckReceived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAckReceived
}

// SetAck flips the ack flag.
func (s *Session) SetAck(v bool) {
	s.mu.Lock()
	s.lastAckReceived = v
	s.mu.Unlock()
}

// AuthMode returns the current auth mode.
func (s *Session) AuthMode() AuthMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authMode
}

// SetAuthMode switches auth mode (alternate-auth retry path).
func (s *Session) SetAuthMode(mode AuthMode) {
	s.mu.Lock()
	s.authMode = mode
	s.mu.Unlock()
}
