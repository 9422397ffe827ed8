package gateway

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Heartbeat proves liveness to the server and detects half-open connections.
// A beat whose predecessor was never acknowledged forces a local close so the
// connection manager's reconnect path fires.
type Heartbeat struct {
	session *Session
	send    func(seq *int64) error
	onDead  func()
	logger  *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
}

// NewHeartbeat builds a controller. send transmits one heartbeat frame;
// onDead force-closes the socket.
func NewHeartbeat(session *Session, send func(seq *int64) error, onDead func(), logger *zap.Logger) *Heartbeat {
	return &Heartbeat{session: session, send: send, onDead: onDead, logger: logger}
}

// Start begins beating with a random jitter delay in [0, interval) before the
// first beat, then a fixed period. Any previous schedule is stopped first.
func (h *Heartbeat) Start(interval time.Duration) {
	h.Stop()

	h.mu.Lock()
	stop := make(chan struct{})
	h.stop = stop
	h.mu.Unlock()

	h.session.SetAck(true)
	jitter := time.Duration(rand.Int63n(int64(interval)))

	go func() {
		select {
		case <-stop:
			return
		case <-time.After(jitter):
		}
		if !h.beat() {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !h.beat() {
					return
				}
			}
		}
	}()
}

// Stop clears the schedule. Must run on every disconnect so timers never leak
// across reconnect cycles.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
	h.mu.Unlock()
}

// beat sends one heartbeat. Returns false when the connection is considered
// dead and the schedule should end.
func (h *Heartbeat) beat() bool {
	if !h.session.AckReceived() {
		h.logger.Warn("heartbeat ack missed, forcing close")
		h.onDead()
		return false
	}
	h.session.SetAck(false)
	if err := h.send(h.session.LastSeq()); err != nil {
		h.logger.Warn("heartbeat send failed", zap.Error(err))
		h.onDead()
		return false
	}
	return true
}
