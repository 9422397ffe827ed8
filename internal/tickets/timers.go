package tickets

import (
	"sync"
	"time"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// TimerRegistry schedules at most one inactivity timer per channel. Replacing
// a timer always cancels the previous one, so re-arming is idempotent.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[string]*channelTimer
}

type channelTimer struct {
	kind  domain.ActivityTimerType
	timer *time.Timer
}

// NewTimerRegistry returns an empty timer registry.
func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[string]*channelTimer)}
}

// Replace arms a timer of the given kind for a channel, cancelling any timer
// already pending there. fn runs on its own goroutine when the timer fires.
func (t *TimerRegistry) Replace(channelID string, kind domain.ActivityTimerType, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[channelID]; ok {
		existing.timer.Stop()
	}
	timer := time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, channelID)
		t.mu.Unlock()
		fn()
	})
	t.timers[channelID] = &channelTimer{kind: kind, timer: timer}
}

// Cancel stops and removes any pending timer for a channel.
func (t *TimerRegistry) Cancel(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[channelID]; ok {
		existing.timer.Stop()
		delete(t.timers, channelID)
	}
}

// Kind returns the pending timer kind for a channel, or TimerNone.
func (t *TimerRegistry) Kind(channelID string) domain.ActivityTimerType {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[channelID]; ok {
		return existing.kind
	}
	return domain.TimerNone
}

// Active reports the number of pending timers.
func (t *TimerRegistry) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// StopAll cancels every pending timer. Used during shutdown.
func (t *TimerRegistry) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ct := range t.timers {
		ct.timer.Stop()
		delete(t.timers, id)
	}
}
