package autoreply

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/observability"
	"github.com/spec-kit/support-gateway/internal/platform"
)

const (
	dedupTTL          = time.Minute
	dedupCap          = 2000
	profanityCooldown = 30 * time.Second
)

// Sender delivers a reply into a channel.
type Sender interface {
	SendMessage(ctx context.Context, channelID, content string) (platform.Result, error)
}

// Completer drafts a fallback reply when no rule matched.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, userMessage string) (string, error)
}

// Responder is the side-effect half of the auto-reply pipeline. The engine
// decides; the responder deduplicates, paces and delivers.
type Responder struct {
	engine    *Engine
	sender    Sender
	completer Completer
	eligible  func(msg domain.Message) bool
	metrics   *observability.Metrics
	logger    *zap.Logger

	paused atomic.Bool

	mu        sync.Mutex
	seen      map[string]time.Time
	cooldowns map[string]time.Time
}

// ResponderDeps bundles the responder's collaborators. Eligible gates which
// messages are considered at all (tracked ticket channel, non-staff author).
type ResponderDeps struct {
	Engine    *Engine
	Sender    Sender
	Completer Completer
	Eligible  func(msg domain.Message) bool
	Paused    bool
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewResponder wires a responder.
func NewResponder(deps ResponderDeps) *Responder {
	r := &Responder{
		engine:    deps.Engine,
		sender:    deps.Sender,
		completer: deps.Completer,
		eligible:  deps.Eligible,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		seen:      make(map[string]time.Time),
		cooldowns: make(map[string]time.Time),
	}
	r.paused.Store(deps.Paused)
	return r
}

// SetPaused toggles reply delivery. Evaluation still runs while paused so
// decisions stay observable through logs and the simulate endpoint.
func (r *Responder) SetPaused(v bool) { r.paused.Store(v) }

// Paused reports the pause flag.
func (r *Responder) Paused() bool { return r.paused.Load() }

// HandleMessage runs the full pipeline for one inbound message. Delivery
// happens on a background goroutine so the dispatch path never blocks on the
// rule delay or the network.
func (r *Responder) HandleMessage(msg domain.Message) {
	if r.eligible != nil && !r.eligible(msg) {
		return
	}
	// Dedup marks before any I/O so the gateway echo of our own send, or a
	// poll re-read of the same message, can never trigger a second reply.
	if !r.markSeen(msg.ID) {
		return
	}

	if r.checkProfanity(msg) {
		return
	}

	decision := r.engine.Evaluate(Input{
		Content:   msg.Content,
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		Source:    domain.SourceGateway,
	})

	r.logger.Debug("auto-reply decision",
		zap.String("message_id", msg.ID),
		zap.String("action", string(decision.Action)),
		zap.String("reason", decision.Reason),
		zap.String("rule_id", decision.RuleID),
		zap.Float64("confidence", decision.Confidence))

	if decision.Action == domain.ActionSend {
		go r.deliver(msg, decision)
		return
	}

	if r.completer != nil && r.completer.Enabled() {
		go r.deliverAI(msg)
	}
}

func (r *Responder) deliver(msg domain.Message, decision domain.Decision) {
	if decision.DelaySecs > 0 {
		time.Sleep(time.Duration(decision.DelaySecs) * time.Second)
	}
	if r.paused.Load() {
		r.logger.Info("auto-reply suppressed, paused",
			zap.String("message_id", msg.ID),
			zap.String("rule_id", decision.RuleID))
		return
	}
	r.send(msg, decision.Response, decision.RuleID)
}

func (r *Responder) deliverAI(msg domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reply, err := r.completer.Complete(ctx, msg.Content)
	if err != nil {
		r.logger.Warn("ai fallback failed",
			zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if reply == "" || r.paused.Load() {
		return
	}
	r.send(msg, reply, "ai_fallback")
}

func (r *Responder) send(msg domain.Message, content, ruleID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res, err := r.sender.SendMessage(ctx, msg.ChannelID, content)
	if err != nil {
		r.logger.Warn("auto-reply send failed",
			zap.String("channel_id", msg.ChannelID), zap.Error(err))
		return
	}
	if !res.OK {
		r.logger.Warn("auto-reply rejected",
			zap.String("channel_id", msg.ChannelID), zap.Int("status", res.Status))
		return
	}
	r.metrics.RecordReplySent()
	r.logger.Info("auto-reply sent",
		zap.String("channel_id", msg.ChannelID),
		zap.String("rule_id", ruleID))
}

// checkProfanity posts the conduct notice when the message trips the
// profanity list, at most once per author per cooldown window. Returns true
// when the message was consumed by this path.
func (r *Responder) checkProfanity(msg domain.Message) bool {
	phrases := r.engine.Phrases()
	text := strings.ToLower(msg.Content)
	hit := false
	for _, word := range phrases.Profanity {
		if word != "" && strings.Contains(text, strings.ToLower(word)) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}

	now := time.Now()
	r.mu.Lock()
	last, ok := r.cooldowns[msg.AuthorID]
	if ok && now.Sub(last) < profanityCooldown {
		r.mu.Unlock()
		return true
	}
	r.cooldowns[msg.AuthorID] = now
	r.mu.Unlock()

	if r.paused.Load() {
		return true
	}
	go r.send(msg, phrases.ProfanityNotice, "profanity_notice")
	return true
}

// markSeen records a message id, returning false when it was already seen.
// Expired entries are pruned in passing; when the set still exceeds its cap
// the oldest entries are evicted.
func (r *Responder) markSeen(id string) bool {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if at, ok := r.seen[id]; ok && now.Sub(at) < dedupTTL {
		return false
	}
	for k, at := range r.seen {
		if now.Sub(at) >= dedupTTL {
			delete(r.seen, k)
		}
	}
	if len(r.seen) >= dedupCap {
		var oldestKey string
		var oldestAt time.Time
		for k, at := range r.seen {
			if oldestKey == "" || at.Before(oldestAt) {
				oldestKey, oldestAt = k, at
			}
		}
		delete(r.seen, oldestKey)
	}
	r.seen[id] = now
	return true
}
