package tickets

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/config"
	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/events"
)

// discordEpochMs is the platform snowflake epoch in unix milliseconds.
const discordEpochMs = 1420070400000

const transcriptLimit = 100

// Archiver persists closed tickets with their transcripts.
type Archiver interface {
	SaveClosedTicket(ctx context.Context, rec domain.TicketRecord, transcript []domain.ArchivedMessage) error
}

// TranscriptFetcher pulls the recent message history of a channel.
type TranscriptFetcher interface {
	GetMessages(ctx context.Context, channelID string, limit int) ([]domain.ArchivedMessage, error)
}

// Pusher signals the live dashboard that ticket state changed.
type Pusher interface {
	TicketsChanged()
}

// NonceChecker recognizes the nonces the REST client attached to its own
// outbound messages, so gateway echoes are classified before the ready event
// delivers the self id.
type NonceChecker interface {
	OwnsNonce(nonce string) bool
}

// staffMessagePrefix marks staff-authored content in the stored last message.
const staffMessagePrefix = "[staff] "

// Tracker is the single writer of ticket records. It consumes channel and
// message events from the gateway router, drives the inactivity timers and
// archival, and publishes lifecycle events for the notification mirrors.
type Tracker struct {
	cfg        config.TicketConfig
	registry   *Registry
	timers     *TimerRegistry
	dispatcher events.Dispatcher
	archiver   Archiver
	fetcher    TranscriptFetcher
	pusher     Pusher
	nonces     NonceChecker
	logger     *zap.Logger

	mu     sync.Mutex
	selfID string
}

// TrackerDeps bundles the tracker's collaborators.
type TrackerDeps struct {
	Config     config.TicketConfig
	Registry   *Registry
	Timers     *TimerRegistry
	Dispatcher events.Dispatcher
	Archiver   Archiver
	Fetcher    TranscriptFetcher
	Pusher     Pusher
	Nonces     NonceChecker
	Logger     *zap.Logger
}

// NewTracker wires a tracker from its dependencies.
func NewTracker(deps TrackerDeps) *Tracker {
	return &Tracker{
		cfg:        deps.Config,
		registry:   deps.Registry,
		timers:     deps.Timers,
		dispatcher: deps.Dispatcher,
		archiver:   deps.Archiver,
		fetcher:    deps.Fetcher,
		pusher:     deps.Pusher,
		nonces:     deps.Nonces,
		logger:     deps.Logger,
	}
}

func (t *Tracker) publish(ev events.Event) {
	if t.dispatcher == nil {
		return
	}
	_ = t.dispatcher.Publish(context.Background(), ev)
}

// SetSelfID records the authenticated user id from the ready event so the
// tracker can classify the bot's own messages as staff traffic.
func (t *Tracker) SetSelfID(id string) {
	t.mu.Lock()
	t.selfID = id
	t.mu.Unlock()
}

func (t *Tracker) self() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selfID
}

// ChannelCreated registers a new ticket when the channel matches the tracked
// guild, category and name prefix.
func (t *Tracker) ChannelCreated(ch domain.Channel) {
	if !t.IsTicketChannel(ch) {
		return
	}
	if _, exists := t.registry.Get(ch.ID); exists {
		return
	}

	createdAt := time.Now().UTC()
	if ts, ok := snowflakeTime(ch.ID); ok {
		createdAt = ts
	}
	rec := domain.TicketRecord{
		ChannelID:         ch.ID,
		ChannelName:       ch.Name,
		GuildID:           ch.GuildID,
		GuildName:         ch.GuildName,
		CreatedAt:         createdAt,
		OpenerUsername:    openerFromName(ch.Name, t.cfg.NamePrefixes),
		WaitingForReply:   true,
		ActivityTimerType: domain.TimerNone,
	}
	t.registry.Put(rec)
	t.logger.Info("ticket opened",
		zap.String("channel_id", ch.ID),
		zap.String("channel_name", ch.Name))
	t.publish(events.NewEvent(events.EventTicketOpened, rec))
	t.pusher.TicketsChanged()
}

// ChannelDeleted closes a tracked ticket: the transcript is fetched and the
// record archived on a background goroutine so the dispatch path never blocks
// on I/O.
func (t *Tracker) ChannelDeleted(ch domain.Channel) {
	rec, ok := t.registry.Remove(ch.ID)
	if !ok {
		return
	}
	t.timers.Cancel(ch.ID)
	now := time.Now().UTC()
	rec.ClosedAt = &now
	rec.ActivityTimerType = domain.TimerNone

	t.logger.Info("ticket closed",
		zap.String("channel_id", ch.ID),
		zap.String("channel_name", rec.ChannelName))
	t.publish(events.NewEvent(events.EventTicketClosed, rec))
	t.pusher.TicketsChanged()

	go t.archive(rec)
}

func (t *Tracker) archive(rec domain.TicketRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var transcript []domain.ArchivedMessage
	if t.fetcher != nil {
		msgs, err := t.fetcher.GetMessages(ctx, rec.ChannelID, transcriptLimit)
		if err != nil {
			t.logger.Warn("transcript fetch failed",
				zap.String("channel_id", rec.ChannelID), zap.Error(err))
		} else {
			transcript = msgs
		}
	}
	if t.archiver == nil {
		return
	}
	if err := t.archiver.SaveClosedTicket(ctx, rec, transcript); err != nil {
		t.logger.Error("ticket archive failed",
			zap.String("channel_id", rec.ChannelID), zap.Error(err))
	}
}

// MessageCreated updates the tracked record for the message's channel. Staff
// and user messages drive opposite transitions of the waiting flag and the
// inactivity timers.
func (t *Tracker) MessageCreated(msg domain.Message) {
	rec, ok := t.registry.Get(msg.ChannelID)
	if !ok {
		return
	}

	staff := t.isStaff(msg)
	at := msg.Timestamp
	firstUserMessage := !staff && !msg.AuthorBot && rec.OpenerID == ""

	t.registry.Update(msg.ChannelID, func(r *domain.TicketRecord) {
		r.LastMessage = msg.Content
		r.LastMessageAt = &at
		if staff {
			// Only a human staff reply satisfies the first-reply invariant;
			// helper bots and the gateway echo of our own sends do not.
			if r.FirstStaffReplyAt == nil && !msg.AuthorBot {
				r.FirstStaffReplyAt = &at
			}
			r.LastMessage = staffMessagePrefix + msg.Content
			r.LastStaffMessageAt = &at
			r.WaitingForReply = false
		} else {
			if r.OpenerID == "" && !msg.AuthorBot {
				r.OpenerID = msg.AuthorID
				if r.OpenerUsername == "" {
					r.OpenerUsername = msg.AuthorUsername
				}
			}
			r.WaitingForReply = true
			r.ActivityTimerType = domain.TimerNone
		}
	})

	if staff {
		t.armStaffTimer(msg.ChannelID, msg.Content)
	} else {
		t.timers.Cancel(msg.ChannelID)
		if updated, ok := t.registry.Get(msg.ChannelID); ok {
			ev := events.NewEvent(events.EventTicketMessage, updated)
			ev.Message = &msg
			ev.FirstMessage = firstUserMessage
			t.publish(ev)
		}
	}
	t.pusher.TicketsChanged()
}

// armStaffTimer schedules the inactivity timer after a staff message. A
// message containing the closing phrase arms the short closing timer,
// anything else the regular reminder.
func (t *Tracker) armStaffTimer(channelID, content string) {
	kind := domain.TimerRegular
	d := t.cfg.RegularTimeout()
	if t.cfg.ClosingPhrase != "" &&
		strings.Contains(strings.ToLower(content), strings.ToLower(t.cfg.ClosingPhrase)) {
		kind = domain.TimerClosing
		d = t.cfg.ClosingTimeout()
	}

	t.registry.Update(channelID, func(r *domain.TicketRecord) {
		r.ActivityTimerType = kind
	})
	t.timers.Replace(channelID, kind, d, func() {
		t.timerFired(channelID, kind)
	})
}

func (t *Tracker) timerFired(channelID string, kind domain.ActivityTimerType) {
	rec, ok := t.registry.Get(channelID)
	if !ok {
		return
	}
	t.registry.Update(channelID, func(r *domain.TicketRecord) {
		r.ActivityTimerType = domain.TimerNone
	})

	t.logger.Info("inactivity timer elapsed",
		zap.String("channel_id", channelID),
		zap.String("timer", string(kind)))
	ev := events.NewEvent(events.EventTimerElapsed, rec)
	ev.Timer = kind
	t.publish(ev)
	t.pusher.TicketsChanged()
}

// Eligible reports whether a message should enter the auto-reply pipeline:
// tracked ticket channel, human author, not staff.
func (t *Tracker) Eligible(msg domain.Message) bool {
	if msg.AuthorBot {
		return false
	}
	if _, ok := t.registry.Get(msg.ChannelID); !ok {
		return false
	}
	return !t.isStaff(msg)
}

// IsTicketChannel reports whether a channel belongs to the tracked ticket
// space: right guild, right category when configured, matching name prefix.
func (t *Tracker) IsTicketChannel(ch domain.Channel) bool {
	if t.cfg.GuildID != "" && ch.GuildID != "" && ch.GuildID != t.cfg.GuildID {
		return false
	}
	if t.cfg.CategoryID != "" && ch.ParentID != "" && ch.ParentID != t.cfg.CategoryID {
		return false
	}
	name := strings.ToLower(ch.Name)
	for _, prefix := range t.cfg.NamePrefixes {
		if strings.HasPrefix(name, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// isStaff classifies a message author. The bot's own messages always count as
// staff so auto-replies arm timers like a human reply would; before the ready
// event delivers the self id, echoes are recognized by their outbound nonce.
func (t *Tracker) isStaff(msg domain.Message) bool {
	if self := t.self(); self != "" && msg.AuthorID == self {
		return true
	}
	if t.nonces != nil && msg.Nonce != "" && t.nonces.OwnsNonce(msg.Nonce) {
		return true
	}
	for _, role := range msg.MemberRoles {
		for _, staffRole := range t.cfg.StaffRoleIDs {
			if role == staffRole {
				return true
			}
		}
	}
	return false
}

// openerFromName extracts the opener username encoded in the channel name,
// e.g. "ticket-от-user123" yields "user123".
func openerFromName(name string, prefixes []string) string {
	lower := strings.ToLower(name)
	for _, prefix := range prefixes {
		p := strings.ToLower(prefix)
		if !strings.HasPrefix(lower, p) {
			continue
		}
		rest := name[len(p):]
		rest = strings.TrimPrefix(rest, "от-")
		rest = strings.TrimPrefix(rest, "from-")
		return strings.Trim(rest, "-")
	}
	return ""
}

// snowflakeTime derives the creation instant embedded in a platform id.
func snowflakeTime(id string) (time.Time, bool) {
	sf, err := snowflake.ParseString(id)
	if err != nil {
		return time.Time{}, false
	}
	ms := (int64(sf) >> 22) + discordEpochMs
	return time.UnixMilli(ms).UTC(), true
}
