package gateway

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/observability"
)

// maxDispatchLogs bounds how many occurrences of each event type get logged.
const maxDispatchLogs = 3

// Sink receives the domain-level transitions the router derives from
// dispatched events. The ticket lifecycle tracker implements it.
type Sink interface {
	ChannelCreated(ch domain.Channel)
	ChannelDeleted(ch domain.Channel)
	MessageCreated(msg domain.Message)
}

// Router is the single entry point for inbound event envelopes. It updates
// sequence tracking, maintains the entity caches and fans events out to the
// sink and the registered callbacks.
type Router struct {
	session *Session
	caches  *Caches
	sink    Sink
	metrics *observability.Metrics
	logger  *zap.Logger

	// onReady schedules REST backfill; onMembersChanged is the throttled
	// dashboard push; both may be nil.
	onReady          func(ev ReadyEvent)
	onMembersChanged func()

	mu            sync.Mutex
	counts        map[string]int
	guildScanDone bool
}

// NewRouter builds a router over the shared session and caches.
func NewRouter(session *Session, caches *Caches, sink Sink, metrics *observability.Metrics, logger *zap.Logger) *Router {
	return &Router{
		session: session,
		caches:  caches,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		counts:  make(map[string]int),
	}
}

// OnReady registers the session-ready callback.
func (r *Router) OnReady(fn func(ev ReadyEvent)) { r.onReady = fn }

// OnMembersChanged registers the member-cache-changed callback.
func (r *Router) OnMembersChanged(fn func()) { r.onMembersChanged = fn }

// ResetConnectionState clears per-connection flags. Called by the connection
// manager whenever a new socket opens.
func (r *Router) ResetConnectionState() {
	r.mu.Lock()
	r.guildScanDone = false
	r.mu.Unlock()
}

// DispatchCounts returns a snapshot of per-event-type counters.
func (r *Router) DispatchCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Dispatch handles one inbound envelope. Sequence tracking happens before
// any type-specific handling, even for unrecognized event types.
func (r *Router) Dispatch(env Envelope) {
	if env.S != nil {
		r.session.ObserveSeq(*env.S)
	}
	r.count(env.T)

	switch env.T {
	case EventReady:
		var ev ReadyEvent
		if !r.parse(env, &ev) {
			return
		}
		r.session.SetIdentity(ev.SessionID, ev.ResumeGatewayURL)
		r.logger.Info("session ready",
			zap.String("session_id", ev.SessionID),
			zap.String("user", ev.User.Username))
		if r.onReady != nil {
			r.onReady(ev)
		}

	case EventResumed:
		r.logger.Info("session resumed", zap.String("session_id", r.session.SessionID()))

	case EventGuildCreate:
		var ev GuildCreateEvent
		if !r.parse(env, &ev) {
			return
		}
		r.handleGuildSnapshot(ev)

	case EventChannelCreate:
		var ev ChannelPayload
		if !r.parse(env, &ev) {
			return
		}
		ch := ev.toDomain("")
		ch.GuildName = r.caches.GuildName(ch.GuildID)
		r.caches.PutChannel(ch)
		r.sink.ChannelCreated(ch)

	case EventChannelDelete:
		var ev ChannelPayload
		if !r.parse(env, &ev) {
			return
		}
		ch := ev.toDomain("")
		r.caches.DeleteChannel(ch.ID)
		r.sink.ChannelDeleted(ch)

	case EventMessageCreate:
		var ev MessagePayload
		if !r.parse(env, &ev) {
			return
		}
		r.sink.MessageCreated(ev.toDomain())

	case EventMemberAdd, EventMemberUpdate:
		var ev MemberPayload
		if !r.parse(env, &ev) {
			return
		}
		r.caches.PutMember(ev.toDomain())
		r.membersChanged()

	case EventMemberRemove:
		var ev memberRemoveEvent
		if !r.parse(env, &ev) {
			return
		}
		r.caches.DeleteMember(ev.User.ID)
		r.membersChanged()

	case EventPresence:
		var ev PresencePayload
		if !r.parse(env, &ev) {
			return
		}
		r.caches.PutPresence(domain.PresenceEntry{UserID: ev.User.ID, Status: ev.Status})

	case EventRoleCreate, EventRoleUpdate:
		var ev roleEvent
		if !r.parse(env, &ev) {
			return
		}
		r.caches.PutRole(domain.Role{ID: ev.Role.ID, Name: ev.Role.Name})

	case EventRoleDelete:
		var ev roleEvent
		if !r.parse(env, &ev) {
			return
		}
		r.caches.DeleteRole(ev.RoleID)

	case EventMembersChunk:
		var ev MembersChunkEvent
		if !r.parse(env, &ev) {
			return
		}
		members := make([]domain.Member, 0, len(ev.Members))
		for _, m := range ev.Members {
			members = append(members, m.toDomain())
		}
		if r.caches.UpsertMembers(members) > 0 {
			r.membersChanged()
		}

	default:
		// Unrecognized event types are ignored for forward compatibility.
	}
}

// handleGuildSnapshot bulk-loads roles, members and presences, and feeds the
// channel list through the create path exactly once per connection even if
// the snapshot event fires multiple times.
func (r *Router) handleGuildSnapshot(ev GuildCreateEvent) {
	r.caches.PutGuildName(ev.ID, ev.Name)
	for _, role := range ev.Roles {
		r.caches.PutRole(domain.Role{ID: role.ID, Name: role.Name})
	}
	members := make([]domain.Member, 0, len(ev.Members))
	for _, m := range ev.Members {
		members = append(members, m.toDomain())
	}
	r.caches.UpsertMembers(members)
	for _, p := range ev.Presences {
		r.caches.PutPresence(domain.PresenceEntry{UserID: p.User.ID, Status: p.Status})
	}

	r.mu.Lock()
	scan := !r.guildScanDone
	r.guildScanDone = true
	r.mu.Unlock()

	if scan {
		for _, chp := range ev.Channels {
			ch := chp.toDomain(ev.ID)
			ch.GuildName = ev.Name
			r.caches.PutChannel(ch)
			r.sink.ChannelCreated(ch)
		}
	}
	r.membersChanged()

	r.logger.Info("guild snapshot loaded",
		zap.String("guild_id", ev.ID),
		zap.Int("channels", len(ev.Channels)),
		zap.Int("members", len(ev.Members)),
		zap.Bool("channel_scan", scan))
}

func (r *Router) membersChanged() {
	if r.onMembersChanged != nil {
		r.onMembersChanged()
	}
}

// parse unmarshals an event payload; a malformed frame is dropped with a log
// line, never torn down over.
func (r *Router) parse(env Envelope, out any) bool {
	if err := json.Unmarshal(env.D, out); err != nil {
		r.logger.Warn("malformed event payload",
			zap.String("event", env.T), zap.Error(err))
		return false
	}
	return true
}

// count maintains the per-event-type dispatch counters, logging the first few
// occurrences of each type and suppressing the rest.
func (r *Router) count(eventType string) {
	if eventType == "" {
		return
	}
	r.metrics.RecordDispatch(eventType)
	r.mu.Lock()
	r.counts[eventType]++
	n := r.counts[eventType]
	r.mu.Unlock()
	if n <= maxDispatchLogs {
		r.logger.Debug("dispatch", zap.String("event", eventType), zap.Int("seen", n))
	}
}
