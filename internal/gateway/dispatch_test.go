package gateway

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/observability"
)

type recordingSink struct {
	created []domain.Channel
	deleted []domain.Channel
	msgs    []domain.Message
}

func (s *recordingSink) ChannelCreated(ch domain.Channel) { s.created = append(s.created, ch) }
func (s *recordingSink) ChannelDeleted(ch domain.Channel) { s.deleted = append(s.deleted, ch) }
func (s *recordingSink) MessageCreated(m domain.Message)  { s.msgs = append(s.msgs, m) }

func newTestRouter(t *testing.T) (*Router, *Session, *Caches, *recordingSink) {
	t.Helper()
	session := NewSession(AuthModeBot)
	caches := NewCaches()
	sink := &recordingSink{}
	router := NewRouter(session, caches, sink, observability.NewMetrics(), zap.NewNop())
	return router, session, caches, sink
}

func envelope(t *testing.T, seq int64, eventType string, payload any) Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{Op: OpDispatch, S: &seq, T: eventType, D: raw}
}

func TestDispatchObservesSeqForUnknownEvents(t *testing.T) {
	router, session, _, _ := newTestRouter(t)
	router.Dispatch(envelope(t, 7, "SOME_FUTURE_EVENT", map[string]any{"x": 1}))
	if seq := session.LastSeq(); seq == nil || *seq != 7 {
		t.Fatalf("sequence must be tracked even for unknown events, got %v", seq)
	}
}

func TestDispatchReadySetsIdentity(t *testing.T) {
	router, session, _, _ := newTestRouter(t)

	var gotReady bool
	router.OnReady(func(ev ReadyEvent) { gotReady = true })

	router.Dispatch(envelope(t, 1, EventReady, ReadyEvent{
		SessionID:        "sess-1",
		ResumeGatewayURL: "wss://resume.example",
		User:             UserPayload{ID: "bot-1", Username: "support"},
	}))

	if session.SessionID() != "sess-1" {
		t.Fatalf("ready must store the session id")
	}
	if session.ResumeURL() != "wss://resume.example" {
		t.Fatalf("ready must store the resume url")
	}
	if !gotReady {
		t.Fatalf("ready callback must fire")
	}
}

func TestDispatchChannelLifecycle(t *testing.T) {
	router, _, caches, sink := newTestRouter(t)

	router.Dispatch(envelope(t, 1, EventChannelCreate, ChannelPayload{
		ID: "chan-1", Name: "ticket-от-user1", GuildID: "guild-1",
	}))
	if len(sink.created) != 1 || sink.created[0].ID != "chan-1" {
		t.Fatalf("channel create must reach the sink, got %+v", sink.created)
	}
	if _, ok := caches.Channel("chan-1"); !ok {
		t.Fatalf("channel create must populate the cache")
	}

	router.Dispatch(envelope(t, 2, EventChannelDelete, ChannelPayload{ID: "chan-1"}))
	if len(sink.deleted) != 1 {
		t.Fatalf("channel delete must reach the sink")
	}
	if _, ok := caches.Channel("chan-1"); ok {
		t.Fatalf("channel delete must evict the cache entry")
	}
}

func TestDispatchGuildSnapshotScansChannelsOnce(t *testing.T) {
	router, _, _, sink := newTestRouter(t)

	snapshot := GuildCreateEvent{
		ID:       "guild-1",
		Name:     "Main Guild",
		Channels: []ChannelPayload{{ID: "chan-1", Name: "ticket-от-user1"}},
		Roles:    []RolePayload{{ID: "role-1", Name: "staff"}},
	}
	router.Dispatch(envelope(t, 1, EventGuildCreate, snapshot))
	router.Dispatch(envelope(t, 2, EventGuildCreate, snapshot))

	if len(sink.created) != 1 {
		t.Fatalf("guild snapshot must feed channels through create exactly once, got %d", len(sink.created))
	}
	if sink.created[0].GuildName != "Main Guild" {
		t.Fatalf("snapshot channels must carry the guild name, got %q", sink.created[0].GuildName)
	}

	router.ResetConnectionState()
	router.Dispatch(envelope(t, 3, EventGuildCreate, snapshot))
	if len(sink.created) != 2 {
		t.Fatalf("new connection must re-run the channel scan, got %d", len(sink.created))
	}
}

func TestDispatchChannelCreateCarriesGuildName(t *testing.T) {
	router, _, _, sink := newTestRouter(t)

	router.Dispatch(envelope(t, 1, EventGuildCreate, GuildCreateEvent{
		ID: "guild-1", Name: "Main Guild",
	}))
	router.Dispatch(envelope(t, 2, EventChannelCreate, ChannelPayload{
		ID: "chan-1", Name: "ticket-от-user1", GuildID: "guild-1",
	}))

	if len(sink.created) != 1 {
		t.Fatalf("channel create must reach the sink")
	}
	if sink.created[0].GuildName != "Main Guild" {
		t.Fatalf("live channel create must resolve the guild name, got %q", sink.created[0].GuildName)
	}
}

func TestDispatchMessageCreate(t *testing.T) {
	router, _, _, sink := newTestRouter(t)
	router.Dispatch(envelope(t, 1, EventMessageCreate, MessagePayload{
		ID: "msg-1", ChannelID: "chan-1", Content: "привет",
		Author:    UserPayload{ID: "user-1", Username: "user1"},
		Timestamp: "2026-08-31T10:00:00Z",
	}))
	if len(sink.msgs) != 1 {
		t.Fatalf("message create must reach the sink")
	}
	msg := sink.msgs[0]
	if msg.AuthorID != "user-1" || msg.Content != "привет" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Fatalf("timestamp must be parsed")
	}
}

func TestDispatchMalformedPayloadDropped(t *testing.T) {
	router, session, _, sink := newTestRouter(t)
	seq := int64(4)
	router.Dispatch(Envelope{
		Op: OpDispatch, S: &seq, T: EventMessageCreate,
		D: json.RawMessage(`{"id": 123}`),
	})
	if len(sink.msgs) != 0 {
		t.Fatalf("malformed payload must not reach the sink")
	}
	if seqPtr := session.LastSeq(); seqPtr == nil || *seqPtr != 4 {
		t.Fatalf("sequence must still be tracked for malformed payloads")
	}
}

func TestDispatchMemberChunkCountsNewMembers(t *testing.T) {
	router, _, caches, _ := newTestRouter(t)

	var changed int
	router.OnMembersChanged(func() { changed++ })

	chunk := MembersChunkEvent{
		GuildID: "guild-1",
		Members: []MemberPayload{{User: UserPayload{ID: "u1", Username: "one"}}},
	}
	router.Dispatch(envelope(t, 1, EventMembersChunk, chunk))
	if changed != 1 {
		t.Fatalf("new members must trigger the change callback")
	}

	// The same chunk again adds nothing and must stay quiet.
	router.Dispatch(envelope(t, 2, EventMembersChunk, chunk))
	if changed != 1 {
		t.Fatalf("duplicate chunk must not trigger the callback, got %d", changed)
	}
	if _, _, members, _ := caches.Counts(); members != 1 {
		t.Fatalf("expected 1 cached member, got %d", members)
	}
}
