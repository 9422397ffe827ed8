package tickets

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/config"
	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/events"
)

type fakeArchiver struct {
	saved chan domain.TicketRecord
}

func (a *fakeArchiver) SaveClosedTicket(_ context.Context, rec domain.TicketRecord, _ []domain.ArchivedMessage) error {
	a.saved <- rec
	return nil
}

type fakeFetcher struct{}

func (fakeFetcher) GetMessages(context.Context, string, int) ([]domain.ArchivedMessage, error) {
	return []domain.ArchivedMessage{{MessageID: "m1", Content: "hi"}}, nil
}

type fakePusher struct{ pushes int }

func (p *fakePusher) TicketsChanged() { p.pushes++ }

type fakeNonces struct{ owned map[string]bool }

func (n *fakeNonces) OwnsNonce(nonce string) bool { return n.owned[nonce] }

func testConfig() config.TicketConfig {
	return config.TicketConfig{
		GuildID:               "guild-1",
		CategoryID:            "cat-1",
		NamePrefixes:          []string{"ticket-", "тикет-"},
		StaffRoleIDs:          []string{"staff-role"},
		ClosingPhrase:         "тикет будет закрыт",
		RegularTimeoutMinutes: 60,
		ClosingTimeoutMinutes: 10,
	}
}

type trackerFixture struct {
	tracker    *Tracker
	registry   *Registry
	timers     *TimerRegistry
	archiver   *fakeArchiver
	pusher     *fakePusher
	nonces     *fakeNonces
	dispatcher events.Dispatcher
	published  *[]events.Event
}

func newFixture(t *testing.T) *trackerFixture {
	t.Helper()
	registry := NewRegistry()
	timers := NewTimerRegistry()
	archiver := &fakeArchiver{saved: make(chan domain.TicketRecord, 1)}
	pusher := &fakePusher{}
	nonces := &fakeNonces{owned: map[string]bool{}}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())

	published := &[]events.Event{}
	record := func(_ context.Context, ev events.Event) error {
		*published = append(*published, ev)
		return nil
	}
	for _, et := range []events.EventType{
		events.EventTicketOpened, events.EventTicketClosed,
		events.EventTicketMessage, events.EventTimerElapsed,
	} {
		dispatcher.Subscribe(et, record)
	}

	tracker := NewTracker(TrackerDeps{
		Config:     testConfig(),
		Registry:   registry,
		Timers:     timers,
		Dispatcher: dispatcher,
		Archiver:   archiver,
		Fetcher:    fakeFetcher{},
		Pusher:     pusher,
		Nonces:     nonces,
		Logger:     zap.NewNop(),
	})
	t.Cleanup(timers.StopAll)

	return &trackerFixture{
		tracker:    tracker,
		registry:   registry,
		timers:     timers,
		archiver:   archiver,
		pusher:     pusher,
		nonces:     nonces,
		dispatcher: dispatcher,
		published:  published,
	}
}

func ticketChannel() domain.Channel {
	return domain.Channel{
		ID:        "175928847299117063",
		Name:      "ticket-от-user123",
		GuildID:   "guild-1",
		GuildName: "Main Guild",
		ParentID:  "cat-1",
	}
}

func TestIsTicketChannel(t *testing.T) {
	fx := newFixture(t)

	if !fx.tracker.IsTicketChannel(ticketChannel()) {
		t.Fatalf("matching channel must be recognized")
	}

	wrongGuild := ticketChannel()
	wrongGuild.GuildID = "other"
	if fx.tracker.IsTicketChannel(wrongGuild) {
		t.Fatalf("other guild must be rejected")
	}

	wrongCategory := ticketChannel()
	wrongCategory.ParentID = "other-cat"
	if fx.tracker.IsTicketChannel(wrongCategory) {
		t.Fatalf("other category must be rejected")
	}

	wrongName := ticketChannel()
	wrongName.Name = "general"
	if fx.tracker.IsTicketChannel(wrongName) {
		t.Fatalf("non-ticket name must be rejected")
	}

	cyrillic := ticketChannel()
	cyrillic.Name = "тикет-от-user456"
	if !fx.tracker.IsTicketChannel(cyrillic) {
		t.Fatalf("cyrillic prefix must be recognized")
	}
}

func TestChannelCreatedRegistersTicket(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())

	rec, ok := fx.registry.Get("175928847299117063")
	if !ok {
		t.Fatalf("ticket must be registered")
	}
	if rec.OpenerUsername != "user123" {
		t.Fatalf("expected opener parsed from name, got %q", rec.OpenerUsername)
	}
	if rec.GuildName != "Main Guild" {
		t.Fatalf("expected guild name from the channel, got %q", rec.GuildName)
	}
	if !rec.WaitingForReply {
		t.Fatalf("new ticket must be waiting for reply")
	}
	// The creation instant is embedded in the channel snowflake.
	want := time.Date(2016, 4, 30, 11, 18, 25, 796e6, time.UTC)
	if !rec.CreatedAt.Equal(want) {
		t.Fatalf("expected snowflake-derived creation time %v, got %v", want, rec.CreatedAt)
	}
	if len(*fx.published) != 1 || (*fx.published)[0].Type != events.EventTicketOpened {
		t.Fatalf("expected one opened event, got %+v", *fx.published)
	}
	if fx.pusher.pushes == 0 {
		t.Fatalf("dashboard push expected")
	}

	// Re-delivery of the same channel must be a no-op.
	fx.tracker.ChannelCreated(ticketChannel())
	if len(*fx.published) != 1 {
		t.Fatalf("duplicate create must not publish again")
	}
}

func TestFirstStaffReplySetOnce(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())

	first := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	staffMsg := domain.Message{
		ID: "m1", ChannelID: "175928847299117063",
		AuthorID: "staff-1", MemberRoles: []string{"staff-role"},
		Content: "здравствуйте", Timestamp: first,
	}
	fx.tracker.MessageCreated(staffMsg)

	rec, _ := fx.registry.Get("175928847299117063")
	if rec.FirstStaffReplyAt == nil || !rec.FirstStaffReplyAt.Equal(first) {
		t.Fatalf("first staff reply must be recorded, got %v", rec.FirstStaffReplyAt)
	}
	if rec.WaitingForReply {
		t.Fatalf("staff reply must clear the waiting flag")
	}

	second := staffMsg
	second.ID = "m2"
	second.Timestamp = first.Add(time.Hour)
	fx.tracker.MessageCreated(second)

	rec, _ = fx.registry.Get("175928847299117063")
	if !rec.FirstStaffReplyAt.Equal(first) {
		t.Fatalf("first staff reply must never move, got %v", rec.FirstStaffReplyAt)
	}
	if !rec.LastStaffMessageAt.Equal(second.Timestamp) {
		t.Fatalf("last staff message must advance, got %v", rec.LastStaffMessageAt)
	}
}

func TestStaffMessageArmsTimers(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())

	staffMsg := domain.Message{
		ID: "m1", ChannelID: "175928847299117063",
		AuthorID: "staff-1", MemberRoles: []string{"staff-role"},
		Content: "ожидайте", Timestamp: time.Now().UTC(),
	}
	fx.tracker.MessageCreated(staffMsg)
	if kind := fx.timers.Kind("175928847299117063"); kind != domain.TimerRegular {
		t.Fatalf("expected regular timer, got %q", kind)
	}

	closing := staffMsg
	closing.ID = "m2"
	closing.Content = "Если вопросов нет, тикет будет закрыт"
	fx.tracker.MessageCreated(closing)
	if kind := fx.timers.Kind("175928847299117063"); kind != domain.TimerClosing {
		t.Fatalf("closing phrase must arm the closing timer, got %q", kind)
	}
	rec, _ := fx.registry.Get("175928847299117063")
	if rec.ActivityTimerType != domain.TimerClosing {
		t.Fatalf("record must reflect the armed timer, got %q", rec.ActivityTimerType)
	}

	// A user reply cancels whatever timer is pending.
	userMsg := domain.Message{
		ID: "m3", ChannelID: "175928847299117063",
		AuthorID: "user-1", Content: "еще вопрос", Timestamp: time.Now().UTC(),
	}
	fx.tracker.MessageCreated(userMsg)
	if kind := fx.timers.Kind("175928847299117063"); kind != domain.TimerNone {
		t.Fatalf("user message must cancel the timer, got %q", kind)
	}
	rec, _ = fx.registry.Get("175928847299117063")
	if !rec.WaitingForReply {
		t.Fatalf("user message must set the waiting flag")
	}
}

func TestSelfMessagesCountAsStaff(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.SetSelfID("bot-1")
	fx.tracker.ChannelCreated(ticketChannel())

	fx.tracker.MessageCreated(domain.Message{
		ID: "m1", ChannelID: "175928847299117063",
		AuthorID: "bot-1", Content: "автоответ", Timestamp: time.Now().UTC(),
	})
	rec, _ := fx.registry.Get("175928847299117063")
	if rec.WaitingForReply {
		t.Fatalf("the bot's own reply must count as staff")
	}
	if rec.FirstStaffReplyAt == nil {
		t.Fatalf("the bot's own reply must set the first staff reply")
	}
}

func TestBotAuthoredStaffMessageSkipsFirstReply(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())

	fx.tracker.MessageCreated(domain.Message{
		ID: "m1", ChannelID: "175928847299117063",
		AuthorID: "helper-bot", AuthorBot: true,
		MemberRoles: []string{"staff-role"},
		Content:     "автоматический ответ", Timestamp: time.Now().UTC(),
	})

	rec, _ := fx.registry.Get("175928847299117063")
	if rec.FirstStaffReplyAt != nil {
		t.Fatalf("a bot-authored staff message must not set the first staff reply, got %v",
			rec.FirstStaffReplyAt)
	}
	if rec.WaitingForReply {
		t.Fatalf("bot staff message must still clear the waiting flag")
	}
	if rec.LastStaffMessageAt == nil {
		t.Fatalf("bot staff message must still advance the last staff message time")
	}

	// The first human staff reply afterwards sets the invariant.
	at := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	fx.tracker.MessageCreated(domain.Message{
		ID: "m2", ChannelID: "175928847299117063",
		AuthorID: "staff-1", MemberRoles: []string{"staff-role"},
		Content: "здравствуйте", Timestamp: at,
	})
	rec, _ = fx.registry.Get("175928847299117063")
	if rec.FirstStaffReplyAt == nil || !rec.FirstStaffReplyAt.Equal(at) {
		t.Fatalf("human staff reply must set the first staff reply, got %v", rec.FirstStaffReplyAt)
	}
}

func TestUserMessagesAreForwarded(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())

	for i, content := range []string{"первый вопрос", "есть новости", "ау"} {
		fx.tracker.MessageCreated(domain.Message{
			ID:        fmt.Sprintf("m%d", i+1),
			ChannelID: "175928847299117063",
			AuthorID:  "user-1", Content: content,
			Timestamp: time.Now().UTC(),
		})
	}

	var forwards []events.Event
	for _, ev := range *fx.published {
		if ev.Type == events.EventTicketMessage {
			forwards = append(forwards, ev)
		}
	}
	if len(forwards) != 3 {
		t.Fatalf("every user message must be forwarded, got %d of 3", len(forwards))
	}
	if !forwards[0].FirstMessage {
		t.Fatalf("first user message must carry the first-message flag")
	}
	if forwards[1].FirstMessage || forwards[2].FirstMessage {
		t.Fatalf("later messages must not carry the first-message flag")
	}
}

func TestStaffFirstDoesNotSuppressFirstMessageFlag(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())

	fx.tracker.MessageCreated(domain.Message{
		ID: "m1", ChannelID: "175928847299117063",
		AuthorID: "staff-1", MemberRoles: []string{"staff-role"},
		Content: "чем можем помочь?", Timestamp: time.Now().UTC(),
	})
	fx.tracker.MessageCreated(domain.Message{
		ID: "m2", ChannelID: "175928847299117063",
		AuthorID: "user-1", Content: "у меня проблема", Timestamp: time.Now().UTC(),
	})

	var forwards []events.Event
	for _, ev := range *fx.published {
		if ev.Type == events.EventTicketMessage {
			forwards = append(forwards, ev)
		}
	}
	if len(forwards) != 1 || !forwards[0].FirstMessage {
		t.Fatalf("first user message after a staff greeting must still be flagged, got %+v", forwards)
	}
}

func TestStaffMessagePrefixedInLastMessage(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())

	fx.tracker.MessageCreated(domain.Message{
		ID: "m1", ChannelID: "175928847299117063",
		AuthorID: "staff-1", MemberRoles: []string{"staff-role"},
		Content: "ожидайте", Timestamp: time.Now().UTC(),
	})
	rec, _ := fx.registry.Get("175928847299117063")
	if rec.LastMessage != "[staff] ожидайте" {
		t.Fatalf("staff content must carry the staff marker, got %q", rec.LastMessage)
	}

	fx.tracker.MessageCreated(domain.Message{
		ID: "m2", ChannelID: "175928847299117063",
		AuthorID: "user-1", Content: "хорошо", Timestamp: time.Now().UTC(),
	})
	rec, _ = fx.registry.Get("175928847299117063")
	if rec.LastMessage != "хорошо" {
		t.Fatalf("user content must be stored bare, got %q", rec.LastMessage)
	}
}

func TestOwnedNonceCountsAsSelf(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())
	fx.nonces.owned["nonce-1"] = true

	// The echo of our own send arrives before ready delivered the self id.
	fx.tracker.MessageCreated(domain.Message{
		ID: "m1", ChannelID: "175928847299117063",
		AuthorID: "unknown-self", Nonce: "nonce-1",
		Content: "автоответ", Timestamp: time.Now().UTC(),
	})

	rec, _ := fx.registry.Get("175928847299117063")
	if rec.WaitingForReply {
		t.Fatalf("an owned-nonce echo must count as staff traffic")
	}
	if fx.tracker.Eligible(domain.Message{
		ID: "m1", ChannelID: "175928847299117063",
		AuthorID: "unknown-self", Nonce: "nonce-1",
	}) {
		t.Fatalf("an owned-nonce echo must not re-enter the auto-reply pipeline")
	}
}

func TestChannelDeletedArchivesTicket(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.ChannelCreated(ticketChannel())
	fx.tracker.ChannelDeleted(ticketChannel())

	if _, ok := fx.registry.Get("175928847299117063"); ok {
		t.Fatalf("closed ticket must leave the registry")
	}

	select {
	case rec := <-fx.archiver.saved:
		if rec.ClosedAt == nil {
			t.Fatalf("archived record must carry a close time")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("archiver was not invoked")
	}

	var sawClosed bool
	for _, ev := range *fx.published {
		if ev.Type == events.EventTicketClosed {
			sawClosed = true
		}
	}
	if !sawClosed {
		t.Fatalf("closed event must be published")
	}

	// Deleting an untracked channel is a no-op.
	fx.tracker.ChannelDeleted(domain.Channel{ID: "unknown"})
}

func TestUserMessageEligibility(t *testing.T) {
	fx := newFixture(t)
	fx.tracker.SetSelfID("bot-1")
	fx.tracker.ChannelCreated(ticketChannel())

	user := domain.Message{ID: "m1", ChannelID: "175928847299117063", AuthorID: "user-1"}
	if !fx.tracker.Eligible(user) {
		t.Fatalf("user message in a tracked ticket must be eligible")
	}

	staff := user
	staff.MemberRoles = []string{"staff-role"}
	if fx.tracker.Eligible(staff) {
		t.Fatalf("staff message must not be eligible")
	}

	bot := user
	bot.AuthorBot = true
	if fx.tracker.Eligible(bot) {
		t.Fatalf("bot message must not be eligible")
	}

	outside := user
	outside.ChannelID = "other-channel"
	if fx.tracker.Eligible(outside) {
		t.Fatalf("message outside tracked tickets must not be eligible")
	}
}

func TestOpenerFromName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"ticket-от-user123", "user123"},
		{"тикет-от-вася", "вася"},
		{"ticket-from-alice", "alice"},
		{"ticket-0042", "0042"},
		{"general", ""},
	}
	prefixes := []string{"ticket-", "тикет-"}
	for _, tc := range cases {
		if got := openerFromName(tc.name, prefixes); got != tc.want {
			t.Fatalf("openerFromName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestTimerReplaceIsIdempotent(t *testing.T) {
	timers := NewTimerRegistry()
	defer timers.StopAll()

	fired := make(chan domain.ActivityTimerType, 2)
	timers.Replace("chan-1", domain.TimerRegular, time.Hour, func() {
		fired <- domain.TimerRegular
	})
	timers.Replace("chan-1", domain.TimerClosing, 20*time.Millisecond, func() {
		fired <- domain.TimerClosing
	})
	if timers.Active() != 1 {
		t.Fatalf("replace must keep a single timer per channel, got %d", timers.Active())
	}

	select {
	case kind := <-fired:
		if kind != domain.TimerClosing {
			t.Fatalf("replaced timer fired, expected the closing timer")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	if timers.Active() != 0 {
		t.Fatalf("fired timer must be removed, got %d", timers.Active())
	}
}
