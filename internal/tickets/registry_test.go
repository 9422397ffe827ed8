package tickets

import (
	"testing"
	"time"

	"github.com/spec-kit/support-gateway/internal/domain"
)

func TestRegistryCopySemantics(t *testing.T) {
	r := NewRegistry()
	r.Put(domain.TicketRecord{ChannelID: "c1", ChannelName: "ticket-от-one"})

	rec, ok := r.Get("c1")
	if !ok {
		t.Fatalf("record must be present")
	}
	rec.ChannelName = "mutated"

	stored, _ := r.Get("c1")
	if stored.ChannelName != "ticket-от-one" {
		t.Fatalf("mutating a returned copy must not touch the registry, got %q", stored.ChannelName)
	}
}

func TestRegistryTotals(t *testing.T) {
	r := NewRegistry()
	r.Put(domain.TicketRecord{ChannelID: "c1"})
	r.Put(domain.TicketRecord{ChannelID: "c2"})
	// Replacing an existing record must not count as a new ticket.
	r.Put(domain.TicketRecord{ChannelID: "c1", ChannelName: "renamed"})

	opened, closed := r.Totals()
	if opened != 2 || closed != 0 {
		t.Fatalf("expected 2 opened / 0 closed, got %d / %d", opened, closed)
	}

	if _, ok := r.Remove("c1"); !ok {
		t.Fatalf("remove must find the record")
	}
	if _, ok := r.Remove("c1"); ok {
		t.Fatalf("double remove must miss")
	}

	opened, closed = r.Totals()
	if opened != 2 || closed != 1 {
		t.Fatalf("expected 2 opened / 1 closed, got %d / %d", opened, closed)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 open ticket, got %d", r.Len())
	}
}

func TestRegistryDirtyFlag(t *testing.T) {
	r := NewRegistry()
	if r.ConsumeDirty() {
		t.Fatalf("fresh registry must be clean")
	}

	r.Put(domain.TicketRecord{ChannelID: "c1"})
	if !r.ConsumeDirty() {
		t.Fatalf("put must mark the registry dirty")
	}
	if r.ConsumeDirty() {
		t.Fatalf("consume must clear the flag")
	}

	r.Update("c1", func(rec *domain.TicketRecord) { rec.WaitingForReply = true })
	if !r.ConsumeDirty() {
		t.Fatalf("update must mark the registry dirty")
	}

	// Restoring a snapshot is not a state change worth persisting again.
	r.Restore([]domain.TicketRecord{{ChannelID: "c2"}})
	if r.ConsumeDirty() {
		t.Fatalf("restore must not mark the registry dirty")
	}
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	r.Put(domain.TicketRecord{ChannelID: "old", CreatedAt: base})
	r.Put(domain.TicketRecord{ChannelID: "mid", CreatedAt: base.Add(time.Minute)})
	r.Put(domain.TicketRecord{ChannelID: "new", CreatedAt: base.Add(2 * time.Minute)})

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap))
	}
	if snap[0].ChannelID != "new" || snap[2].ChannelID != "old" {
		t.Fatalf("snapshot must be newest first, got %s..%s", snap[0].ChannelID, snap[2].ChannelID)
	}
}

func TestRegistryUpdateMissingChannel(t *testing.T) {
	r := NewRegistry()
	if r.Update("ghost", func(rec *domain.TicketRecord) {}) {
		t.Fatalf("update on an untracked channel must report false")
	}
}
