package tickets

import (
	"sort"
	"sync"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// Registry is the in-memory table of open tickets keyed by channel id. Values
// are stored by copy; callers never hold references into the map.
type Registry struct {
	mu          sync.RWMutex
	records     map[string]domain.TicketRecord
	openedTotal int64
	closedTotal int64
	dirty       bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]domain.TicketRecord)}
}

// Put stores or replaces a record and marks the registry dirty.
func (r *Registry) Put(rec domain.TicketRecord) {
	r.mu.Lock()
	if _, exists := r.records[rec.ChannelID]; !exists {
		r.openedTotal++
	}
	r.records[rec.ChannelID] = rec
	r.dirty = true
	r.mu.Unlock()
}

// Get returns a copy of the record for a channel.
func (r *Registry) Get(channelID string) (domain.TicketRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[channelID]
	return rec, ok
}

// Remove deletes the record for a closed channel, returning the final copy.
func (r *Registry) Remove(channelID string) (domain.TicketRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[channelID]
	if !ok {
		return domain.TicketRecord{}, false
	}
	delete(r.records, channelID)
	r.closedTotal++
	r.dirty = true
	return rec, true
}

// Update applies fn to the record for a channel under the lock. Returns false
// when the channel is not tracked.
func (r *Registry) Update(channelID string, fn func(rec *domain.TicketRecord)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[channelID]
	if !ok {
		return false
	}
	fn(&rec)
	r.records[channelID] = rec
	r.dirty = true
	return true
}

// Snapshot returns all records ordered by creation time, newest first.
func (r *Registry) Snapshot() []domain.TicketRecord {
	r.mu.RLock()
	out := make([]domain.TicketRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Restore bulk-loads records from a persisted snapshot without touching the
// lifetime counters or the dirty flag.
func (r *Registry) Restore(records []domain.TicketRecord) {
	r.mu.Lock()
	for _, rec := range records {
		r.records[rec.ChannelID] = rec
	}
	r.mu.Unlock()
}

// ChannelIDs returns the tracked channel ids.
func (r *Registry) ChannelIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.records))
	for id := range r.records {
		out = append(out, id)
	}
	return out
}

// Len reports the number of open tickets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Totals reports lifetime opened and closed counters.
func (r *Registry) Totals() (opened, closed int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.openedTotal, r.closedTotal
}

// ConsumeDirty reports whether the registry changed since the last call and
// clears the flag.
func (r *Registry) ConsumeDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.dirty
	r.dirty = false
	return d
}
