package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/tickets"
)

const (
	snapshotKey    = "support-gateway:tickets:snapshot"
	openedKey      = "support-gateway:tickets:opened_total"
	closedKey      = "support-gateway:tickets:closed_total"
	flushInterval  = 10 * time.Second
	snapshotExpiry = 7 * 24 * time.Hour
)

// SnapshotStore checkpoints the open-ticket registry to Redis so a restart
// does not lose in-flight tickets. A nil client makes it a no-op.
type SnapshotStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSnapshotStore wraps the shared redis client.
func NewSnapshotStore(client *redis.Client, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{client: client, logger: logger}
}

// Save writes the registry snapshot and counters.
func (s *SnapshotStore) Save(ctx context.Context, reg *tickets.Registry) error {
	if s.client == nil {
		return nil
	}
	records := reg.Snapshot()
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	opened, closed := reg.Totals()

	pipe := s.client.Pipeline()
	pipe.Set(ctx, snapshotKey, raw, snapshotExpiry)
	pipe.Set(ctx, openedKey, opened, 0)
	pipe.Set(ctx, closedKey, closed, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load restores a previously saved snapshot into the registry. Missing keys
// are not an error.
func (s *SnapshotStore) Load(ctx context.Context, reg *tickets.Registry) error {
	if s.client == nil {
		return nil
	}
	raw, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	var records []domain.TicketRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	reg.Restore(records)
	s.logger.Info("ticket registry restored", zap.Int("records", len(records)))
	return nil
}

// RunFlusher periodically persists the registry while it is dirty. Blocks
// until ctx is cancelled, writing one final snapshot on the way out.
func (s *SnapshotStore) RunFlusher(ctx context.Context, reg *tickets.Registry) {
	if s.client == nil {
		return
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Save(flushCtx, reg); err != nil {
				s.logger.Warn("final snapshot failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if !reg.ConsumeDirty() {
				continue
			}
			if err := s.Save(ctx, reg); err != nil {
				s.logger.Warn("snapshot flush failed", zap.Error(err))
			}
		}
	}
}
