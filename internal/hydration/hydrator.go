package hydration

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/config"
	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/gateway"
	"github.com/spec-kit/support-gateway/internal/platform"
	"github.com/spec-kit/support-gateway/internal/tickets"
)

const (
	listPageSize     = 1000
	searchLimit      = 100
	sweepParallelism = 4
	// The alphabet sweep stops after this many consecutive batches that add
	// nothing new to the member cache.
	plateauBatches = 3
)

// sweepAlphabet is the prefix set for the unprivileged member search sweep.
var sweepAlphabet = []string{
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "_",
	"а", "б", "в", "г", "д", "е", "ж", "з", "и", "к", "л", "м", "н",
	"о", "п", "р", "с", "т", "у", "ф", "х", "ц", "ч", "ш", "э", "ю", "я",
}

// Hydrator backfills state the gateway stream alone cannot guarantee: the
// full channel list and the member directory. It runs once per ready event.
type Hydrator struct {
	cfg      config.TicketConfig
	client   *platform.Client
	caches   *gateway.Caches
	tracker  *tickets.Tracker
	registry *tickets.Registry
	logger   *zap.Logger

	// onMembersChanged is the same throttled dashboard push the router uses.
	onMembersChanged func()
}

// NewHydrator wires the hydrator.
func NewHydrator(
	cfg config.TicketConfig,
	client *platform.Client,
	caches *gateway.Caches,
	tracker *tickets.Tracker,
	registry *tickets.Registry,
	onMembersChanged func(),
	logger *zap.Logger,
) *Hydrator {
	return &Hydrator{
		cfg:              cfg,
		client:           client,
		caches:           caches,
		tracker:          tracker,
		registry:         registry,
		onMembersChanged: onMembersChanged,
		logger:           logger,
	}
}

// Run performs both hydration jobs. Called on a background goroutine after
// each ready event; all work is idempotent.
func (h *Hydrator) Run(ctx context.Context) {
	if h.cfg.GuildID == "" {
		h.logger.Warn("no guild configured, skipping hydration")
		return
	}
	h.scanChannels(ctx)
	h.hydrateMembers(ctx)
}

// scanChannels reconciles the ticket registry against the authoritative
// channel list: unseen ticket channels are registered, registry entries whose
// channel disappeared while the bot was down are closed out.
func (h *Hydrator) scanChannels(ctx context.Context) {
	channels, err := h.client.GetChannels(ctx, h.cfg.GuildID)
	if err != nil {
		h.logger.Warn("channel scan failed", zap.Error(err))
		return
	}

	alive := make(map[string]bool, len(channels))
	added := 0
	guildName := h.caches.GuildName(h.cfg.GuildID)
	for _, ch := range channels {
		ch.GuildName = guildName
		h.caches.PutChannel(ch)
		alive[ch.ID] = true
		if !h.tracker.IsTicketChannel(ch) {
			continue
		}
		if _, tracked := h.registry.Get(ch.ID); !tracked {
			h.tracker.ChannelCreated(ch)
			added++
		}
	}

	pruned := 0
	for _, id := range h.registry.ChannelIDs() {
		if alive[id] {
			continue
		}
		rec, ok := h.registry.Get(id)
		if !ok {
			continue
		}
		h.tracker.ChannelDeleted(domain.Channel{
			ID:      id,
			Name:    rec.ChannelName,
			GuildID: rec.GuildID,
		})
		pruned++
	}

	h.logger.Info("channel scan complete",
		zap.Int("channels", len(channels)),
		zap.Int("tickets_added", added),
		zap.Int("tickets_pruned", pruned))
}

// hydrateMembers fills the member cache. The privileged listing endpoint is
// tried first; a 403 falls back to the alphabet search sweep.
func (h *Hydrator) hydrateMembers(ctx context.Context) {
	total, err := h.listAll(ctx)
	if err == nil {
		h.logger.Info("member listing complete", zap.Int("added", total))
		h.membersChanged(total)
		return
	}
	if !platform.IsForbidden(err) {
		h.logger.Warn("member listing failed", zap.Error(err))
		return
	}

	h.logger.Info("member listing forbidden, falling back to search sweep")
	total = h.sweep(ctx)
	h.logger.Info("member sweep complete", zap.Int("added", total))
	h.membersChanged(total)
}

func (h *Hydrator) listAll(ctx context.Context) (int, error) {
	total := 0
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := h.client.ListMembers(ctx, h.cfg.GuildID, listPageSize, after)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}
		total += h.caches.UpsertMembers(page)
		after = page[len(page)-1].UserID
		if len(page) < listPageSize {
			return total, nil
		}
	}
}

// sweep queries the member search endpoint for every alphabet prefix, a few
// prefixes at a time, and stops early once additions plateau.
func (h *Hydrator) sweep(ctx context.Context) int {
	total := 0
	zeroBatches := 0

	for start := 0; start < len(sweepAlphabet); start += sweepParallelism {
		if ctx.Err() != nil {
			break
		}
		end := start + sweepParallelism
		if end > len(sweepAlphabet) {
			end = len(sweepAlphabet)
		}

		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			batchAdded int
		)
		for _, prefix := range sweepAlphabet[start:end] {
			wg.Add(1)
			go func(prefix string) {
				defer wg.Done()
				members, err := h.client.SearchMembers(ctx, h.cfg.GuildID, prefix, searchLimit)
				if err != nil {
					h.logger.Debug("member search failed",
						zap.String("prefix", prefix), zap.Error(err))
					return
				}
				added := h.caches.UpsertMembers(members)
				mu.Lock()
				batchAdded += added
				mu.Unlock()
			}(prefix)
		}
		wg.Wait()

		total += batchAdded
		if batchAdded == 0 {
			zeroBatches++
			if zeroBatches >= plateauBatches {
				h.logger.Debug("member sweep plateaued, stopping early")
				break
			}
		} else {
			zeroBatches = 0
		}

		select {
		case <-ctx.Done():
			return total
		case <-time.After(200 * time.Millisecond):
		}
	}
	return total
}

func (h *Hydrator) membersChanged(added int) {
	if added > 0 && h.onMembersChanged != nil {
		h.onMembersChanged()
	}
}
