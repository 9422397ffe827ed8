package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-gateway/internal/archive"
	"github.com/spec-kit/support-gateway/internal/gateway"
	"github.com/spec-kit/support-gateway/internal/observability"
	"github.com/spec-kit/support-gateway/internal/tickets"
	apperrors "github.com/spec-kit/support-gateway/pkg/util/errorutil"
)

// StatsHandler aggregates operational counters for the dashboard.
type StatsHandler struct {
	registry     *tickets.Registry
	timers       *tickets.TimerRegistry
	caches       *gateway.Caches
	metrics      *observability.Metrics
	store        *archive.Store
	gatewayState func() string
}

// NewStatsHandler returns a new handler instance.
func NewStatsHandler(
	registry *tickets.Registry,
	timers *tickets.TimerRegistry,
	caches *gateway.Caches,
	metrics *observability.Metrics,
	store *archive.Store,
	gatewayState func() string,
) *StatsHandler {
	return &StatsHandler{
		registry:     registry,
		timers:       timers,
		caches:       caches,
		metrics:      metrics,
		store:        store,
		gatewayState: gatewayState,
	}
}

// Stats returns the aggregated snapshot.
func (h *StatsHandler) Stats(c *fiber.Ctx) error {
	opened, closed := h.registry.Totals()
	channels, roles, members, presences := h.caches.Counts()
	dispatch, reconnects, replies := h.metrics.Snapshot()

	stats := fiber.Map{
		"gateway_state": h.gatewayState(),
		"tickets": fiber.Map{
			"open":          h.registry.Len(),
			"opened_total":  opened,
			"closed_total":  closed,
			"active_timers": h.timers.Active(),
		},
		"caches": fiber.Map{
			"channels":  channels,
			"roles":     roles,
			"members":   members,
			"presences": presences,
		},
		"gateway": fiber.Map{
			"dispatch":   dispatch,
			"reconnects": reconnects,
		},
		"replies_sent": replies,
	}

	if avg, ok, err := h.store.AverageFirstReply(c.UserContext()); err != nil {
		return apperrors.MapError(err)
	} else if ok {
		stats["avg_first_reply_seconds"] = avg
	}

	return c.JSON(stats)
}
