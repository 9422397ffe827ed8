package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-gateway/internal/archive"
	"github.com/spec-kit/support-gateway/internal/tickets"
	apperrors "github.com/spec-kit/support-gateway/pkg/util/errorutil"
)

// TicketsHandler serves the live registry and the closed-ticket archive.
type TicketsHandler struct {
	registry *tickets.Registry
	store    *archive.Store
}

// NewTicketsHandler returns a new handler instance.
func NewTicketsHandler(registry *tickets.Registry, store *archive.Store) *TicketsHandler {
	return &TicketsHandler{registry: registry, store: store}
}

// Active lists open tickets, newest first.
func (h *TicketsHandler) Active(c *fiber.Ctx) error {
	records := h.registry.Snapshot()
	return c.JSON(fiber.Map{
		"count":   len(records),
		"tickets": records,
	})
}

// Closed lists archived tickets.
func (h *TicketsHandler) Closed(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	closed, err := h.store.ListClosed(c.UserContext(), limit)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{
		"count":   len(closed),
		"tickets": closed,
	})
}

// Transcript returns the archived messages of one closed ticket.
func (h *TicketsHandler) Transcript(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return apperrors.NewValidationError("ticket id is required", nil)
	}
	messages, err := h.store.Transcript(c.UserContext(), id)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{
		"ticket_id": id,
		"messages":  messages,
	})
}
