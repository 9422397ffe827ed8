package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-gateway/internal/autoreply"
	"github.com/spec-kit/support-gateway/internal/domain"
	apperrors "github.com/spec-kit/support-gateway/pkg/util/errorutil"
)

// SimulateHandler runs the decision engine against arbitrary input without
// sending anything. Operators use it to preview rule behavior.
type SimulateHandler struct {
	engine *autoreply.Engine
}

// NewSimulateHandler returns a new handler instance.
func NewSimulateHandler(engine *autoreply.Engine) *SimulateHandler {
	return &SimulateHandler{engine: engine}
}

type simulateRequest struct {
	Content   string `json:"content"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Source    string `json:"source"`
}

// Simulate evaluates the input and returns the full decision.
func (h *SimulateHandler) Simulate(c *fiber.Ctx) error {
	var req simulateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	source := domain.DecisionSource(req.Source)
	if source != domain.SourcePoll {
		source = domain.SourceGateway
	}

	decision := h.engine.Evaluate(autoreply.Input{
		Content:   req.Content,
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Source:    source,
	})
	return c.JSON(decision)
}
