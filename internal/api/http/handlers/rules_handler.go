package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/autoreply"
	apperrors "github.com/spec-kit/support-gateway/pkg/util/errorutil"
)

// RulesHandler exposes the auto-reply rule set: inspection, hot reload from
// disk, and the delivery pause switch.
type RulesHandler struct {
	engine    *autoreply.Engine
	responder *autoreply.Responder
	rulesPath string
	logger    *zap.Logger
}

// NewRulesHandler returns a new handler instance.
func NewRulesHandler(engine *autoreply.Engine, responder *autoreply.Responder, rulesPath string, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{engine: engine, responder: responder, rulesPath: rulesPath, logger: logger}
}

// List returns the active rules and pause state.
func (h *RulesHandler) List(c *fiber.Ctx) error {
	rules := h.engine.Rules()
	return c.JSON(fiber.Map{
		"count":  len(rules),
		"rules":  rules,
		"paused": h.responder.Paused(),
	})
}

// Reload re-reads the rule file and swaps the engine config atomically. A
// broken file leaves the running rules untouched.
func (h *RulesHandler) Reload(c *fiber.Ctx) error {
	file, err := autoreply.LoadRulesFile(h.rulesPath)
	if err != nil {
		return apperrors.NewValidationError("rules file rejected", map[string]any{
			"path":  h.rulesPath,
			"error": err.Error(),
		})
	}
	h.engine.ReplaceConfig(file.Phrases, file.Rules)
	h.logger.Info("rules reloaded",
		zap.String("path", h.rulesPath),
		zap.Int("rules", len(file.Rules)))
	return c.JSON(fiber.Map{
		"status": "reloaded",
		"count":  len(file.Rules),
	})
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

// Pause toggles auto-reply delivery without touching the rule set.
func (h *RulesHandler) Pause(c *fiber.Ctx) error {
	var req pauseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	h.responder.SetPaused(req.Paused)
	h.logger.Info("auto-reply pause toggled", zap.Bool("paused", req.Paused))
	return c.JSON(fiber.Map{"paused": req.Paused})
}
