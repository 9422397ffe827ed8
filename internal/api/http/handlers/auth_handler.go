package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-gateway/internal/auth"
	"github.com/spec-kit/support-gateway/internal/config"
	apperrors "github.com/spec-kit/support-gateway/pkg/util/errorutil"
)

// AuthHandler exposes dashboard login.
type AuthHandler struct {
	cfg    config.AuthConfig
	tokens *auth.TokenManager
}

// NewAuthHandler returns a new handler instance.
func NewAuthHandler(cfg config.AuthConfig, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, tokens: tokens}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks the configured admin credential and issues a JWT.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.Username == "" || req.Password == "" {
		return apperrors.NewValidationError("username and password are required", nil)
	}
	if h.cfg.AdminPasswordHash == "" {
		return apperrors.NewUnauthorized("dashboard login not configured")
	}
	if req.Username != h.cfg.AdminUsername ||
		auth.ComparePassword(h.cfg.AdminPasswordHash, req.Password) != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.Username)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{
		"access_token": token,
		"expires_at":   expiresAt,
	})
}
