package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/recipe-service/internal/api/dto"
	"github.com/spec-kit/recipe-service/internal/auth"
	"github.com/spec-kit/recipe-service/internal/domain"
	"github.com/spec-kit/recipe-service/internal/service"
	"github.com/spec-kit/recipe-service/internal/validation"
	apperrors "github.com/spec-kit/recipe-service/pkg/util/errorutil"
)

// AuthHandler exposes login, registration and identity endpoints.
type AuthHandler struct {
	auth     *service.AuthService
	validate *validation.Validator
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, validate *validation.Validator) *AuthHandler {
	return &AuthHandler{auth: authService, validate: validate}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Normalize()
	if err := h.validate.Struct(&req); err != nil {
		return err
	}

	token, err := h.auth.Login(c.UserContext(), req.Identifier, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{Token: token.Value, TokenType: "Bearer", ExpiresAt: token.ExpiresAt},
	})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(&req); err != nil {
		return err
	}

	credential, err := h.auth.Register(c.UserContext(), req.Identifier, req.Password)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(credential)})
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		return auth.ErrMissingToken
	}
	return c.JSON(fiber.Map{"data": dto.IdentityResponse{
		SubjectID: identity.SubjectID,
		Roles:     roleNames(identity.Roles),
	}})
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so the client
// discards its token; the server only acknowledges.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	identity, _ := auth.CurrentIdentity(c)
	if err := h.auth.Logout(c.UserContext(), identity); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func roleNames(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func userResponse(c *domain.Credential) dto.UserResponse {
	return dto.UserResponse{
		SubjectID:  c.SubjectID,
		Identifier: c.Identifier,
		Roles:      roleNames(c.Roles),
		CreatedAt:  c.CreatedAt,
	}
}
