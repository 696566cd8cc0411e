package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/recipe-service/internal/service"
	apperrors "github.com/spec-kit/recipe-service/pkg/util/errorutil"
)

// UsersHandler serves credential profiles.
type UsersHandler struct {
	auth *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// OwnerID resolves the owner of /api/users/:id, which is the addressed subject.
func (h *UsersHandler) OwnerID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if id == "" {
		return "", apperrors.NewValidationError("id required", nil)
	}
	return id, nil
}

// Get handles GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	credential, err := h.auth.Profile(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(credential)})
}

// AdminPing handles GET /api/admin/ping.
func (h *UsersHandler) AdminPing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "scope": "admin"})
}
