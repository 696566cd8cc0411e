package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/recipe-service/internal/domain"
)

type identityKey struct{}

// WithIdentity returns a child context carrying identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext retrieves the identity attached by the authenticator.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	if ctx == nil {
		return domain.Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(domain.Identity)
	return identity, ok
}

// CurrentIdentity reads the identity of the in-flight Fiber request.
func CurrentIdentity(c *fiber.Ctx) (domain.Identity, bool) {
	return IdentityFromContext(c.UserContext())
}
