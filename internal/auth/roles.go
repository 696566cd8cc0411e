package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/recipe-service/internal/domain"
	"github.com/spec-kit/recipe-service/internal/events"
)

// Decision is the result of an authorization check.
type Decision string

const (
	Allowed Decision = "allowed"
	Denied  Decision = "denied"
)

// Requirement describes what an action needs: a role, or ownership of a resource.
type Requirement struct {
	Role    domain.Role
	OwnerID string
}

// RoleRequirement requires the caller to hold role.
func RoleRequirement(role domain.Role) Requirement {
	return Requirement{Role: role}
}

// OwnerRequirement requires the caller to own the resource owned by ownerID.
func OwnerRequirement(ownerID string) Requirement {
	return Requirement{OwnerID: ownerID}
}

// Gate maps (identity, requirement) to a decision. The admin role overrides
// every requirement.
type Gate struct {
	logger   *zap.Logger
	audit    events.Dispatcher
	recorder OutcomeRecorder
}

// NewGate builds a gate. audit and recorder may be nil.
func NewGate(logger *zap.Logger, audit events.Dispatcher, recorder OutcomeRecorder) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{logger: logger, audit: audit, recorder: recorder}
}

// Authorize decides whether identity satisfies req and explains a denial.
func (g *Gate) Authorize(identity domain.Identity, req Requirement) (Decision, string) {
	if identity.IsAdmin() {
		return Allowed, ""
	}
	if req.OwnerID != "" {
		if identity.SubjectID != "" && identity.SubjectID == req.OwnerID {
			return Allowed, ""
		}
		return Denied, "caller does not own resource"
	}
	if req.Role == "" {
		return Denied, "empty requirement"
	}
	if identity.HasRole(req.Role) {
		return Allowed, ""
	}
	return Denied, "missing role " + string(req.Role)
}

// Check authorizes and converts a denial into a forbidden error, logging and
// auditing the reason.
func (g *Gate) Check(ctx context.Context, identity domain.Identity, req Requirement) error {
	decision, reason := g.Authorize(identity, req)
	if g.recorder != nil {
		g.recorder.RecordAuthOutcome("authorize", string(decision))
	}
	if decision == Allowed {
		return nil
	}

	g.logger.Warn("access denied", zap.String("subject_id", identity.SubjectID), zap.String("reason", reason))
	if g.audit != nil {
		event := events.NewEvent(events.EventAccessDenied, identity.SubjectID, map[string]string{"reason": reason})
		if err := g.audit.Publish(ctx, event); err != nil {
			g.logger.Warn("audit publish failed", zap.Error(err))
		}
	}
	return newError(KindForbidden, reason, nil)
}

// RequireRole allows callers holding role, and administrators.
func (g *Gate) RequireRole(role domain.Role) fiber.Handler {
	return g.RequireAnyRole(role)
}

// RequireAnyRole allows callers holding at least one of roles.
func (g *Gate) RequireAnyRole(roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return newError(KindMissingToken, "no identity on request", nil)
		}
		req := Requirement{}
		for _, role := range roles {
			req = RoleRequirement(role)
			if identity.HasRole(role) {
				break
			}
		}
		if err := g.Check(c.UserContext(), identity, req); err != nil {
			return err
		}
		return c.Next()
	}
}

// OwnerResolver returns the owner subject id of the resource addressed by c.
type OwnerResolver func(c *fiber.Ctx) (string, error)

// RequireOwner allows the resource owner and administrators.
func (g *Gate) RequireOwner(resolve OwnerResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return newError(KindMissingToken, "no identity on request", nil)
		}
		ownerID, err := resolve(c)
		if err != nil {
			return err
		}
		if err := g.Check(c.UserContext(), identity, OwnerRequirement(ownerID)); err != nil {
			return err
		}
		return c.Next()
	}
}
