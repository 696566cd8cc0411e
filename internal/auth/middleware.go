package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/recipe-service/internal/domain"
)

// TokenState is the state of the bearer token after inspection.
type TokenState string

const (
	TokenAbsent  TokenState = "no_token"
	TokenValid   TokenState = "valid"
	TokenInvalid TokenState = "invalid"
	TokenExpired TokenState = "expired"
)

// Outcome is the terminal state of request authentication.
type Outcome string

const (
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeAnonymous     Outcome = "anonymous"
	OutcomeRejected      Outcome = "rejected"
)

// Evaluation captures one pass of the authenticator over a request.
type Evaluation struct {
	Token    TokenState
	Outcome  Outcome
	Identity domain.Identity
	Err      error
}

// OutcomeRecorder receives authentication and authorization results for metrics.
type OutcomeRecorder interface {
	RecordAuthOutcome(stage, result string)
}

// Authenticator validates bearer tokens and attaches the caller identity to the
// request context.
type Authenticator struct {
	codec    *TokenCodec
	logger   *zap.Logger
	recorder OutcomeRecorder
}

// NewAuthenticator constructs the middleware. recorder may be nil.
func NewAuthenticator(codec *TokenCodec, logger *zap.Logger, recorder OutcomeRecorder) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{codec: codec, logger: logger, recorder: recorder}
}

// Evaluate runs the token state machine for an Authorization header value.
// It has no side effects: the same header always yields the same evaluation
// until the token expires.
func (a *Authenticator) Evaluate(authHeader string, required bool) Evaluation {
	ev := Evaluation{Token: TokenAbsent}

	raw, err := bearerToken(authHeader)
	switch {
	case err != nil && KindOf(err) == KindMissingToken:
		ev.Err = err
	case err != nil:
		ev.Token = TokenInvalid
		ev.Err = err
	default:
		claims, decodeErr := a.codec.Decode(raw)
		if decodeErr != nil {
			ev.Token = TokenInvalid
			if KindOf(decodeErr) == KindExpired {
				ev.Token = TokenExpired
			}
			ev.Err = decodeErr
		} else {
			ev.Token = TokenValid
			ev.Identity = claims.Identity()
		}
	}

	switch {
	case ev.Token == TokenValid:
		ev.Outcome = OutcomeAuthenticated
	case required:
		ev.Outcome = OutcomeRejected
	default:
		ev.Outcome = OutcomeAnonymous
	}
	return ev
}

// Require rejects requests without a valid token.
func (a *Authenticator) Require() fiber.Handler {
	return a.handle(true)
}

// Optional attaches an identity when a valid token is presented and lets every
// other request through anonymously.
func (a *Authenticator) Optional() fiber.Handler {
	return a.handle(false)
}

func (a *Authenticator) handle(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ev := a.Evaluate(c.Get(fiber.HeaderAuthorization), required)
		a.record(ev)

		switch ev.Outcome {
		case OutcomeRejected:
			a.logger.Warn("request rejected",
				zap.String("path", c.Path()),
				zap.String("token_state", string(ev.Token)),
				zap.Error(ev.Err),
			)
			return ev.Err
		case OutcomeAnonymous:
			if ev.Token != TokenAbsent {
				a.logger.Debug("ignoring unusable token on public route",
					zap.String("path", c.Path()),
					zap.String("token_state", string(ev.Token)),
					zap.Error(ev.Err),
				)
			}
			return c.Next()
		}

		c.SetUserContext(WithIdentity(c.UserContext(), ev.Identity))
		return c.Next()
	}
}

func (a *Authenticator) record(ev Evaluation) {
	if a.recorder == nil {
		return
	}
	result := string(ev.Outcome)
	if ev.Err != nil {
		result = KindOf(ev.Err).String()
	}
	a.recorder.RecordAuthOutcome("authenticate", result)
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", newError(KindMissingToken, "missing authorization header", nil)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", newError(KindMalformed, "invalid authorization header", nil)
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", newError(KindMalformed, "empty bearer token", nil)
	}
	return token, nil
}
