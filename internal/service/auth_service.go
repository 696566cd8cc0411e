package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/recipe-service/internal/auth"
	"github.com/spec-kit/recipe-service/internal/config"
	"github.com/spec-kit/recipe-service/internal/domain"
	"github.com/spec-kit/recipe-service/internal/events"
	"github.com/spec-kit/recipe-service/internal/repository"
	apperrors "github.com/spec-kit/recipe-service/pkg/util/errorutil"
)

// AuthService issues tokens for verified credentials and manages registration.
type AuthService struct {
	credentials  repository.CredentialStore
	attempts     repository.LoginAttemptRepository
	codec        *auth.TokenCodec
	audit        events.Dispatcher
	recorder     auth.OutcomeRecorder
	logger       *zap.Logger
	tokenTTL     time.Duration
	storeTimeout time.Duration
	hashCost     int
	decoyHash    string
}

// AuthDependencies encapsulates collaborators of the auth service. LoginAttempts,
// Audit and Recorder are optional.
type AuthDependencies struct {
	Credentials   repository.CredentialStore
	LoginAttempts repository.LoginAttemptRepository
	Codec         *auth.TokenCodec
	Audit         events.Dispatcher
	Recorder      auth.OutcomeRecorder
	Logger        *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	if deps.Credentials == nil || deps.Codec == nil {
		return nil, errors.New("auth service requires a credential store and a token codec")
	}
	decoy, err := auth.DecoyHash(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("decoy hash: %w", err)
	}
	// The decoy's cost is the effective cost after HashPassword's fallback.
	hashCost, err := auth.HashCost(decoy)
	if err != nil {
		return nil, fmt.Errorf("decoy hash cost: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		credentials:  deps.Credentials,
		attempts:     deps.LoginAttempts,
		codec:        deps.Codec,
		audit:        deps.Audit,
		recorder:     deps.Recorder,
		logger:       logger,
		tokenTTL:     cfg.AccessTokenTTL(),
		storeTimeout: cfg.StoreTimeout(),
		hashCost:     hashCost,
		decoyHash:    decoy,
	}, nil
}

// Login verifies identifier and password and issues a token. Unknown
// identifiers and wrong passwords fail with distinct kinds that the HTTP
// boundary renders identically.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (domain.IssuedToken, error) {
	identifier = strings.TrimSpace(identifier)

	if err := s.checkLockout(ctx, identifier); err != nil {
		return domain.IssuedToken{}, err
	}

	credential, err := s.lookup(ctx, identifier)
	switch {
	case errors.Is(err, repository.ErrCredentialNotFound):
		_ = auth.ComparePassword(s.decoyHash, password)
		return domain.IssuedToken{}, s.loginFailed(ctx, identifier, "", auth.NewError(auth.KindNoSuchSubject, "unknown identifier", nil))
	case err != nil:
		return domain.IssuedToken{}, s.storeFailure(ctx, err)
	}

	if err := auth.ComparePassword(credential.PasswordHash, password); err != nil {
		return domain.IssuedToken{}, s.loginFailed(ctx, identifier, credential.SubjectID, auth.NewError(auth.KindBadPassword, "password mismatch", nil))
	}

	s.rehashIfNeeded(ctx, credential, password)

	token, err := s.codec.Encode(credential.SubjectID, credential.Roles, s.tokenTTL)
	if err != nil {
		return domain.IssuedToken{}, apperrors.NewInternalError(err)
	}

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, identifier); err != nil {
			s.logger.Warn("reset login attempts failed", zap.Error(err))
		}
	}
	s.recordOutcome("succeeded")
	s.publish(ctx, events.NewEvent(events.EventLoginSucceeded, credential.SubjectID, map[string]string{
		"identifier": identifier,
		"expires_at": token.ExpiresAt.UTC().Format(time.RFC3339),
	}))
	return token, nil
}

// Register creates a credential with the default user role.
func (s *AuthService) Register(ctx context.Context, identifier, password string) (*domain.Credential, error) {
	identifier = strings.TrimSpace(identifier)
	hash, err := auth.HashPassword(password, s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, apperrors.NewValidationError("validation failed", map[string]any{
			"password": "password must be at most 72 bytes long",
		})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	credential := &domain.Credential{
		SubjectID:    uuid.NewString(),
		Identifier:   identifier,
		PasswordHash: hash,
		Roles:        []domain.Role{domain.RoleUser},
		CreatedAt:    time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.credentials.Create(storeCtx, credential); err != nil {
		if errors.Is(err, repository.ErrCredentialExists) {
			return nil, apperrors.NewConflict("identifier already registered", nil)
		}
		return nil, s.storeFailure(ctx, err)
	}
	return credential, nil
}

// Profile returns the credential of subjectID.
func (s *AuthService) Profile(ctx context.Context, subjectID string) (*domain.Credential, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	credential, err := s.credentials.GetBySubjectID(storeCtx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": subjectID})
		}
		return nil, s.storeFailure(ctx, err)
	}
	return credential, nil
}

// Logout is a no-op: tokens are stateless and expire naturally.
func (s *AuthService) Logout(_ context.Context, _ domain.Identity) error {
	return nil
}

func (s *AuthService) lookup(ctx context.Context, identifier string) (*domain.Credential, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.credentials.FindByIdentifier(lookupCtx, identifier)
}

// rehashIfNeeded moves a verified credential to the configured cost, so the
// decoy comparison for unknown identifiers keeps costing the same as a real one.
// Failures are logged and never fail the login.
func (s *AuthService) rehashIfNeeded(ctx context.Context, credential *domain.Credential, password string) {
	cost, err := auth.HashCost(credential.PasswordHash)
	if err != nil || cost == s.hashCost {
		return
	}
	hash, err := auth.HashPassword(password, s.hashCost)
	if err != nil {
		s.logger.Warn("rehash password failed", zap.String("subject_id", credential.SubjectID), zap.Error(err))
		return
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.credentials.UpdatePasswordHash(storeCtx, credential.Identifier, hash); err != nil {
		s.logger.Warn("store rehashed password failed", zap.String("subject_id", credential.SubjectID), zap.Error(err))
		return
	}
	s.logger.Info("password rehashed", zap.String("subject_id", credential.SubjectID), zap.Int("from_cost", cost), zap.Int("to_cost", s.hashCost))
}

func (s *AuthService) checkLockout(ctx context.Context, identifier string) error {
	if s.attempts == nil {
		return nil
	}
	locked, retryAfter, err := s.attempts.Locked(ctx, identifier)
	if err != nil {
		s.logger.Warn("login attempt lookup failed; continuing", zap.Error(err))
		return nil
	}
	if !locked {
		return nil
	}
	s.recordOutcome(auth.KindThrottled.String())
	return &auth.Error{Kind: auth.KindThrottled, Reason: "too many failed logins", RetryAfter: retryAfter}
}

func (s *AuthService) loginFailed(ctx context.Context, identifier, subjectID string, cause error) error {
	kind := auth.KindOf(cause)
	s.logger.Info("login failed", zap.String("identifier", identifier), zap.Stringer("kind", kind))
	if s.attempts != nil {
		if _, err := s.attempts.RecordFailure(ctx, identifier); err != nil {
			s.logger.Warn("record login failure failed", zap.Error(err))
		}
	}
	s.recordOutcome(kind.String())
	s.publish(ctx, events.NewEvent(events.EventLoginFailed, subjectID, map[string]string{
		"identifier": identifier,
		"reason":     kind.String(),
	}))
	return cause
}

// storeFailure surfaces store errors as retryable, except when the caller went
// away, in which case the cancellation is returned unchanged.
func (s *AuthService) storeFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.logger.Error("credential store unavailable", zap.Error(err))
	s.recordOutcome(auth.KindStoreUnavailable.String())
	return &auth.Error{Kind: auth.KindStoreUnavailable, Reason: "credential store unavailable", Err: err, RetryAfter: time.Second}
}

func (s *AuthService) recordOutcome(result string) {
	if s.recorder != nil {
		s.recorder.RecordAuthOutcome("login", result)
	}
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Publish(ctx, event); err != nil {
		s.logger.Warn("audit publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
