package http

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/recipe-service/internal/auth"
	apperrors "github.com/spec-kit/recipe-service/pkg/util/errorutil"
)

type authRenderer func(*auth.Error) *apperrors.DomainError

func unauthenticated(*auth.Error) *apperrors.DomainError {
	return apperrors.NewUnauthorized("unauthorized").(*apperrors.DomainError)
}

func forbidden(*auth.Error) *apperrors.DomainError {
	return apperrors.NewForbidden("forbidden").(*apperrors.DomainError)
}

func storeUnavailable(e *auth.Error) *apperrors.DomainError {
	return apperrors.NewServiceUnavailable("service temporarily unavailable").(*apperrors.DomainError).
		WithRetryAfter(e.RetryAfter)
}

func throttled(e *auth.Error) *apperrors.DomainError {
	return apperrors.NewTooManyRequests("too many requests").(*apperrors.DomainError).
		WithRetryAfter(e.RetryAfter)
}

// authErrorTable is the only place auth failure kinds become client responses.
// Every authentication kind renders the same body so callers cannot tell which
// check failed.
var authErrorTable = map[auth.Kind]authRenderer{
	auth.KindMalformed:        unauthenticated,
	auth.KindSignatureInvalid: unauthenticated,
	auth.KindExpired:          unauthenticated,
	auth.KindMissingToken:     unauthenticated,
	auth.KindNoSuchSubject:    unauthenticated,
	auth.KindBadPassword:      unauthenticated,
	auth.KindForbidden:        forbidden,
	auth.KindStoreUnavailable: storeUnavailable,
	auth.KindThrottled:        throttled,
}

// toDomainError renders any handler error as the client-facing DomainError.
func toDomainError(err error) *apperrors.DomainError {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		if render, ok := authErrorTable[authErr.Kind]; ok {
			domainErr := render(authErr)
			domainErr.Err = err
			return domainErr
		}
		return unauthenticated(authErr)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return apperrors.NewDomainError(fiberCode(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	}

	return apperrors.MapError(err).(*apperrors.DomainError)
}

func fiberCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "VALIDATION_FAILED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "REQUEST_FAILED"
}
