package auth

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an authentication or authorization failure. Kinds are for
// logging and metrics; the HTTP boundary collapses them into uniform responses.
type Kind int

const (
	KindMalformed Kind = iota + 1
	KindSignatureInvalid
	KindExpired
	KindMissingToken
	KindNoSuchSubject
	KindBadPassword
	KindStoreUnavailable
	KindThrottled
	KindForbidden
)

var kindNames = map[Kind]string{
	KindMalformed:        "malformed",
	KindSignatureInvalid: "signature_invalid",
	KindExpired:          "expired",
	KindMissingToken:     "missing_token",
	KindNoSuchSubject:    "no_such_subject",
	KindBadPassword:      "bad_password",
	KindStoreUnavailable: "store_unavailable",
	KindThrottled:        "throttled",
	KindForbidden:        "forbidden",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type produced by the auth layer.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
	// RetryAfter hints when a throttled or unavailable operation may succeed.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, ErrExpired) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrMalformed        = &Error{Kind: KindMalformed}
	ErrSignatureInvalid = &Error{Kind: KindSignatureInvalid}
	ErrExpired          = &Error{Kind: KindExpired}
	ErrMissingToken     = &Error{Kind: KindMissingToken}
	ErrNoSuchSubject    = &Error{Kind: KindNoSuchSubject}
	ErrBadPassword      = &Error{Kind: KindBadPassword}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrThrottled        = &Error{Kind: KindThrottled}
	ErrForbidden        = &Error{Kind: KindForbidden}
)

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// NewError builds an auth error of the given kind.
func NewError(kind Kind, reason string, err error) error {
	return newError(kind, reason, err)
}

// KindOf extracts the failure kind from err, or 0 if err is not an auth error.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return 0
}

// IsAuthenticationFailure reports whether err must surface as "unauthenticated".
func IsAuthenticationFailure(err error) bool {
	switch KindOf(err) {
	case KindMalformed, KindSignatureInvalid, KindExpired, KindMissingToken, KindNoSuchSubject, KindBadPassword:
		return true
	}
	return false
}
