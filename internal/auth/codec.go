package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/recipe-service/internal/domain"
)

// Claims describes the JWT payload.
type Claims struct {
	Roles []domain.Role `json:"roles"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into a request identity.
func (c *Claims) Identity() domain.Identity {
	roles := make([]domain.Role, len(c.Roles))
	copy(roles, c.Roles)
	return domain.Identity{SubjectID: c.Subject, Roles: roles}
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// TokenCodec signs and verifies HS512 JWTs with the key ring's current key.
// It holds no per-token state and is safe for concurrent use.
type TokenCodec struct {
	keys   *KeyRing
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec builds a codec over keys.
func NewTokenCodec(keys *KeyRing, issuer string, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		keys:   keys,
		issuer: issuer,
		now:    time.Now,
		parser: jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode issues a token for subjectID carrying roles, valid for ttl.
func (c *TokenCodec) Encode(subjectID string, roles []domain.Role, ttl time.Duration) (domain.IssuedToken, error) {
	if subjectID == "" {
		return domain.IssuedToken{}, errors.New("subject id required")
	}
	if ttl <= 0 {
		return domain.IssuedToken{}, errors.New("token ttl must be positive")
	}

	issuedAt := jwt.NewNumericDate(c.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(ttl))
	tokenRoles := make([]domain.Role, len(roles))
	copy(tokenRoles, roles)

	claims := &Claims{
		Roles: tokenRoles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subjectID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	key := c.keys.Current()
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	token.Header["kid"] = key.ID
	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	return domain.IssuedToken{
		Value:     signed,
		SubjectID: subjectID,
		Roles:     tokenRoles,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Decode verifies tokenStr and returns its claims. Expiry is evaluated before the
// signature, so an expired token reports KindExpired whatever its signature.
func (c *TokenCodec) Decode(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, parts, err := c.parser.ParseUnverified(tokenStr, claims)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, newError(KindSignatureInvalid, "unsupported algorithm", err)
		}
		return nil, newError(KindMalformed, "unparseable token", err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, newError(KindMalformed, "missing required claims", nil)
	}

	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, newError(KindExpired, "token expired at "+claims.ExpiresAt.Time.UTC().Format(time.RFC3339), nil)
	}

	if token.Method != jwt.SigningMethodHS512 {
		return nil, newError(KindSignatureInvalid, "unexpected signing method", nil)
	}
	signature, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, newError(KindMalformed, "undecodable signature", err)
	}
	// A kid that is not the current key's id means a rotated or foreign key.
	key := c.keys.Current()
	if kid, _ := token.Header["kid"].(string); kid != key.ID {
		return nil, newError(KindSignatureInvalid, "unknown key id", nil)
	}
	if err := jwt.SigningMethodHS512.Verify(strings.Join(parts[:2], "."), signature, key.Secret); err != nil {
		return nil, newError(KindSignatureInvalid, "signature mismatch", err)
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, newError(KindSignatureInvalid, "unexpected issuer", nil)
	}

	return claims, nil
}
