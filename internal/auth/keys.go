package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync/atomic"
)

// MinSecretLength is the shortest HMAC secret accepted for HS512 signing.
const MinSecretLength = 32

// ErrWeakSecret is returned when a signing secret is too short.
var ErrWeakSecret = errors.New("signing secret must be at least 32 bytes")

// SigningKey is an immutable HMAC secret with a derived key id.
type SigningKey struct {
	ID     string
	Secret []byte
}

// NewSigningKey copies secret and derives a stable key id from it.
func NewSigningKey(secret []byte) (*SigningKey, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	buf := make([]byte, len(secret))
	copy(buf, secret)
	sum := sha256.Sum256(buf)
	return &SigningKey{ID: hex.EncodeToString(sum[:8]), Secret: buf}, nil
}

// KeyRing holds the current signing key behind an atomic pointer. Readers never
// block; Rotate swaps the key between requests.
type KeyRing struct {
	current atomic.Pointer[SigningKey]
}

// NewKeyRing returns a ring holding secret.
func NewKeyRing(secret []byte) (*KeyRing, error) {
	key, err := NewSigningKey(secret)
	if err != nil {
		return nil, err
	}
	ring := &KeyRing{}
	ring.current.Store(key)
	return ring, nil
}

// Current returns the active key.
func (r *KeyRing) Current() *SigningKey {
	return r.current.Load()
}

// Rotate installs secret as the active key and returns the new key.
func (r *KeyRing) Rotate(secret []byte) (*SigningKey, error) {
	key, err := NewSigningKey(secret)
	if err != nil {
		return nil, err
	}
	r.current.Store(key)
	return key, nil
}
