package auth

import (
	"crypto/rand"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value. The salt and
// cost are read from the stored hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// DecoyHash returns a hash of random bytes at cost. Comparing against it costs
// the same as a real comparison and never succeeds.
func DecoyHash(cost int) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return HashPassword(string(buf), cost)
}

// HashCost returns the bcrypt cost a stored hash was made with.
func HashCost(hashed string) (int, error) {
	return bcrypt.Cost([]byte(hashed))
}
