package dto

import "time"

// LoginRequest payload for POST /api/auth/login. Username is accepted as an
// alias of identifier.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=128"`
	Username   string `json:"username,omitempty" validate:"-"`
	Password   string `json:"password" validate:"required,bcryptmax"`
}

// Normalize folds the username alias into Identifier.
func (r *LoginRequest) Normalize() {
	if r.Identifier == "" {
		r.Identifier = r.Username
	}
}

// RegisterRequest payload for POST /api/auth/register.
type RegisterRequest struct {
	Identifier string `json:"identifier" validate:"required,min=3,max=64,identifier"`
	Password   string `json:"password" validate:"required,min=8,bcryptmax"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdentityResponse describes the authenticated caller.
type IdentityResponse struct {
	SubjectID string   `json:"subject_id"`
	Roles     []string `json:"roles"`
}

// UserResponse is the public view of a credential.
type UserResponse struct {
	SubjectID  string    `json:"subject_id"`
	Identifier string    `json:"identifier"`
	Roles      []string  `json:"roles"`
	CreatedAt  time.Time `json:"created_at"`
}
