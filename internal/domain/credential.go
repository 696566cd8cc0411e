package domain

import "time"

// Role is a coarse permission label carried by credentials and tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Credential is the stored login record of one subject.
type Credential struct {
	SubjectID    string    `json:"subject_id"`
	Identifier   string    `json:"identifier"`
	PasswordHash string    `json:"password_hash"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasRole reports whether the credential grants role.
func (c *Credential) HasRole(role Role) bool {
	return containsRole(c.Roles, role)
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
