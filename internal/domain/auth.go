package domain

import "time"

// IssuedToken is the result of a successful login.
type IssuedToken struct {
	Value     string
	SubjectID string
	Roles     []Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity is the authenticated caller of a single request. It is built from a
// verified token and never outlives the request.
type Identity struct {
	SubjectID string
	Roles     []Role
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role Role) bool {
	return containsRole(i.Roles, role)
}

// IsAdmin reports whether the identity holds the administrative override.
func (i Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}
