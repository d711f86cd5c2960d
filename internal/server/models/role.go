package models

import "fmt"

// Role is a closed set of operator roles. The zero value is not a valid
// role, so an unset field never passes an authorization check.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleVisitor Role = "VISITOR"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleVisitor:
		return true
	}
	return false
}

// ParseRole converts a stored or transmitted string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// In reports whether r is a member of roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}
