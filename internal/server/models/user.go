// Package models holds the server-side data model: users, instances, and
// the closed role/status variant sets.
package models

import "time"

// User is a credential-store record. Password holds the salted digest in
// "hash.salt" form; both halves are hex-encoded, so the "." delimiter can
// never appear inside either component.
type User struct {
	ID        int64
	Username  string
	Password  string
	Role      Role
	CreatedAt time.Time
}

// UserInfo is the listing projection of a User, with no password material.
type UserInfo struct {
	ID       int64
	Username string
	Role     Role
}
