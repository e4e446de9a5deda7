package core

import (
	"slices"
	"time"
)

// Claims is the verified subset of a bearer credential.
type Claims struct {
	Subject   string
	Email     string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether role is among the credential's roles.
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Roles, role)
}
