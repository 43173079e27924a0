package enums

import (
	"fmt"
	"strings"
)

// Role is the console permission level carried by an authenticated session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var validRoles = []Role{
	RoleUser,
	RoleAdmin,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
