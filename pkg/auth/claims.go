package auth

import (
	"time"
)

// BearerClaims is the subset of the backend access token the console reads.
// The backend remains the authority; these values only drive presentation
// (own-order filtering) and local session expiry.
type BearerClaims struct {
	Subject   string
	Role      string
	ExpiresAt *time.Time
}

// Expired reports whether the token carried an exp claim that has passed.
func (c *BearerClaims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}
