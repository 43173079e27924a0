package auth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// ParseBearerToken decodes the backend's JWT without verifying its signature;
// the console never holds the backend signing key.
func ParseBearerToken(token string) (*BearerClaims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("token is empty")
	}

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(trimmed, claims); err != nil {
		return nil, fmt.Errorf("decode bearer token: %w", err)
	}

	out := &BearerClaims{
		Subject: stringClaim(claims["sub"]),
		Role:    stringClaim(claims["role"]),
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("decode exp claim: %w", err)
	}
	if exp != nil {
		t := exp.Time.UTC()
		out.ExpiresAt = &t
	}
	return out, nil
}

// sub is a string per RFC 7519 but some backends emit the numeric user id.
func stringClaim(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
