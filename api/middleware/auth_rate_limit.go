package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/minierp-console/api/responses"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

// RateLimitStore counts attempts inside a window.
type RateLimitStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// AuthRateLimitPolicy throttles one session endpoint by client address and
// by submitted username. A zero limit turns that dimension off.
type AuthRateLimitPolicy struct {
	name          string
	window        time.Duration
	ipLimit       int
	usernameLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, usernameLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, usernameLimit: usernameLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.usernameLimit > 0)
}

// counter is one bucket a request is charged against.
type counter struct {
	kind  string
	value string
	limit int
}

func (p AuthRateLimitPolicy) counters(r *http.Request, body []byte) []counter {
	var out []counter
	if p.ipLimit > 0 {
		if ip := clientIP(r); ip != "" {
			out = append(out, counter{kind: "ip", value: ip, limit: p.ipLimit})
		}
	}
	if p.usernameLimit > 0 {
		if username := usernameFromBody(body); username != "" {
			out = append(out, counter{kind: "username", value: hashValue(username), limit: p.usernameLimit})
		}
	}
	return out
}

// AuthRateLimit charges each request against the policy's counters and
// answers 429 with Retry-After once any of them is over its limit.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if policy.usernameLimit > 0 {
				raw, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				body = raw
				r.Body = io.NopCloser(bytes.NewReader(raw))
			}

			for _, c := range policy.counters(r, body) {
				key := store.RateLimitKey(c.kind + ":" + policy.name + ":" + c.value)
				count, err := store.IncrWithTTL(ctx, key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(c.limit) {
					rejectRateLimited(ctx, logg, w, policy, c, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, c counter, count int64) {
	if logg != nil {
		field := "ip"
		if c.kind == "username" {
			field = "username_hash"
		}
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":   policy.name,
			"scope":    c.kind,
			field:      c.value,
			"attempts": count,
			"limit":    c.limit,
		}), "session attempt throttled")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

// clientIP prefers the first forwarded address, then X-Real-IP, then the
// socket peer. Unparseable header values are skipped.
func clientIP(r *http.Request) string {
	candidates := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	candidates = append(candidates, r.Header.Get("X-Real-IP"))
	for _, raw := range candidates {
		if addr, err := netip.ParseAddr(strings.TrimSpace(raw)); err == nil {
			return addr.Unmap().String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func usernameFromBody(payload []byte) string {
	var body struct {
		Username string `json:"username"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Username))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
