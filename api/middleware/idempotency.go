package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/api/validators"
	"github.com/angelmondragon/minierp-console/internal/products"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	pkgredis "github.com/angelmondragon/minierp-console/pkg/redis"
)

const (
	// IdempotencyHeader carries the client's retry key.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "Idempotent-Replayed"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// pendingTTL bounds how long a crashed request can block its key.
	pendingTTL = 2 * time.Minute
)

// importBodyBytes leaves room for the multipart envelope around an upload.
const importBodyBytes = products.MaxImportBytes + 1<<20

type idempotentRoute struct {
	ttl     time.Duration
	maxBody int64
}

// idempotentRoutes maps "METHOD pattern" to how long a success is replayed
// and how much body is buffered for hashing. Patterns are chi's full route
// patterns.
var idempotentRoutes = map[string]idempotentRoute{
	http.MethodPost + " /api/session/register":               {defaultIdempotencyTTL, validators.MaxJSONBodyBytes},
	http.MethodPost + " /api/admin/products":                 {defaultIdempotencyTTL, validators.MaxJSONBodyBytes},
	http.MethodPost + " /api/admin/products/import":          {defaultIdempotencyTTL, importBodyBytes},
	http.MethodPut + " /api/admin/products/{productId}":      {defaultIdempotencyTTL, validators.MaxJSONBodyBytes},
	http.MethodPatch + " /api/admin/orders/{orderId}/status": {defaultIdempotencyTTL, validators.MaxJSONBodyBytes},
	http.MethodPost + " /api/orders":                         {criticalIdempotencyTTL, validators.MaxJSONBodyBytes},
	http.MethodPost + " /api/orders/{orderId}/pay":           {criticalIdempotencyTTL, validators.MaxJSONBodyBytes},
}

type idempotencyRecord struct {
	Pending     bool              `json:"pending,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. The key is optional; requests without one pass through.
// While the first request runs, its key is reserved and repeats get 409.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := lookupRoute(r.Method, routePattern(r))
			idempotencyKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if !ok || store == nil || idempotencyKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, route.maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "request body exceeds %d bytes", tooLarge.Limit))
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), idempotencyKey)

			pending, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: requestHash})
			reserved, err := store.SetNX(ctx, key, string(pending), pendingTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayOrReject(ctx, w, store, key, requestHash, logg)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// Failures release the key so the client can retry with it.
			status := defaultStatus(rec.status)
			if status < 200 || status >= 300 {
				if delErr := store.Del(context.WithoutCancel(ctx), key); delErr != nil {
					logError(ctx, logg, "release idempotency key", delErr)
				}
				return
			}

			record := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}
			payload, err := json.Marshal(record)
			if err != nil {
				logError(ctx, logg, "marshal idempotency record", err)
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), key, string(payload), route.ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func replayOrReject(ctx context.Context, w http.ResponseWriter, store pkgredis.IdempotencyStore, key, requestHash string, logg *logger.Logger) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// The first request failed and released the key in between.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key was just retried; try again"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.Pending {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	}
	writeStoredResponse(w, record)
}

func buildScope(r *http.Request) string {
	parts := []string{
		ProfileIDFromContext(r.Context()),
		UsernameFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}
	return strings.Join(parts, "|")
}

func writeStoredResponse(w http.ResponseWriter, record idempotencyRecord) {
	if ct := record.Headers["Content-Type"]; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func lookupRoute(method, pattern string) (idempotentRoute, bool) {
	route, ok := idempotentRoutes[method+" "+pattern]
	return route, ok
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	route, ok := lookupRoute(method, pattern)
	return route.ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
