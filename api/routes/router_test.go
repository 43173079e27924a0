package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/minierp-console/api/controllers"
	"github.com/angelmondragon/minierp-console/api/middleware"
	"github.com/angelmondragon/minierp-console/internal/console"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
	"github.com/angelmondragon/minierp-console/pkg/redis"
	"github.com/angelmondragon/minierp-console/pkg/storage"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

// fakeERP is an in-memory stand-in for the remote REST backend.
type fakeERP struct {
	mu            sync.Mutex
	orders        []map[string]any
	createCalls   int
	statusCalls   int
	lastOrderBody string
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return token
}

func (f *fakeERP) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
			return
		}
		role, sub := "user", "7"
		if body.Username == "root" {
			role, sub = "admin", "1"
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": signToken(t, sub), "role": role, "token_type": "bearer"})
	})
	mux.HandleFunc("GET /products/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "name": "Widget", "slug": "widget", "price": 10, "qty_in_stock": 5},
			{"id": 2, "name": "Gadget", "slug": "gadget", "price": 5, "qty_in_stock": 0},
		})
	})
	mux.HandleFunc("GET /orders/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.orders)
	})
	mux.HandleFunc("POST /orders/", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.createCalls++
		f.lastOrderBody = string(raw)
		order := map[string]any{
			"id":           100 + len(f.orders),
			"user_id":      7,
			"status":       "NEW",
			"total_amount": "30.00",
			"created_at":   "2026-03-01T12:00:00",
		}
		f.orders = append(f.orders, order)
		writeJSON(w, http.StatusCreated, order)
	})
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, order := range f.orders {
			if fmt.Sprint(order["id"]) == r.PathValue("id") {
				writeJSON(w, http.StatusOK, order)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Order not found"})
	})
	mux.HandleFunc("PATCH /orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			NewStatus string `json:"new_status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.statusCalls++
		for _, order := range f.orders {
			if fmt.Sprint(order["id"]) == r.PathValue("id") {
				order["status"] = body.NewStatus
				writeJSON(w, http.StatusOK, order)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Order not found"})
	})
	return mux
}

type harness struct {
	t       *testing.T
	erp     *fakeERP
	handler http.Handler
}

func newHarness(t *testing.T, idempotency redis.IdempotencyStore) *harness {
	t.Helper()
	erp := &fakeERP{}
	server := httptest.NewServer(erp.handler(t))
	t.Cleanup(server.Close)

	backend, err := gateway.NewClient(gateway.WithBaseURL(server.URL))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	registry, err := console.NewRegistry(console.Deps{
		State:        storage.NewMemory(),
		Backend:      backend,
		OrderMetrics: metrics.NewOrderMetrics(reg),
	})
	require.NoError(t, err)

	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	handler := NewRouter(cfg, nil, registry, map[string]controllers.Pinger{"state": stubPinger{}}, nil, idempotency, reg)
	return &harness{t: t, erp: erp, handler: handler}
}

func (h *harness) do(profile, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if profile != "" {
		req.Header.Set(middleware.ProfileHeader, profile)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Error.Code
}

type cartView struct {
	Owner string `json:"owner"`
	Items []struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
		Stock     int   `json:"stock"`
	} `json:"items"`
	Total string `json:"total"`
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do("", http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dev", rec.Header().Get("X-MiniERP-Env"))

	rec = h.do("", http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do("", http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `console_http_request_duration_seconds_count{class="2xx",method="GET",route="/health/live"} 1`)
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	handler := controllers.HealthReady(cfg, map[string]controllers.Pinger{
		"state": stubPinger{err: errors.New("connection refused")},
		"redis": nil,
	}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newHarness(t, nil)
	profile := uuid.NewString()

	rec := h.do(profile, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(profile, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Authenticated bool `json:"authenticated"`
	}
	decodeData(t, rec, &view)
	require.False(t, view.Authenticated)
}

func TestLoginRejectedByBackend(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(uuid.NewString(), http.MethodPost, "/api/session/login", `{"username":"alice","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Incorrect username or password")

	rec = h.do(uuid.NewString(), http.MethodPost, "/api/session/login", `{"username":" ","password":"secret"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShopperPlacesOrderFromCart(t *testing.T) {
	h := newHarness(t, nil)
	profile := uuid.NewString()

	rec := h.do(profile, http.MethodPost, "/api/session/login", `{"username":"alice","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(profile, http.MethodGet, "/api/products?sort=name_asc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(profile, http.MethodGet, "/api/products?sort=cheapest", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(profile, http.MethodPost, "/api/cart/items", `{"product_id":2,"quantity":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "out of stock products are rejected")

	rec = h.do(profile, http.MethodPost, "/api/cart/items", `{"product_id":1,"quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(profile, http.MethodPost, "/api/cart/items/1/increment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cart cartView
	decodeData(t, rec, &cart)
	require.Equal(t, "alice", cart.Owner)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 3, cart.Items[0].Quantity)
	require.Equal(t, "30", cart.Total)

	rec = h.do(profile, http.MethodPut, "/api/cart/items/1", `{"quantity":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &cart)
	require.Equal(t, 1, cart.Items[0].Quantity)

	rec = h.do(profile, http.MethodPut, "/api/cart/items/1", `{"quantity":99}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &cart)
	require.Equal(t, 5, cart.Items[0].Quantity)

	rec = h.do(profile, http.MethodPost, "/api/cart/items/42/increment", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(profile, http.MethodPost, "/api/orders", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placement struct {
		Order struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
		Orders []json.RawMessage `json:"orders"`
	}
	decodeData(t, rec, &placement)
	require.Equal(t, int64(100), placement.Order.ID)
	require.Len(t, placement.Orders, 1)
	require.JSONEq(t, `{"items":[{"product_id":1,"quantity":5}]}`, h.erp.lastOrderBody)

	rec = h.do(profile, http.MethodGet, "/api/cart", "")
	decodeData(t, rec, &cart)
	require.Empty(t, cart.Items)

	rec = h.do(profile, http.MethodGet, "/api/orders/100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		CanPay          bool     `json:"can_pay"`
		AllowedStatuses []string `json:"allowed_statuses"`
	}
	decodeData(t, rec, &detail)
	require.True(t, detail.CanPay)
	require.Empty(t, detail.AllowedStatuses)

	rec = h.do(profile, http.MethodPatch, "/api/admin/orders/100/status", `{"new_status":"PAID"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEmptyCartNeverReachesBackend(t *testing.T) {
	h := newHarness(t, nil)
	profile := uuid.NewString()
	require.Equal(t, http.StatusOK, h.do(profile, http.MethodPost, "/api/session/login", `{"username":"alice","password":"secret"}`).Code)

	rec := h.do(profile, http.MethodPost, "/api/orders", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
	require.Zero(t, h.erp.createCalls)
}

func TestAdminStatusTransitions(t *testing.T) {
	h := newHarness(t, nil)
	shopper := uuid.NewString()
	admin := uuid.NewString()

	require.Equal(t, http.StatusOK, h.do(shopper, http.MethodPost, "/api/session/login", `{"username":"alice","password":"secret"}`).Code)
	require.Equal(t, http.StatusOK, h.do(shopper, http.MethodPost, "/api/cart/items", `{"product_id":1}`).Code)
	require.Equal(t, http.StatusCreated, h.do(shopper, http.MethodPost, "/api/orders", "").Code)

	require.Equal(t, http.StatusOK, h.do(admin, http.MethodPost, "/api/session/login", `{"username":"root","password":"secret"}`).Code)

	rec := h.do(admin, http.MethodGet, "/api/orders/100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		CanPay          bool     `json:"can_pay"`
		AllowedStatuses []string `json:"allowed_statuses"`
	}
	decodeData(t, rec, &detail)
	require.False(t, detail.CanPay)
	require.ElementsMatch(t, []string{"NEW", "PAID", "CANCELED"}, detail.AllowedStatuses)

	rec = h.do(admin, http.MethodPatch, "/api/admin/orders/100/status", `{"new_status":"NEW","current_status":"NEW"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Applied bool `json:"applied"`
	}
	decodeData(t, rec, &result)
	require.False(t, result.Applied)
	require.Zero(t, h.erp.statusCalls)

	rec = h.do(admin, http.MethodPatch, "/api/admin/orders/100/status", `{"new_status":"SHIPPED"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "STATE_CONFLICT", errorCode(t, rec))
	require.Zero(t, h.erp.statusCalls)

	rec = h.do(admin, http.MethodPatch, "/api/admin/orders/100/status", `{"new_status":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &result)
	require.True(t, result.Applied)
	require.Equal(t, 1, h.erp.statusCalls)

	rec = h.do(admin, http.MethodPatch, "/api/admin/orders/100/status", `{"new_status":"CANCELED","current_status":"NEW"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "STATE_CONFLICT", errorCode(t, rec))
	require.Equal(t, 1, h.erp.statusCalls)

	rec = h.do(admin, http.MethodPatch, "/api/admin/orders/100/status", `{"new_status":"LOST"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(admin, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		TotalOrders int `json:"total_orders"`
		PaidOrders  int `json:"paid_orders"`
	}
	decodeData(t, rec, &stats)
	require.Equal(t, 1, stats.TotalOrders)
	require.Equal(t, 1, stats.PaidOrders)
}

func TestPlacementReplaysWithIdempotencyKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), config.RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	h := newHarness(t, client)
	profile := uuid.NewString()
	require.Equal(t, http.StatusOK, h.do(profile, http.MethodPost, "/api/session/login", `{"username":"alice","password":"secret"}`).Code)
	require.Equal(t, http.StatusOK, h.do(profile, http.MethodPost, "/api/cart/items", `{"product_id":1}`).Code)

	first := h.do(profile, http.MethodPost, "/api/orders", "", middleware.IdempotencyHeader, "order-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	replay := h.do(profile, http.MethodPost, "/api/orders", "", middleware.IdempotencyHeader, "order-1")
	require.Equal(t, http.StatusCreated, replay.Code)
	require.JSONEq(t, first.Body.String(), replay.Body.String())
	require.Equal(t, 1, h.erp.createCalls)
}
