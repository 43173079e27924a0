package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/minierp-console/api/validators"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"place order", http.MethodPost, "/api/orders", criticalIdempotencyTTL, true},
		{"pay order", http.MethodPost, "/api/orders/{orderId}/pay", criticalIdempotencyTTL, true},
		{"status change", http.MethodPatch, "/api/admin/orders/{orderId}/status", defaultIdempotencyTTL, true},
		{"create product", http.MethodPost, "/api/admin/products", defaultIdempotencyTTL, true},
		{"update product", http.MethodPut, "/api/admin/products/{productId}", defaultIdempotencyTTL, true},
		{"delete product", http.MethodDelete, "/api/admin/products/{productId}", 0, false},
		{"list orders", http.MethodGet, "/api/orders", 0, false},
		{"cart add", http.MethodPost, "/api/cart/items", 0, false},
		{"non idempotent", http.MethodPost, "/api/session/login", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewarePassesThroughWithoutKey(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{"foo":"bar"}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if !handlerCalled {
		t.Fatalf("handler should run without idempotency key")
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", resp.Code)
	}

	replay := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{"foo":"bar"}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if rec.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if resp.Header().Get(ReplayedHeader) != "" {
		t.Fatalf("first response must not carry the replay marker")
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)

	var nestedCode int
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A duplicate arriving while this request still runs.
		dup := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{}`))
		dup.Header.Set(IdempotencyHeader, "busy")
		rec := httptest.NewRecorder()
		mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatalf("duplicate must not reach the handler")
		})).ServeHTTP(rec, dup)
		nestedCode = rec.Code
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyHeader, "busy")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if nestedCode != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %d", nestedCode)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected the final record to be stored, got %d entries", len(store.data))
	}
	for _, raw := range store.data {
		var record idempotencyRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		if record.Pending || record.Status != http.StatusCreated {
			t.Fatalf("unexpected stored record %+v", record)
		}
	}
}

func TestIdempotencyMiddlewareIgnoresUnlistedRoutes(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/cart/items", "/api/cart/items", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyHeader, "same")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 || len(store.data) != 0 {
		t.Fatalf("unlisted route should pass through, calls=%d stored=%d", calls, len(store.data))
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{"foo":"diff"}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyMiddlewareDoesNotStoreFailures(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyHeader, "retry-me")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected failed responses to be retried, got %d calls", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("failed responses should not be stored")
	}
}

func TestIdempotencyScopeIncludesProfile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	ctx := context.WithValue(req.Context(), ctxProfileID, "p1")
	ctx = withActor(ctx, "alice", "user")
	got := buildScope(req.WithContext(ctx))
	if got != "p1|alice|POST|/api/orders" {
		t.Fatalf("unexpected scope %q", got)
	}
}

func TestIdempotencyMiddlewareReplaysProductUpdate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":7}`))
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPut, "/api/admin/products/7", "/api/admin/products/{productId}", strings.NewReader(`{"price":"9.50"}`))
		req.Header.Set(IdempotencyHeader, "update-7")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i+1, rec.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("retried update executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareCapsBufferedBody(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("oversized body must not reach the handler")
	})

	oversized := strings.NewReader(`{"note":"` + strings.Repeat("x", validators.MaxJSONBodyBytes) + `"}`)
	req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", oversized)
	req.Header.Set(IdempotencyHeader, "big")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "exceeds") {
		t.Fatalf("expected size error, got %s", rec.Body.String())
	}
	if len(store.data) != 0 {
		t.Fatalf("an oversized request must not reserve its key")
	}
}
