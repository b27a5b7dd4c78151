package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockStore struct {
	keys map[string]*APIKey
	err  error
}

func (m *mockStore) GetByKey(ctx context.Context, key string) (*APIKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k, nil
}

func (m *mockStore) Create(ctx context.Context, apiKey *APIKey) error { return nil }

func (m *mockStore) Revoke(ctx context.Context, keyID string) error { return nil }

func newStore() *mockStore {
	return &mockStore{keys: map[string]*APIKey{
		"author-key": {ID: "k1", TenantID: "tenant-1", RateLimit: 30, CanAuthor: true, Active: true},
		"reader-key": {ID: "k2", TenantID: "tenant-2", Active: true},
	}}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	mw := NewMiddleware(newStore(), nil)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Expected handler not to run")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "unauthorized" {
		t.Errorf("Expected unauthorized code, got %v", body)
	}
}

func TestMiddleware_InvalidKey(t *testing.T) {
	mw := NewMiddleware(newStore(), nil)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestMiddleware_StoreFailure(t *testing.T) {
	mw := NewMiddleware(&mockStore{err: errors.New("db down")}, nil)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer author-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestMiddleware_PopulatesContext(t *testing.T) {
	mw := NewMiddleware(newStore(), nil)
	var ctx context.Context
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer author-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if GetTenantID(ctx) != "tenant-1" || GetAPIKeyID(ctx) != "k1" {
		t.Errorf("Unexpected identity %s / %s", GetTenantID(ctx), GetAPIKeyID(ctx))
	}
	if !CanAuthor(ctx) || GetRateLimit(ctx) != 30 {
		t.Errorf("Expected author key with limit 30, got %v / %d", CanAuthor(ctx), GetRateLimit(ctx))
	}
	if GetRequestID(ctx) == "" || w.Header().Get("X-Request-ID") != GetRequestID(ctx) {
		t.Error("Expected a request id on context and response")
	}
}

func TestRequireAuthor(t *testing.T) {
	mw := NewMiddleware(newStore(), nil)
	h := mw(RequireAuthor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	for key, want := range map[string]int{
		"author-key": http.StatusNoContent,
		"reader-key": http.StatusForbidden,
	} {
		req := httptest.NewRequest("POST", "/", nil)
		req.Header.Set("Authorization", "Bearer "+key)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("%s: expected %d, got %d", key, want, w.Code)
		}
	}
}

func TestHashKey(t *testing.T) {
	if HashKey("a") == HashKey("b") || len(HashKey("a")) != 64 {
		t.Error("Expected distinct hex sha256 digests")
	}
}
