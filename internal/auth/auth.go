package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = errors.New("api key not found")

type APIKey struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	KeyHash   string    `json:"key_hash"`
	RateLimit int64     `json:"rate_limit"` // generation requests per minute
	CanAuthor bool      `json:"can_author"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (a *APIKey) MarshalBinary() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (a *APIKey) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, a)
}

type Store interface {
	GetByKey(ctx context.Context, key string) (*APIKey, error)
	Create(ctx context.Context, apiKey *APIKey) error
	Revoke(ctx context.Context, keyID string) error
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	apiKeyIDKey  contextKey = "api_key_id"
	requestIDKey contextKey = "request_id"
	canAuthorKey contextKey = "can_author"
	rateLimitKey contextKey = "rate_limit"
)

const cacheTTL = 5 * time.Minute

func HashKey(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

// NewMiddleware authenticates bearer API keys. Keys are looked up in redis
// first and fall back to the store. A nil cache disables caching.
func NewMiddleware(store Store, cache *redis.Client) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header.")
				return
			}
			key := strings.TrimPrefix(authHeader, "Bearer ")
			redisKey := fmt.Sprintf("auth:%s", HashKey(key))

			if cache != nil {
				var apiKey APIKey
				err := cache.Get(ctx, redisKey).Scan(&apiKey)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(withKey(ctx, &apiKey)))
					return
				} else if err != redis.Nil {
					log.Warn("auth: redis error", "error", err)
				}
			}

			apiK, err := store.GetByKey(ctx, key)
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key.")
					return
				}
				log.Error("auth: key lookup failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error")
				return
			}

			if cache != nil {
				_ = cache.Set(ctx, redisKey, apiK, cacheTTL).Err()
			}

			next.ServeHTTP(w, r.WithContext(withKey(ctx, apiK)))
		})
	}
}

// RequireAuthor rejects callers whose key lacks the content-authoring
// privilege.
func RequireAuthor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !CanAuthor(r.Context()) {
			writeError(w, http.StatusForbidden, "forbidden", "This API key may not create content.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withKey(ctx context.Context, k *APIKey) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, k.TenantID)
	ctx = context.WithValue(ctx, apiKeyIDKey, k.ID)
	ctx = context.WithValue(ctx, canAuthorKey, k.CanAuthor)
	ctx = context.WithValue(ctx, rateLimitKey, k.RateLimit)
	return ctx
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

// Helpers to extract from context
func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantIDKey).(string); ok {
		return id
	}
	return ""
}

func GetAPIKeyID(ctx context.Context) string {
	if id, ok := ctx.Value(apiKeyIDKey).(string); ok {
		return id
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func CanAuthor(ctx context.Context) bool {
	ok, _ := ctx.Value(canAuthorKey).(bool)
	return ok
}

// GetRateLimit returns the per-minute limit on the caller's key, or 0.
func GetRateLimit(ctx context.Context) int64 {
	n, _ := ctx.Value(rateLimitKey).(int64)
	return n
}

// Helpers for testing
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithAPIKeyID(ctx context.Context, apiKeyID string) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, apiKeyID)
}

func WithCanAuthor(ctx context.Context, canAuthor bool) context.Context {
	return context.WithValue(ctx, canAuthorKey, canAuthor)
}
