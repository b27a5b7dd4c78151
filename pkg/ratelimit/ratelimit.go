package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Limiter counts generation requests per tenant in a one-minute window. Keys
// may carry their own per-minute limit; each distinct limit gets its own
// redis-backed store.
type Limiter struct {
	rdb        *redis.Client
	defaultRPM int64

	mu     sync.Mutex
	stores map[int64]extratelimit.Limiter
	fixed  extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, defaultRPM int64) *Limiter {
	return &Limiter{
		rdb:        rdb,
		defaultRPM: defaultRPM,
		stores:     make(map[int64]extratelimit.Limiter),
	}
}

// NewTestLimiter uses store for every limit.
func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{fixed: store}
}

func (l *Limiter) store(limit int64) extratelimit.Limiter {
	if l.fixed != nil {
		return l.fixed
	}
	if limit <= 0 {
		limit = l.defaultRPM
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stores[limit]
	if !ok {
		s = extratelimit.NewRedisStore(l.rdb,
			extratelimit.WithLimit(int(limit)),
			extratelimit.WithWindow(time.Minute),
		)
		l.stores[limit] = s
	}
	return s
}

func key(tenantID string) string {
	return fmt.Sprintf("ratelimit:generate:%s", tenantID)
}

// Allow consumes one request from the tenant's budget. A limit of 0 uses the
// default.
func (l *Limiter) Allow(ctx context.Context, tenantID string, limit int64) (bool, error) {
	res, err := l.store(limit).AllowN(ctx, key(tenantID), 1)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *Limiter) Status(ctx context.Context, tenantID string, limit int64) (*extratelimit.Result, error) {
	return l.store(limit).Status(ctx, key(tenantID))
}
