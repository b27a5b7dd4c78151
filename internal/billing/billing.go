package billing

import (
	"context"
	"time"
)

// CallLog is one provider call made on behalf of a tenant.
type CallLog struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	RequestID string    `json:"request_id"`
	Operation string    `json:"operation"`
	Vendor    string    `json:"vendor"`
	Model     string    `json:"model"`
	Outcome   string    `json:"outcome"` // "ok" or an error kind
	LatencyMs int64     `json:"latency_ms"`
	Polls     int       `json:"polls"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates calls per vendor and model.
type Summary struct {
	Vendor       string  `json:"vendor"`
	Model        string  `json:"model"`
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type Store interface {
	LogCall(ctx context.Context, log *CallLog) error
	GetLogsByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*CallLog, error)
	GetSummaryByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Summary, error)
}
