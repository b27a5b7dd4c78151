package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LogCall(ctx context.Context, log *CallLog) error {
	query := `
		INSERT INTO generation_logs (tenant_id, request_id, operation, vendor, model, outcome, latency_ms, polls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		log.TenantID, log.RequestID, log.Operation, log.Vendor, log.Model,
		log.Outcome, log.LatencyMs, log.Polls,
	).Scan(&log.ID, &log.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to log provider call: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetLogsByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*CallLog, error) {
	query := `
		SELECT id, tenant_id, request_id, operation, vendor, model, outcome, latency_ms, polls, created_at
		FROM generation_logs
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation logs: %w", err)
	}
	defer rows.Close()

	logs := []*CallLog{}
	for rows.Next() {
		var l CallLog
		err := rows.Scan(
			&l.ID, &l.TenantID, &l.RequestID, &l.Operation, &l.Vendor, &l.Model,
			&l.Outcome, &l.LatencyMs, &l.Polls, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation log: %w", err)
		}
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation logs: %w", err)
	}

	return logs, nil
}

func (s *PostgresStore) GetSummaryByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Summary, error) {
	query := `
		SELECT vendor, model, COUNT(*),
		       COUNT(*) FILTER (WHERE outcome <> 'ok'),
		       COALESCE(AVG(latency_ms), 0)::float8
		FROM generation_logs
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
		GROUP BY vendor, model
		ORDER BY vendor, model
	`
	rows, err := s.db.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize generation logs: %w", err)
	}
	defer rows.Close()

	out := []*Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Vendor, &sum.Model, &sum.Calls, &sum.Failures, &sum.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, &sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary: %w", err)
	}

	return out, nil
}
