package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/radar-bff/internal/audit"
	"github.com/xela07ax/radar-bff/internal/infra"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS query_audit (
	id             UUID PRIMARY KEY,
	trace_id       TEXT,
	user_id        TEXT,
	endpoint       TEXT NOT NULL,
	filters        JSONB,
	sources        TEXT[],
	failed_sources TEXT[],
	total_elements BIGINT,
	duration_ms    BIGINT,
	timestamp      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS query_audit_timestamp_idx ON query_audit (timestamp DESC);`

// Количество колонок в таблице query_audit
const auditFields = 10

type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewPool открывает пул и проверяет соединение.
func NewPool(ctx context.Context, cfg infra.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// EnsureSchema создает таблицу журнала, если ее нет.
func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("postgres: ensure query_audit: %w", err)
	}
	return nil
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.QueryEvent) error {
	if len(events) == 0 {
		return nil
	}
	query, vals := buildAuditInsert(events)
	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write audit batch: %w", err)
	}
	return nil
}

// buildAuditInsert строит один multi-row INSERT на всю пачку.
func buildAuditInsert(events []audit.QueryEvent) (string, []any) {
	var sb strings.Builder
	vals := make([]any, 0, len(events)*auditFields)

	for i, e := range events {
		if i > 0 {
			sb.WriteByte(',')
		}
		p := i * auditFields
		sb.WriteByte('(')
		for f := 1; f <= auditFields; f++ {
			if f > 1 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "$%d", p+f)
		}
		sb.WriteByte(')')

		filters, _ := json.Marshal(e.Filters)
		vals = append(vals,
			e.ID, e.TraceID, e.UserID, e.Endpoint, filters,
			nonNil(e.Sources), nonNil(e.FailedSources), e.TotalElements, e.DurationMs, e.Timestamp,
		)
	}

	query := "INSERT INTO query_audit (id, trace_id, user_id, endpoint, filters, sources, failed_sources, total_elements, duration_ms, timestamp) VALUES " +
		sb.String() + " ON CONFLICT (id) DO NOTHING"
	return query, vals
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// FetchRecent: последние события журнала, новые первыми.
func (r *AuditRepo) FetchRecent(ctx context.Context, f audit.Filter) ([]audit.QueryEvent, error) {
	query := `SELECT id::text, COALESCE(trace_id, ''), COALESCE(user_id, ''), endpoint, filters,
	                 sources, failed_sources, total_elements, duration_ms, timestamp
	          FROM query_audit
	          WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR endpoint = $2)
	          ORDER BY timestamp DESC
	          LIMIT $3`

	rows, err := r.pool.Query(ctx, query, f.UserID, f.Endpoint, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch audit: %w", err)
	}
	defer rows.Close()

	var out []audit.QueryEvent
	for rows.Next() {
		var (
			e       audit.QueryEvent
			filters []byte
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.UserID, &e.Endpoint, &filters,
			&e.Sources, &e.FailedSources, &e.TotalElements, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan audit: %w", err)
		}
		if len(filters) > 0 {
			_ = json.Unmarshal(filters, &e.Filters)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
