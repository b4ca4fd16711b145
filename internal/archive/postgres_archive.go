// Package archive implements the durable audit store
// (domain.ArchiveRepository) over PostgreSQL via pgx, grounded on the
// teacher's internal/adapter/repo/postgres package (JobRepo/ResultRepo):
// a minimal pool interface for testability, op=... wrapped errors, and an
// OTEL span per query. Rows survive until CleanupService's retention
// window elapses — see cleanup.go.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/evalmesh/pipeline/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by Repo, kept narrow so
// tests can supply a fake without pulling in a real connection.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo persists ArchiveRow records to the "archive_records" table
// (schema in SPEC_FULL.md §3.1).
type Repo struct{ Pool PgxPool }

// NewRepo constructs a Repo over an existing pool, e.g. *pgxpool.Pool.
func NewRepo(pool PgxPool) *Repo { return &Repo{Pool: pool} }

// NewPgxPool dials Postgres with otelpgx query tracing wired in, grounded
// on the teacher's internal/adapter/repo/postgres.NewPool; split out so
// cmd/* binaries can Close() the concrete pool on shutdown.
func NewPgxPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=archive.NewPgxPool: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=archive.NewPgxPool: %w", err)
	}
	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Warn("failed to record pgx pool stats", slog.Any("error", err))
	}
	return pool, nil
}

// schemaDDL creates the archive_records table (spec.md §3.1) if it does
// not already exist. The teacher repo ships no migration tool, so
// cmd/pipelinectl runs this inline rather than against a framework.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS archive_records (
	request_id          TEXT PRIMARY KEY,
	prompt              TEXT NOT NULL,
	target_model        TEXT NOT NULL,
	judge_model         TEXT NOT NULL,
	inference_response  TEXT,
	inference_latency_ms DOUBLE PRECISION,
	inference_tokens    INTEGER,
	judge_score         DOUBLE PRECISION,
	judge_reasoning     TEXT,
	judge_categories    JSONB NOT NULL DEFAULT '[]',
	judge_latency_ms    DOUBLE PRECISION,
	status              TEXT NOT NULL,
	error_message       TEXT,
	created_at          TIMESTAMPTZ NOT NULL,
	completed_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS archive_records_status_created_at_idx
	ON archive_records (status, created_at DESC);
`

// EnsureSchema creates the archive_records table and its supporting index
// if they do not already exist. Safe to run on every pipelinectl
// invocation.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("op=archive.EnsureSchema: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

// CreateHistory inserts row. A duplicate request_id hits the primary key
// constraint; that is translated to domain.ErrConflict so callers can
// treat a redelivered terminal message as an idempotent success rather
// than a hard failure.
func (r *Repo) CreateHistory(ctx domain.Context, row domain.ArchiveRow) (domain.ArchiveRow, error) {
	tracer := otel.Tracer("archive.repo")
	ctx, span := tracer.Start(ctx, "archive.CreateHistory")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "archive_records"),
	)

	categories, err := json.Marshal(row.JudgeCategories)
	if err != nil {
		return domain.ArchiveRow{}, fmt.Errorf("op=archive.CreateHistory: marshal categories: %w", err)
	}

	q := `INSERT INTO archive_records
		(request_id, prompt, target_model, judge_model, inference_response, inference_latency_ms,
		 inference_tokens, judge_score, judge_reasoning, judge_categories, judge_latency_ms,
		 status, error_message, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = r.Pool.Exec(ctx, q,
		row.RequestID, row.Prompt, row.TargetModel, row.JudgeModel,
		row.InferenceResponse, row.InferenceLatencyMs, row.InferenceTokens,
		row.JudgeScore, row.JudgeReasoning, categories, row.JudgeLatencyMs,
		row.Status, row.ErrorMessage, row.CreatedAt, row.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return row, fmt.Errorf("op=archive.CreateHistory: %w", domain.ErrConflict)
		}
		return domain.ArchiveRow{}, fmt.Errorf("op=archive.CreateHistory: %w: %v", domain.ErrInternal, err)
	}
	return row, nil
}

// GetByRequestID loads one archived row.
func (r *Repo) GetByRequestID(ctx domain.Context, requestID string) (domain.ArchiveRow, error) {
	tracer := otel.Tracer("archive.repo")
	ctx, span := tracer.Start(ctx, "archive.GetByRequestID")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "archive_records"),
	)

	q := `SELECT request_id, prompt, target_model, judge_model, inference_response, inference_latency_ms,
		 inference_tokens, judge_score, judge_reasoning, judge_categories, judge_latency_ms,
		 status, error_message, created_at, completed_at
		FROM archive_records WHERE request_id = $1`
	row := r.Pool.QueryRow(ctx, q, requestID)
	rec, catJSON, err := scanArchiveRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArchiveRow{}, fmt.Errorf("op=archive.GetByRequestID: %w", domain.ErrNotFound)
		}
		return domain.ArchiveRow{}, fmt.Errorf("op=archive.GetByRequestID: %w: %v", domain.ErrInternal, err)
	}
	if err := json.Unmarshal(catJSON, &rec.JudgeCategories); err != nil {
		return domain.ArchiveRow{}, fmt.Errorf("op=archive.GetByRequestID: unmarshal categories: %w", err)
	}
	return rec, nil
}

// List returns a page of archived rows ordered newest-first, optionally
// filtered by status ("" means no filter).
func (r *Repo) List(ctx domain.Context, limit, offset int, status string) ([]domain.ArchiveRow, error) {
	tracer := otel.Tracer("archive.repo")
	ctx, span := tracer.Start(ctx, "archive.List")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "archive_records"),
	)

	base := `SELECT request_id, prompt, target_model, judge_model, inference_response, inference_latency_ms,
		 inference_tokens, judge_score, judge_reasoning, judge_categories, judge_latency_ms,
		 status, error_message, created_at, completed_at
		FROM archive_records`
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = r.Pool.Query(ctx, base+` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		rows, err = r.Pool.Query(ctx, base+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("op=archive.List: %w: %v", domain.ErrInternal, err)
	}
	defer rows.Close()

	var out []domain.ArchiveRow
	for rows.Next() {
		rec, catJSON, err := scanArchiveRow(rows)
		if err != nil {
			return nil, fmt.Errorf("op=archive.List: scan: %w", err)
		}
		if err := json.Unmarshal(catJSON, &rec.JudgeCategories); err != nil {
			return nil, fmt.Errorf("op=archive.List: unmarshal categories: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=archive.List: rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchiveRow(row rowScanner) (domain.ArchiveRow, []byte, error) {
	var rec domain.ArchiveRow
	var catJSON []byte
	err := row.Scan(
		&rec.RequestID, &rec.Prompt, &rec.TargetModel, &rec.JudgeModel,
		&rec.InferenceResponse, &rec.InferenceLatencyMs, &rec.InferenceTokens,
		&rec.JudgeScore, &rec.JudgeReasoning, &catJSON, &rec.JudgeLatencyMs,
		&rec.Status, &rec.ErrorMessage, &rec.CreatedAt, &rec.CompletedAt,
	)
	return rec, catJSON, err
}
