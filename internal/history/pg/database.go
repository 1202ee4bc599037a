// Package pg is the Postgres implementation of history.Database.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webapk-bot/webapk/internal/history"
)

var _ history.Database = (*Database)(nil)

// Querier is the subset of pgxpool.Pool the database needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Database struct {
	db Querier // required
}

func NewDatabase(db Querier) *Database {
	return &Database{db: db}
}

// CreateRecord implements history.Database.
func (d *Database) CreateRecord(ctx context.Context, r *history.Record) error {
	query := `
		INSERT INTO build_records (id, chat_id, job_summary, outcome, duration_ms, artifact_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	args := []any{r.ID, r.ChatID, r.JobSummary, r.Outcome, r.Duration.Milliseconds(), r.ArtifactSize}

	rows, _ := d.db.Query(ctx, query, args...)
	_, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (any, error) {
		var id any
		return id, row.Scan(&id)
	})
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	return nil
}

// ListRecords implements history.Database.
func (d *Database) ListRecords(ctx context.Context, limit int) ([]*history.Record, error) {
	query := `
		SELECT id, chat_id, job_summary, outcome, duration_ms, artifact_size, created_at
		FROM build_records
		ORDER BY created_at DESC
		LIMIT $1
	`
	args := []any{limit}

	rows, _ := d.db.Query(ctx, query, args...)
	records, err := pgx.CollectRows(rows, rowToRecord)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	return records, nil
}

func rowToRecord(row pgx.CollectableRow) (*history.Record, error) {
	var r history.Record
	var durationMS int64
	err := row.Scan(&r.ID, &r.ChatID, &r.JobSummary, &r.Outcome, &durationMS, &r.ArtifactSize, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return &r, nil
}
