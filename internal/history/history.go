// Package history stores an append-only record of finished build attempts.
// The record is observational: nothing in the build flow reads it back, so
// a missing or failing store never affects a build.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one finished build attempt.
type Record struct {
	ID           uuid.UUID
	ChatID       int64
	JobSummary   string
	Outcome      string
	Duration     time.Duration
	ArtifactSize int64
	CreatedAt    time.Time
}

// Database persists records.
type Database interface {
	CreateRecord(ctx context.Context, r *Record) error
	// ListRecords returns the most recent records, newest first.
	ListRecords(ctx context.Context, limit int) ([]*Record, error)
}
