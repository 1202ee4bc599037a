package history

import (
	"context"
	"fmt"

	"github.com/webapk-bot/webapk/internal/build"
)

// Recorder adapts a Database to the orchestrator's HistoryRecorder.
type Recorder struct {
	db Database // required
}

var _ build.HistoryRecorder = (*Recorder)(nil)

func NewRecorder(db Database) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) RecordBuild(ctx context.Context, rec *build.HistoryRecord) error {
	err := r.db.CreateRecord(ctx, &Record{
		ID:           rec.BuildID,
		ChatID:       rec.ChatID,
		JobSummary:   rec.JobSummary,
		Outcome:      rec.Outcome,
		Duration:     rec.Duration,
		ArtifactSize: rec.ArtifactSize,
	})
	if err != nil {
		return fmt.Errorf("history.RecordBuild: %w", err)
	}
	return nil
}
