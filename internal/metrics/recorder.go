package metrics

import "time"

// Recorder receives operational measurements from the lock and the
// orchestrator. Implementations must be safe for concurrent use.
type Recorder interface {
	// SetLockBusy reflects the current held state of the build gate.
	SetLockBusy(busy bool)
	// RecordForcedRelease counts a watchdog force release by reason
	// ("timeout" or "inactivity").
	RecordForcedRelease(reason string)
	// RecordBuildOutcome counts a finished build attempt by outcome
	// ("success", "failed", "too_large" or "busy").
	RecordBuildOutcome(outcome string)
	// ObserveBuildDuration records the wall time of a completed attempt.
	ObserveBuildDuration(d time.Duration)
}

// NoopRecorder discards all measurements.
type NoopRecorder struct{}

var _ Recorder = (*NoopRecorder)(nil)

func (NoopRecorder) SetLockBusy(bool)                   {}
func (NoopRecorder) RecordForcedRelease(string)         {}
func (NoopRecorder) RecordBuildOutcome(string)          {}
func (NoopRecorder) ObserveBuildDuration(time.Duration) {}
