package build

// ProgressTracker turns progress events into a monotonically non-decreasing
// display percentage. A stage event jumps to the stage's fixed percentage
// unless that would move backwards; a free-form event nudges the value by a
// small increment, capped below completion so only delivery reaches 100.
type ProgressTracker struct {
	percent int
}

const (
	unknownEventIncrement = 2
	progressCap           = 99
)

// Observe folds one event into the tracker and returns the percentage to
// display.
func (t *ProgressTracker) Observe(e Event) int {
	if e.Stage == StageUnknown {
		if t.percent < progressCap {
			t.percent += unknownEventIncrement
			if t.percent > progressCap {
				t.percent = progressCap
			}
		}
		return t.percent
	}
	if p := e.Stage.Percent(); p > t.percent {
		t.percent = p
	}
	return t.percent
}

// Percent returns the current value without observing anything.
func (t *ProgressTracker) Percent() int {
	return t.percent
}
