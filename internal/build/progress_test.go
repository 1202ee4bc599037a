package build

import "testing"

func TestProgressTrackerStageJumps(t *testing.T) {
	tr := &ProgressTracker{}

	if got, want := tr.Observe(Event{Stage: StageFetch}), 10; got != want {
		t.Errorf("after fetch: got %d, want %d", got, want)
	}
	if got, want := tr.Observe(Event{Stage: StageSign}), 95; got != want {
		t.Errorf("after sign: got %d, want %d", got, want)
	}
	// Earlier stage arriving late must not move the value backwards.
	if got, want := tr.Observe(Event{Stage: StageCompile}), 95; got != want {
		t.Errorf("after late compile: got %d, want %d", got, want)
	}
}

func TestProgressTrackerUnknownIncrement(t *testing.T) {
	tr := &ProgressTracker{}

	if got, want := tr.Observe(Event{Text: "warming up"}), 2; got != want {
		t.Errorf("first unknown: got %d, want %d", got, want)
	}
	if got, want := tr.Observe(Event{Text: "still warming up"}), 4; got != want {
		t.Errorf("second unknown: got %d, want %d", got, want)
	}
}

func TestProgressTrackerCapsBelowCompletion(t *testing.T) {
	tr := &ProgressTracker{}
	tr.Observe(Event{Stage: StageSign})

	for i := 0; i < 10; i++ {
		tr.Observe(Event{Text: "output"})
	}
	if got, want := tr.Percent(), 99; got != want {
		t.Errorf("capped value: got %d, want %d", got, want)
	}
}

func TestStagePercentagesAreOrdered(t *testing.T) {
	stages := []Stage{StageFetch, StageScaffold, StageCompile, StagePackage, StageSign}
	prev := 0
	for _, s := range stages {
		if p := s.Percent(); p <= prev {
			t.Errorf("stage %v percent %d not above previous %d", s, p, prev)
		} else {
			prev = p
		}
	}
}
