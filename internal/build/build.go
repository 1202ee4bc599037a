// Package build contains the build executor contract and the orchestrator
// that drives one gated build attempt from acquisition to cleanup.
package build

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Stage is an enumerated build phase. Executors emit stages instead of
// free-form milestone text so progress display does not depend on parsing
// tool output.
type Stage int

const (
	// StageUnknown carries free-form status text with no known phase.
	StageUnknown Stage = iota
	StageFetch
	StageScaffold
	StageCompile
	StagePackage
	StageSign
)

func (s Stage) String() string {
	switch s {
	case StageFetch:
		return "fetch"
	case StageScaffold:
		return "scaffold"
	case StageCompile:
		return "compile"
	case StagePackage:
		return "package"
	case StageSign:
		return "sign"
	}
	return "unknown"
}

// Percent maps a stage to its fixed display percentage. Later stages always
// map higher than earlier ones. StageUnknown maps to 0 and is handled by
// the tracker's increment rule.
func (s Stage) Percent() int {
	switch s {
	case StageFetch:
		return 10
	case StageScaffold:
		return 30
	case StageCompile:
		return 55
	case StagePackage:
		return 80
	case StageSign:
		return 95
	}
	return 0
}

// Event is one progress signal from the executor.
type Event struct {
	Stage Stage
	Text  string
}

// JobSpec is the input to one build attempt, assembled from a completed
// session payload.
type JobSpec struct {
	ID     uuid.UUID
	ChatID int64

	// URL flow.
	URL      string
	AppName  string
	IconFile string

	// Archive flow.
	ProjectType string
	BuildType   string
	ArchiveFile string
}

// Summary is a one-line description of the job for reports and logs.
func (s *JobSpec) Summary() string {
	if s.ArchiveFile != "" {
		return fmt.Sprintf("%s %s build from archive", s.ProjectType, s.BuildType)
	}
	return fmt.Sprintf("%q from %s", s.AppName, s.URL)
}

// Result is the terminal outcome of one executor run. ArtifactFile and
// WorkDir are set iff Success; the orchestrator owns both from receipt
// until it deletes them.
type Result struct {
	Success      bool
	ArtifactFile string
	WorkDir      string
	ErrorText    string
}

// Executor performs the actual build. It may send any number of events on
// the channel and must close it before returning. A returned error means
// the executor itself broke; a tool failure is a Result with Success false.
type Executor interface {
	Execute(ctx context.Context, spec *JobSpec, events chan<- Event) (*Result, error)
}
