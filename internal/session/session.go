// Package session tracks the per-chat multi-step flow that collects build
// input before a build is triggered.
package session

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// Step is the position of a session in its flow.
type Step int

const (
	// URL flow: url -> name -> icon -> confirm -> building.
	StepURL Step = iota + 1
	StepName
	StepIcon
	StepConfirm
	// Archive flow: projectType -> buildType -> upload -> building.
	StepProjectType
	StepBuildType
	StepUpload
	// StepBuilding is terminal for both flows; the session is destroyed
	// when the build attempt finishes, whatever the outcome.
	StepBuilding
)

func (s Step) String() string {
	switch s {
	case StepURL:
		return "url"
	case StepName:
		return "name"
	case StepIcon:
		return "icon"
	case StepConfirm:
		return "confirm"
	case StepProjectType:
		return "project_type"
	case StepBuildType:
		return "build_type"
	case StepUpload:
		return "upload"
	case StepBuilding:
		return "building"
	}
	return "unknown"
}

// Payload is the build input accumulated by a session. IconFile and
// ArchiveFile are local files owned by the session until a build consumes
// them or the session is cancelled.
type Payload struct {
	URL         string
	AppName     string
	IconFile    string
	ProjectType string
	BuildType   string
	ArchiveFile string
}

// Session is one requester's flow state. It is owned by a single chat and
// must not be shared across chats.
type Session struct {
	ChatID    int64
	Step      Step
	Payload   Payload
	CreatedAt time.Time
}

// The Set* methods advance the flow. Each reports whether the input matched
// the current step; on a mismatch the session is left untouched.

func (s *Session) SetURL(u string) bool {
	if s.Step != StepURL {
		return false
	}
	s.Payload.URL = u
	s.Step = StepName
	return true
}

func (s *Session) SetName(name string) bool {
	if s.Step != StepName {
		return false
	}
	s.Payload.AppName = name
	s.Step = StepIcon
	return true
}

func (s *Session) SetIcon(file string) bool {
	if s.Step != StepIcon {
		return false
	}
	s.Payload.IconFile = file
	s.Step = StepConfirm
	return true
}

func (s *Session) Confirm() bool {
	if s.Step != StepConfirm {
		return false
	}
	s.Step = StepBuilding
	return true
}

func (s *Session) SetProjectType(projectType string) bool {
	if s.Step != StepProjectType {
		return false
	}
	s.Payload.ProjectType = projectType
	s.Step = StepBuildType
	return true
}

func (s *Session) SetBuildType(buildType string) bool {
	if s.Step != StepBuildType {
		return false
	}
	s.Payload.BuildType = buildType
	s.Step = StepUpload
	return true
}

func (s *Session) SetArchive(file string) bool {
	if s.Step != StepUpload {
		return false
	}
	s.Payload.ArchiveFile = file
	s.Step = StepBuilding
	return true
}

// RemoveAssets deletes the payload's local files. A file that is already
// gone is not an error; other failures are logged and swallowed.
func RemoveAssets(p *Payload, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, f := range []string{p.IconFile, p.ArchiveFile} {
		if f == "" {
			continue
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("removing session asset", "file", f, "err", err)
		}
	}
	p.IconFile = ""
	p.ArchiveFile = ""
}
