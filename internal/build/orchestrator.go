package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/webapk-bot/webapk/internal/buildlock"
	"github.com/webapk-bot/webapk/internal/chat"
	"github.com/webapk-bot/webapk/internal/metrics"
	"github.com/webapk-bot/webapk/internal/session"
)

// Config holds the orchestrator parameters.
type Config struct {
	// MaxArtifactSize is the delivery ceiling in bytes. An artifact above
	// it is reported as too large instead of being sent. Defaults to the
	// Telegram bot upload limit.
	MaxArtifactSize int64 `env:"MAX_ARTIFACT_SIZE" envDefault:"52428800"`
}

// BuildReport is the fire-and-forget notification sent after a successful
// build.
type BuildReport struct {
	BuildID     uuid.UUID
	ChatID      int64
	Username    string
	DisplayName string
	JobSummary  string
}

// ReportSink receives BuildReports. Delivery failure must not affect the
// requester-facing flow; the orchestrator only logs it.
type ReportSink interface {
	SendBuildReport(ctx context.Context, r *BuildReport) error
}

// HistoryRecord is one finished build attempt for the history store.
type HistoryRecord struct {
	BuildID      uuid.UUID
	ChatID       int64
	JobSummary   string
	Outcome      string
	Duration     time.Duration
	ArtifactSize int64
}

// HistoryRecorder appends finished attempts. Failures are logged only.
type HistoryRecorder interface {
	RecordBuild(ctx context.Context, rec *HistoryRecord) error
}

// ArtifactArchiver stores a copy of a successful artifact before the
// orchestrator deletes it. Failures are logged only.
type ArtifactArchiver interface {
	ArchiveArtifact(ctx context.Context, buildID uuid.UUID, file string) error
}

// Outcome labels for metrics and history.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeTooLarge = "too_large"
	OutcomeBusy     = "busy"
)

// Orchestrator drives exactly one build attempt per Run call: it gates on
// the lock, executes, translates progress, delivers the artifact and then
// cleans up on every exit path. The report sink, history recorder and
// artifact archiver are optional and may be nil.
type Orchestrator struct {
	config   *Config
	lock     *buildlock.Lock
	sessions *session.Store
	executor Executor
	gateway  chat.Gateway
	logger   *slog.Logger
	recorder metrics.Recorder

	report  ReportSink
	history HistoryRecorder
	archive ArtifactArchiver
}

func NewOrchestrator(
	config *Config,
	lock *buildlock.Lock,
	sessions *session.Store,
	executor Executor,
	gateway chat.Gateway,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Orchestrator{
		config:   config,
		lock:     lock,
		sessions: sessions,
		executor: executor,
		gateway:  gateway,
		logger:   logger.With("component", "orchestrator"),
		recorder: recorder,
	}
}

// SetReportSink, SetHistoryRecorder and SetArtifactArchiver attach the
// optional fire-and-forget collaborators.
func (o *Orchestrator) SetReportSink(r ReportSink)             { o.report = r }
func (o *Orchestrator) SetHistoryRecorder(h HistoryRecorder)   { o.history = h }
func (o *Orchestrator) SetArtifactArchiver(a ArtifactArchiver) { o.archive = a }

// Run performs one build attempt for the chat's completed session. The
// session and its assets are destroyed before Run returns, whatever
// happens in between.
func (o *Orchestrator) Run(ctx context.Context, requester chat.User, chatID int64) {
	s := o.sessions.Get(chatID)
	if s == nil {
		o.logger.Error("build requested without a session", "chat_id", chatID)
		return
	}

	if !o.lock.Acquire(chatID) {
		o.reportBusy(ctx, chatID)
		o.destroySession(chatID)
		o.recorder.RecordBuildOutcome(OutcomeBusy)
		return
	}

	spec := specFromPayload(chatID, &s.Payload)
	start := time.Now()
	outcome := OutcomeFailed
	var result *Result
	var artifactSize int64

	// The cleanup below is the correctness contract: it runs exactly once
	// on every path out of this function, including a panic mid-delivery.
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("build attempt panicked", "chat_id", chatID, "panic", r)
		}
		o.cleanup(chatID, result)
		o.recorder.RecordBuildOutcome(outcome)
		o.recorder.ObserveBuildDuration(time.Since(start))
		o.record(&HistoryRecord{
			BuildID:      spec.ID,
			ChatID:       chatID,
			JobSummary:   spec.Summary(),
			Outcome:      outcome,
			Duration:     time.Since(start),
			ArtifactSize: artifactSize,
		})
	}()

	statusMsgID := o.sendStatus(ctx, chatID, "Build started, this can take a while.")
	var err error
	result, err = o.execute(ctx, spec, chatID, statusMsgID)

	switch {
	case err != nil, result == nil:
		o.logger.Error("executor failed", "chat_id", chatID, "build_id", spec.ID, "err", err)
		o.sendFinal(ctx, chatID, statusMsgID, "Build failed: internal error. Try again later.")

	case !result.Success:
		o.sendFinal(ctx, chatID, statusMsgID, "Build failed: "+result.ErrorText)

	default:
		fi, statErr := os.Stat(result.ArtifactFile)
		if statErr != nil {
			o.logger.Error("reading artifact", "chat_id", chatID, "build_id", spec.ID, "err", statErr)
			o.sendFinal(ctx, chatID, statusMsgID, "Build finished but the result could not be delivered.")
			break
		}
		artifactSize = fi.Size()
		if artifactSize > o.config.MaxArtifactSize {
			o.sendFinal(ctx, chatID, statusMsgID, fmt.Sprintf(
				"Build finished, but the app is too large to deliver (%d MiB, limit %d MiB). "+
					"Reduce bundled assets and try again.",
				artifactSize/(1<<20), o.config.MaxArtifactSize/(1<<20)))
			outcome = OutcomeTooLarge
			break
		}

		o.archiveArtifact(spec.ID, result.ArtifactFile)
		if sendErr := o.gateway.SendDocument(ctx, chatID, result.ArtifactFile, "Here is your app."); sendErr != nil {
			o.logger.Error("delivering artifact", "chat_id", chatID, "build_id", spec.ID, "err", sendErr)
			o.sendFinal(ctx, chatID, statusMsgID, "Build finished but the result could not be delivered.")
			break
		}
		o.sendFinal(ctx, chatID, statusMsgID, "Done. Enjoy your app!")
		outcome = OutcomeSuccess
		o.sendReport(&BuildReport{
			BuildID:     spec.ID,
			ChatID:      chatID,
			Username:    requester.Username,
			DisplayName: requester.FirstName,
			JobSummary:  spec.Summary(),
		})
	}
}

// execute runs the executor while draining its progress events. Every event
// refreshes the lock's activity and the status message.
func (o *Orchestrator) execute(ctx context.Context, spec *JobSpec, chatID, statusMsgID int64) (*Result, error) {
	events := make(chan Event, 16)
	drained := make(chan struct{})
	tracker := &ProgressTracker{}

	go func() {
		defer close(drained)
		for e := range events {
			o.lock.UpdateActivity()
			pct := tracker.Observe(e)
			if statusMsgID == 0 {
				continue
			}
			text := fmt.Sprintf("Building... %d%%", pct)
			if e.Text != "" {
				text += "\n" + e.Text
			}
			if err := o.gateway.EditMessage(ctx, chatID, statusMsgID, text); err != nil {
				o.logger.Debug("editing status message", "chat_id", chatID, "err", err)
			}
		}
	}()

	result, err := o.executor.Execute(ctx, spec, events)
	<-drained
	return result, err
}

// cleanup deletes everything the attempt owned: artifact, work dir, session
// assets, the gate slot and the session itself. Deletion failures are
// logged, never escalated.
func (o *Orchestrator) cleanup(chatID int64, result *Result) {
	if result != nil {
		if result.ArtifactFile != "" {
			if err := os.Remove(result.ArtifactFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				o.logger.Warn("removing artifact", "file", result.ArtifactFile, "err", err)
			}
		}
		if result.WorkDir != "" {
			if err := os.RemoveAll(result.WorkDir); err != nil {
				o.logger.Warn("removing work dir", "dir", result.WorkDir, "err", err)
			}
		}
	}
	if s := o.sessions.Get(chatID); s != nil {
		session.RemoveAssets(&s.Payload, o.logger)
	}
	o.lock.Release(chatID)
	o.sessions.Delete(chatID)
}

func (o *Orchestrator) destroySession(chatID int64) {
	if s := o.sessions.Delete(chatID); s != nil {
		session.RemoveAssets(&s.Payload, o.logger)
	}
}

func (o *Orchestrator) reportBusy(ctx context.Context, chatID int64) {
	text := "Another build is already running. Try again later."
	if h := o.lock.Holder(); h != nil {
		text = fmt.Sprintf(
			"Another build is already running (for %s). Try again later.",
			h.Elapsed.Round(time.Second))
	}
	if _, err := o.gateway.SendMessage(ctx, chatID, text); err != nil {
		o.logger.Warn("sending busy notice", "chat_id", chatID, "err", err)
	}
}

func (o *Orchestrator) sendStatus(ctx context.Context, chatID int64, text string) int64 {
	id, err := o.gateway.SendMessage(ctx, chatID, text)
	if err != nil {
		o.logger.Warn("sending status message", "chat_id", chatID, "err", err)
		return 0
	}
	return id
}

// sendFinal replaces the status message with the final text, falling back
// to a fresh message when there is nothing to edit. A status message that
// refuses the edit (too old, content unchanged) is deleted so the chat does
// not end on a stale "Building..." line.
func (o *Orchestrator) sendFinal(ctx context.Context, chatID, statusMsgID int64, text string) {
	if statusMsgID != 0 {
		if err := o.gateway.EditMessage(ctx, chatID, statusMsgID, text); err == nil {
			return
		}
		if err := o.gateway.DeleteMessage(ctx, chatID, statusMsgID); err != nil {
			o.logger.Debug("deleting status message", "chat_id", chatID, "err", err)
		}
	}
	if _, err := o.gateway.SendMessage(ctx, chatID, text); err != nil {
		o.logger.Warn("sending final message", "chat_id", chatID, "err", err)
	}
}

const sideEffectTimeout = 30 * time.Second

// sendReport, record and archiveArtifact are fire-and-forget: they use their
// own context and never influence the attempt's outcome or cleanup.

func (o *Orchestrator) sendReport(r *BuildReport) {
	if o.report == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := o.report.SendBuildReport(ctx, r); err != nil {
			o.logger.Warn("sending build report", "build_id", r.BuildID, "err", err)
		}
	}()
}

func (o *Orchestrator) record(rec *HistoryRecord) {
	if o.history == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := o.history.RecordBuild(ctx, rec); err != nil {
			o.logger.Warn("recording build history", "build_id", rec.BuildID, "err", err)
		}
	}()
}

// archiveArtifact runs synchronously because the file is deleted during
// cleanup, but its error never fails the attempt.
func (o *Orchestrator) archiveArtifact(buildID uuid.UUID, file string) {
	if o.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := o.archive.ArchiveArtifact(ctx, buildID, file); err != nil {
		o.logger.Warn("archiving artifact", "build_id", buildID, "err", err)
	}
}

func specFromPayload(chatID int64, p *session.Payload) *JobSpec {
	return &JobSpec{
		ID:          uuid.New(),
		ChatID:      chatID,
		URL:         p.URL,
		AppName:     p.AppName,
		IconFile:    p.IconFile,
		ProjectType: p.ProjectType,
		BuildType:   p.BuildType,
		ArchiveFile: p.ArchiveFile,
	}
}
