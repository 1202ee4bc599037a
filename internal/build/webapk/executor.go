// Package webapk is the production build.Executor. It scaffolds an Android
// project from the job spec, compiles it with Gradle and optionally signs
// the result, running every tool through os/exec in a per-build work dir.
package webapk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/webapk-bot/webapk/internal/build"
)

// Config holds the executor parameters.
type Config struct {
	// ScaffoldCommand generates the Android project. It is invoked as
	// "<cmd> scaffold --url ... --name ... --out <dir>".
	ScaffoldCommand string `env:"SCAFFOLD_COMMAND" envDefault:"webtoapk"`
	GradleCommand   string `env:"GRADLE_COMMAND" envDefault:"gradle"`
	// WorkRoot is where per-build work dirs are created.
	WorkRoot string `env:"WORK_ROOT" envDefault:"/var/tmp/webapk"`
	// KeystoreFile enables the signing phase when set.
	KeystoreFile     string `env:"KEYSTORE_FILE"`
	KeystorePassword string `env:"KEYSTORE_PASSWORD"`
}

type Executor struct {
	config *Config
	logger *slog.Logger
}

var _ build.Executor = (*Executor)(nil)

func NewExecutor(config *Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{config: config, logger: logger.With("component", "executor")}
}

// Execute runs the build phases. Tool failures come back as a failed
// Result; only infrastructure problems (work dir, log file) are errors.
// The work dir is kept only on success, where the caller takes ownership.
func (e *Executor) Execute(ctx context.Context, spec *build.JobSpec, events chan<- build.Event) (*build.Result, error) {
	defer close(events)

	e.logger.Info("starting build", "build_id", spec.ID, "summary", spec.Summary())

	workDir := filepath.Join(e.config.WorkRoot, spec.ID.String())
	if err := os.MkdirAll(workDir, 0o777); err != nil {
		return nil, fmt.Errorf("webapk.Execute: %w", err)
	}
	failed := func(text string) (*build.Result, error) {
		_ = os.RemoveAll(workDir)
		return &build.Result{Success: false, ErrorText: text}, nil
	}

	logFile, err := os.Create(filepath.Join(workDir, "build.log"))
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("webapk.Execute: %w", err)
	}
	defer logFile.Close()

	appDir := filepath.Join(workDir, "app")

	if spec.ArchiveFile != "" {
		events <- build.Event{Stage: build.StageFetch, Text: "unpacking project archive"}
		code, err := e.run(ctx, logFile, events, "unzip", "-q", spec.ArchiveFile, "-d", appDir)
		if err != nil {
			_ = os.RemoveAll(workDir)
			return nil, err
		}
		if code != 0 {
			return failed(fmt.Sprintf("could not unpack the archive (unzip exited with status %d)", code))
		}
	} else {
		events <- build.Event{Stage: build.StageFetch, Text: "fetching site metadata"}
		code, err := e.run(ctx, logFile, events, e.config.ScaffoldCommand,
			"fetch", "--url", spec.URL, "--out", filepath.Join(workDir, "site.json"))
		if err != nil {
			_ = os.RemoveAll(workDir)
			return nil, err
		}
		if code != 0 {
			return failed("the site could not be reached, check the URL")
		}

		events <- build.Event{Stage: build.StageScaffold, Text: "generating project"}
		args := []string{
			"scaffold",
			"--url", spec.URL,
			"--name", spec.AppName,
			"--meta", filepath.Join(workDir, "site.json"),
			"--out", appDir,
		}
		if spec.IconFile != "" {
			args = append(args, "--icon", spec.IconFile)
		}
		code, err = e.run(ctx, logFile, events, e.config.ScaffoldCommand, args...)
		if err != nil {
			_ = os.RemoveAll(workDir)
			return nil, err
		}
		if code != 0 {
			return failed(fmt.Sprintf("project generation failed (status %d)", code))
		}
	}

	events <- build.Event{Stage: build.StageCompile, Text: "compiling"}
	task := "assembleRelease"
	if strings.EqualFold(spec.BuildType, "debug") {
		task = "assembleDebug"
	}
	code, err := e.run(ctx, logFile, events, e.config.GradleCommand, "-p", appDir, "--console=plain", task)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, err
	}
	if code != 0 {
		return failed(fmt.Sprintf("compilation failed (gradle exited with status %d)", code))
	}

	events <- build.Event{Stage: build.StagePackage, Text: "collecting the app package"}
	artifact, err := collectArtifact(appDir, workDir, spec.AppName)
	if err != nil {
		return failed("the build produced no app package")
	}

	if e.config.KeystoreFile != "" {
		events <- build.Event{Stage: build.StageSign, Text: "signing"}
		code, err = e.run(ctx, logFile, events, "apksigner", "sign",
			"--ks", e.config.KeystoreFile,
			"--ks-pass", "pass:"+e.config.KeystorePassword,
			artifact)
		if err != nil {
			_ = os.RemoveAll(workDir)
			return nil, err
		}
		if code != 0 {
			return failed(fmt.Sprintf("signing failed (status %d)", code))
		}
	}

	return &build.Result{Success: true, ArtifactFile: artifact, WorkDir: workDir}, nil
}

// run executes one tool with combined output teed to the log file, emitting
// a free-form progress event per output line so a long compile keeps the
// gate's activity fresh. The exit code is returned instead of an error when
// the tool itself fails.
func (e *Executor) run(ctx context.Context, logFile io.Writer, events chan<- build.Event, name string, args ...string) (int, error) {
	if _, err := fmt.Fprintf(logFile, "$ %s %s\n", name, strings.Join(args, " ")); err != nil {
		return -1, fmt.Errorf("webapk.run: %w", err)
	}

	out := &lineWriter{log: logFile, events: events}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	out.close()
	if err != nil {
		if exitErr := (*exec.ExitError)(nil); errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("webapk.run: %s: %w", name, err)
	}
	return 0, nil
}

// maxLineLen bounds the line buffer; longer lines are flushed in chunks.
const maxLineLen = 64 * 1024

// lineWriter splits tool output into lines on the write path, teeing each
// line to the log and emitting it as a progress event. Write never blocks
// and never errors, so a tool printing arbitrarily long lines (or a slow
// event consumer) cannot stall the build.
type lineWriter struct {
	log    io.Writer
	events chan<- build.Event
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	n := len(p)
	for {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.buf = append(w.buf, p...)
			if len(w.buf) >= maxLineLen {
				w.flushLine()
			}
			return n, nil
		}
		w.buf = append(w.buf, p[:i]...)
		w.flushLine()
		p = p[i+1:]
	}
}

// close flushes a trailing line that had no newline.
func (w *lineWriter) close() {
	if len(w.buf) > 0 {
		w.flushLine()
	}
}

func (w *lineWriter) flushLine() {
	line := string(w.buf)
	w.buf = w.buf[:0]
	_, _ = fmt.Fprintln(w.log, line)
	if line == "" {
		return
	}
	select {
	case w.events <- build.Event{Stage: build.StageUnknown, Text: line}:
	default:
	}
}

// collectArtifact finds the produced apk under Gradle's output layout and
// moves it to the work dir root under the app's name.
func collectArtifact(appDir, workDir, appName string) (string, error) {
	patterns := []string{
		filepath.Join(appDir, "build", "outputs", "apk", "*", "*.apk"),
		filepath.Join(appDir, "app", "build", "outputs", "apk", "*", "*.apk"),
	}
	var found string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err == nil && len(matches) > 0 {
			found = matches[0]
			break
		}
	}
	if found == "" {
		return "", errors.New("webapk.collectArtifact: no apk produced")
	}

	name := sanitizeFileName(appName)
	if name == "" {
		name = "app"
	}
	dest := filepath.Join(workDir, name+".apk")
	if err := os.Rename(found, dest); err != nil {
		return "", fmt.Errorf("webapk.collectArtifact: %w", err)
	}
	return dest, nil
}

func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
