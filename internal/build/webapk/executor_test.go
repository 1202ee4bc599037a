package webapk

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/webapk-bot/webapk/internal/build"
)

// writeScript creates an executable stub tool for the executor to run.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return file
}

func drainEvents(events <-chan build.Event, into *[]build.Event, done chan<- struct{}) {
	for e := range events {
		*into = append(*into, e)
	}
	close(done)
}

func TestExecuteURLFlow(t *testing.T) {
	dir := t.TempDir()
	scaffold := writeScript(t, dir, "webtoapk", `
case "$1" in
fetch) shift; while [ $# -gt 1 ]; do [ "$1" = "--out" ] && echo '{}' > "$2"; shift; done ;;
scaffold) shift; while [ $# -gt 1 ]; do [ "$1" = "--out" ] && mkdir -p "$2"; shift; done ;;
esac
exit 0
`)
	gradle := writeScript(t, dir, "gradle", `
appdir="$2"
out="$appdir/build/outputs/apk/release"
mkdir -p "$out"
echo apk > "$out/app-release.apk"
echo "BUILD SUCCESSFUL"
exit 0
`)

	e := NewExecutor(&Config{
		ScaffoldCommand: scaffold,
		GradleCommand:   gradle,
		WorkRoot:        filepath.Join(dir, "work"),
	}, nil)

	spec := &build.JobSpec{
		ID:      uuid.New(),
		ChatID:  1,
		URL:     "https://example.com",
		AppName: "My App",
	}
	events := make(chan build.Event, 64)
	var seen []build.Event
	done := make(chan struct{})
	go drainEvents(events, &seen, done)

	result, err := e.Execute(context.Background(), spec, events)
	<-done
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("Execute: failed with %q", result.ErrorText)
	}
	defer os.RemoveAll(result.WorkDir)

	if got, want := filepath.Base(result.ArtifactFile), "My_App.apk"; got != want {
		t.Errorf("artifact name: got %q, want %q", got, want)
	}
	if _, statErr := os.Stat(result.ArtifactFile); statErr != nil {
		t.Errorf("artifact missing: %v", statErr)
	}

	var stages []build.Stage
	for _, e := range seen {
		if e.Stage != build.StageUnknown {
			stages = append(stages, e.Stage)
		}
	}
	want := []build.Stage{build.StageFetch, build.StageScaffold, build.StageCompile, build.StagePackage}
	if len(stages) != len(want) {
		t.Fatalf("stages: got %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages: got %v, want %v", stages, want)
		}
	}
}

func TestExecuteCompileFailure(t *testing.T) {
	dir := t.TempDir()
	scaffold := writeScript(t, dir, "webtoapk", `
case "$1" in
fetch) shift; while [ $# -gt 1 ]; do [ "$1" = "--out" ] && echo '{}' > "$2"; shift; done ;;
scaffold) shift; while [ $# -gt 1 ]; do [ "$1" = "--out" ] && mkdir -p "$2"; shift; done ;;
esac
exit 0
`)
	gradle := writeScript(t, dir, "gradle", `
echo "error: missing SDK" >&2
exit 3
`)

	workRoot := filepath.Join(dir, "work")
	e := NewExecutor(&Config{
		ScaffoldCommand: scaffold,
		GradleCommand:   gradle,
		WorkRoot:        workRoot,
	}, nil)

	spec := &build.JobSpec{ID: uuid.New(), URL: "https://example.com", AppName: "X"}
	events := make(chan build.Event, 64)
	var seen []build.Event
	done := make(chan struct{})
	go drainEvents(events, &seen, done)

	result, err := e.Execute(context.Background(), spec, events)
	<-done
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("Execute: got success, want failure")
	}
	if result.WorkDir != "" || result.ArtifactFile != "" {
		t.Errorf("failed result carries paths: %+v", result)
	}
	// The failed build's work dir must not be left behind.
	if _, statErr := os.Stat(filepath.Join(workRoot, spec.ID.String())); !os.IsNotExist(statErr) {
		t.Errorf("work dir still exists: err %v", statErr)
	}
}

func TestExecuteArchiveFlowUnpackFailure(t *testing.T) {
	if _, err := exec.LookPath("unzip"); err != nil {
		t.Skip("unzip not installed")
	}
	dir := t.TempDir()
	e := NewExecutor(&Config{
		ScaffoldCommand: "unused",
		GradleCommand:   "unused",
		WorkRoot:        filepath.Join(dir, "work"),
	}, nil)

	spec := &build.JobSpec{
		ID:          uuid.New(),
		ProjectType: "flutter",
		BuildType:   "release",
		ArchiveFile: filepath.Join(dir, "not-a-zip.zip"),
	}
	if err := os.WriteFile(spec.ArchiveFile, []byte("junk"), 0o666); err != nil {
		t.Fatal(err)
	}

	events := make(chan build.Event, 64)
	go func() {
		for range events {
		}
	}()

	result, err := e.Execute(context.Background(), spec, events)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("Execute: got success, want failure")
	}
}

func TestExecuteSurvivesOversizedOutputLine(t *testing.T) {
	dir := t.TempDir()
	scaffold := writeScript(t, dir, "webtoapk", `
case "$1" in
fetch) shift; while [ $# -gt 1 ]; do [ "$1" = "--out" ] && echo '{}' > "$2"; shift; done ;;
scaffold) shift; while [ $# -gt 1 ]; do [ "$1" = "--out" ] && mkdir -p "$2"; shift; done ;;
esac
exit 0
`)
	// A 2 MiB line without a newline, then a normal finish.
	gradle := writeScript(t, dir, "gradle", `
appdir="$2"
out="$appdir/build/outputs/apk/release"
mkdir -p "$out"
echo apk > "$out/app-release.apk"
head -c 2097152 /dev/zero | tr '\0' x
echo
echo "BUILD SUCCESSFUL"
exit 0
`)

	e := NewExecutor(&Config{
		ScaffoldCommand: scaffold,
		GradleCommand:   gradle,
		WorkRoot:        filepath.Join(dir, "work"),
	}, nil)

	spec := &build.JobSpec{ID: uuid.New(), URL: "https://example.com", AppName: "X"}
	events := make(chan build.Event, 8)
	go func() {
		for range events {
		}
	}()

	type outcome struct {
		result *build.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := e.Execute(context.Background(), spec, events)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("Execute: %v", o.err)
		}
		if !o.result.Success {
			t.Fatalf("Execute: failed with %q", o.result.ErrorText)
		}
		_ = os.RemoveAll(o.result.WorkDir)
	case <-time.After(10 * time.Second):
		t.Fatal("Execute did not return after an oversized output line")
	}
}

func TestLineWriterSplitsChunkedWrites(t *testing.T) {
	var log bytes.Buffer
	events := make(chan build.Event, 16)
	w := &lineWriter{log: &log, events: events}

	for _, chunk := range []string{"hel", "lo\nwor", "ld\ntail"} {
		if _, err := io.WriteString(w, chunk); err != nil {
			t.Fatal(err)
		}
	}
	w.close()
	close(events)

	if got, want := log.String(), "hello\nworld\ntail\n"; got != want {
		t.Errorf("log: got %q, want %q", got, want)
	}
	var texts []string
	for e := range events {
		texts = append(texts, e.Text)
	}
	want := []string{"hello", "world", "tail"}
	if len(texts) != len(want) {
		t.Fatalf("events: got %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("events: got %v, want %v", texts, want)
		}
	}
}

func TestLineWriterBoundsOverlongLines(t *testing.T) {
	var log bytes.Buffer
	w := &lineWriter{log: &log, events: make(chan build.Event, 1)}

	if _, err := w.Write(bytes.Repeat([]byte("x"), 3*maxLineLen)); err != nil {
		t.Fatal(err)
	}
	if got := len(w.buf); got >= maxLineLen {
		t.Errorf("buffered bytes: got %d, want < %d", got, maxLineLen)
	}
	w.close()
	if got, want := bytes.Count(log.Bytes(), []byte("x")), 3*maxLineLen; got != want {
		t.Errorf("logged bytes: got %d, want %d", got, want)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My App", "My_App"},
		{"weird/../name!", "weirdname"},
		{"ok-name_2", "ok-name_2"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeFileName(tt.in); got != tt.want {
			t.Errorf("sanitizeFileName(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
