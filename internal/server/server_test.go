package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/webapk-bot/webapk/internal/buildlock"
	"github.com/webapk-bot/webapk/internal/history"
)

func newTestHandler() (*handler, *buildlock.Lock) {
	lock := buildlock.New(&buildlock.Config{
		MaxBuildTime:      45 * time.Minute,
		InactivityTimeout: 10 * time.Minute,
		WatchdogInterval:  time.Minute,
	}, clockwork.NewRealClock(), nil, nil)
	return &handler{lock: lock}, lock
}

func TestStatusFree(t *testing.T) {
	h, _ := newTestHandler()
	w := httptest.NewRecorder()

	h.Status(w, httptest.NewRequest("GET", "/status", nil))

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Busy {
		t.Error("Busy: got true, want false")
	}
	if resp.Holder != nil {
		t.Errorf("Holder: got %+v, want nil", resp.Holder)
	}
}

func TestStatusHeld(t *testing.T) {
	h, lock := newTestHandler()
	lock.Acquire(7)
	w := httptest.NewRecorder()

	h.Status(w, httptest.NewRequest("GET", "/status", nil))

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Busy {
		t.Error("Busy: got false, want true")
	}
	if resp.Holder == nil || resp.Holder.ID != 7 {
		t.Errorf("Holder: got %+v, want ID 7", resp.Holder)
	}
}

type StubLister struct {
	Records []*history.Record
	Err     error
	Limit   int
}

func (l *StubLister) ListRecords(_ context.Context, limit int) ([]*history.Record, error) {
	l.Limit = limit
	return l.Records, l.Err
}

func TestBuilds(t *testing.T) {
	h, _ := newTestHandler()
	h.builds = &StubLister{Records: []*history.Record{{
		ID:         uuid.New(),
		ChatID:     7,
		JobSummary: "url https://example.com",
		Outcome:    "success",
		Duration:   90 * time.Second,
	}}}
	w := httptest.NewRecorder()

	h.Builds(w, httptest.NewRequest("GET", "/builds?limit=5", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	var resp []buildRecord
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 {
		t.Fatalf("records: got %d, want 1", len(resp))
	}
	if got, want := resp[0].Outcome, "success"; got != want {
		t.Errorf("outcome: got %q, want %q", got, want)
	}
	if got, want := resp[0].DurationMS, int64(90000); got != want {
		t.Errorf("duration_ms: got %d, want %d", got, want)
	}
	if got, want := h.builds.(*StubLister).Limit, 5; got != want {
		t.Errorf("limit passed to lister: got %d, want %d", got, want)
	}
}

func TestBuildsInvalidLimit(t *testing.T) {
	h, _ := newTestHandler()
	h.builds = &StubLister{}
	w := httptest.NewRecorder()

	h.Builds(w, httptest.NewRequest("GET", "/builds?limit=junk", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestBuildsListFailure(t *testing.T) {
	h, _ := newTestHandler()
	h.builds = &StubLister{Err: fmt.Errorf("pg: connection refused")}
	w := httptest.NewRecorder()

	h.Builds(w, httptest.NewRequest("GET", "/builds", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
