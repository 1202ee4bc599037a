// Package server is the operator-facing HTTP surface: health, lock status
// and metrics. Users never see it; they talk to the bot.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webapk-bot/webapk/internal/buildlock"
	"github.com/webapk-bot/webapk/internal/history"
)

// BuildLister reads recent build history for the /builds endpoint.
type BuildLister interface {
	ListRecords(ctx context.Context, limit int) ([]*history.Record, error)
}

// New returns the admin HTTP server. It should be started with
// http.Server's ListenAndServe. builds may be nil, in which case /builds
// is not served.
func New(cfg *Config, log *slog.Logger, lock *buildlock.Lock, registry *prometheus.Registry, builds BuildLister) *http.Server {
	addr := net.JoinHostPort(cfg.host(), strconv.Itoa(cfg.port()))

	subLogger := log.With("component", "server")
	subLogLogger := slog.NewLogLogger(subLogger.Handler(), slog.LevelError)

	h := &handler{lock: lock, builds: builds}

	mux := &http.ServeMux{}
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /status", h.Status)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if builds != nil {
		mux.HandleFunc("GET /builds", h.Builds)
	}

	return &http.Server{
		Addr:              addr,
		ErrorLog:          subLogLogger,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

type handler struct {
	lock   *buildlock.Lock
	builds BuildLister
}

func (h *handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Busy   bool          `json:"busy"`
	Holder *statusHolder `json:"holder,omitempty"`
}

type statusHolder struct {
	ID             int64     `json:"id"`
	AcquiredAt     time.Time `json:"acquired_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func (h *handler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Busy: h.lock.Busy()}
	if holder := h.lock.Holder(); holder != nil {
		resp.Holder = &statusHolder{
			ID:             holder.ID,
			AcquiredAt:     holder.AcquiredAt,
			ElapsedSeconds: holder.Elapsed.Seconds(),
			LastActivityAt: holder.LastActivityAt,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type buildRecord struct {
	ID           string    `json:"id"`
	ChatID       int64     `json:"chat_id"`
	JobSummary   string    `json:"job_summary"`
	Outcome      string    `json:"outcome"`
	DurationMS   int64     `json:"duration_ms"`
	ArtifactSize int64     `json:"artifact_size"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *handler) Builds(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			http.Error(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.builds.ListRecords(r.Context(), limit)
	if err != nil {
		http.Error(w, "listing builds failed", http.StatusInternalServerError)
		return
	}

	resp := make([]buildRecord, 0, len(records))
	for _, rec := range records {
		resp = append(resp, buildRecord{
			ID:           rec.ID.String(),
			ChatID:       rec.ChatID,
			JobSummary:   rec.JobSummary,
			Outcome:      rec.Outcome,
			DurationMS:   rec.Duration.Milliseconds(),
			ArtifactSize: rec.ArtifactSize,
			CreatedAt:    rec.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
