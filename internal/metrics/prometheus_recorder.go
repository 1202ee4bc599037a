package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	lockBusy       prom.Gauge
	forcedReleases *prom.CounterVec
	buildOutcomes  *prom.CounterVec
	buildDuration  prom.Histogram
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs the recorder and registers its metrics
// with reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &PrometheusRecorder{
		lockBusy: prom.NewGauge(prom.GaugeOpts{
			Namespace: "webapk",
			Name:      "build_lock_busy",
			Help:      "Whether the build gate is currently held (1) or free (0)",
		}),
		forcedReleases: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "webapk",
			Name:      "build_lock_forced_releases_total",
			Help:      "Watchdog force releases of the build gate by reason",
		}, []string{"reason"}),
		buildOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "webapk",
			Name:      "build_outcomes_total",
			Help:      "Finished build attempts by outcome",
		}, []string{"outcome"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "webapk",
			Name:      "build_duration_seconds",
			Help:      "Wall time of build attempts from acquisition to cleanup",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 2700},
		}),
	}
	reg.MustRegister(r.lockBusy, r.forcedReleases, r.buildOutcomes, r.buildDuration)
	return r
}

func (r *PrometheusRecorder) SetLockBusy(busy bool) {
	if busy {
		r.lockBusy.Set(1)
	} else {
		r.lockBusy.Set(0)
	}
}

func (r *PrometheusRecorder) RecordForcedRelease(reason string) {
	r.forcedReleases.WithLabelValues(reason).Inc()
}

func (r *PrometheusRecorder) RecordBuildOutcome(outcome string) {
	r.buildOutcomes.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	r.buildDuration.Observe(d.Seconds())
}
