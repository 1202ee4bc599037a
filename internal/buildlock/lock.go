// Package buildlock provides the process-wide single-slot gate that limits
// the service to one running build, together with a watchdog that recovers
// the slot when a build hangs.
package buildlock

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/webapk-bot/webapk/internal/metrics"
)

// Config holds the lock timing parameters.
type Config struct {
	// MaxBuildTime is the absolute ceiling on how long a single build may
	// hold the slot, activity or not.
	MaxBuildTime time.Duration `env:"MAX_BUILD_TIME" envDefault:"45m"`
	// InactivityTimeout is how long the slot may go without an activity
	// update before it is considered stuck.
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"10m"`
	// WatchdogInterval is the cadence of the watchdog check.
	WatchdogInterval time.Duration `env:"WATCHDOG_INTERVAL" envDefault:"1m"`
}

// HolderInfo describes the current holder of the slot.
type HolderInfo struct {
	ID             int64
	AcquiredAt     time.Time
	Elapsed        time.Duration
	LastActivityAt time.Time
}

// Lock is the single-slot build gate. Acquire never blocks and never
// queues; a held slot means the caller must come back later.
//
// The watchdog runs between Start and Stop on its own goroutine and
// force-releases a slot that breaches MaxBuildTime or InactivityTimeout.
// It only resets the bookkeeping: work already spawned by the previous
// holder is not terminated by the release.
type Lock struct {
	config   *Config
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder metrics.Recorder

	mu           sync.Mutex
	held         bool
	holderID     int64
	acquiredAt   time.Time
	lastActivity time.Time

	stop chan struct{}
	done chan struct{}
}

// New creates a Lock. The clock is injectable for tests; pass
// clockwork.NewRealClock() in production.
func New(config *Config, clock clockwork.Clock, logger *slog.Logger, recorder metrics.Recorder) *Lock {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Lock{
		config:   config,
		clock:    clock,
		logger:   logger.With("component", "buildlock"),
		recorder: recorder,
	}
}

// Start launches the watchdog. It must be called at most once before Stop.
func (l *Lock) Start() {
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.watch()
}

// Stop terminates the watchdog and waits for it to exit. The lock state
// itself is left as is.
func (l *Lock) Stop() {
	close(l.stop)
	<-l.done
}

func (l *Lock) watch() {
	defer close(l.done)
	ticker := l.clock.NewTicker(l.config.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.Chan():
			l.check()
		}
	}
}

// Acquire takes the slot for holderID if it is free. It reports whether the
// slot was taken; false means another build is running and the caller must
// not proceed.
func (l *Lock) Acquire(holderID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return false
	}
	now := l.clock.Now()
	l.held = true
	l.holderID = holderID
	l.acquiredAt = now
	l.lastActivity = now
	l.recorder.SetLockBusy(true)
	l.logger.Info("build slot acquired", "holder_id", holderID)
	return true
}

// Release frees the slot. A holder mismatch is logged but the slot is
// cleared anyway, so a confused caller can never wedge the gate.
func (l *Lock) Release(holderID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	if l.holderID != holderID {
		l.logger.Warn("build slot released by non-holder",
			"holder_id", l.holderID, "caller_id", holderID)
	} else {
		l.logger.Info("build slot released", "holder_id", holderID)
	}
	l.clearLocked()
}

// ForceRelease unconditionally frees the slot with no identity check. Used
// by the watchdog and by administrative recovery.
func (l *Lock) ForceRelease() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.logger.Warn("build slot force released", "holder_id", l.holderID)
	l.clearLocked()
}

// UpdateActivity marks the build as alive. It is a no-op when the slot is
// free.
func (l *Lock) UpdateActivity() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.lastActivity = l.clock.Now()
}

// Busy reports whether the slot is held.
func (l *Lock) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Holder returns a snapshot of the current holder, or nil when the slot is
// free.
func (l *Lock) Holder() *HolderInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	return &HolderInfo{
		ID:             l.holderID,
		AcquiredAt:     l.acquiredAt,
		Elapsed:        l.clock.Now().Sub(l.acquiredAt),
		LastActivityAt: l.lastActivity,
	}
}

// check is one watchdog tick. The absolute-time breach is evaluated before
// the inactivity breach and at most one of them fires per tick.
func (l *Lock) check() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	now := l.clock.Now()
	elapsed := now.Sub(l.acquiredAt)
	idle := now.Sub(l.lastActivity)

	if elapsed > l.config.MaxBuildTime {
		l.logger.Warn("build exceeded maximum time, forcing release",
			"holder_id", l.holderID, "elapsed", elapsed, "max", l.config.MaxBuildTime)
		l.recorder.RecordForcedRelease("timeout")
		l.clearLocked()
		return
	}
	if idle > l.config.InactivityTimeout {
		l.logger.Warn("build went quiet, forcing release",
			"holder_id", l.holderID, "idle", idle, "timeout", l.config.InactivityTimeout)
		l.recorder.RecordForcedRelease("inactivity")
		l.clearLocked()
		return
	}
	l.logger.Debug("build slot held",
		"holder_id", l.holderID, "elapsed", elapsed, "idle", idle)
}

// clearLocked resets the slot. Callers must hold l.mu.
func (l *Lock) clearLocked() {
	l.held = false
	l.holderID = 0
	l.acquiredAt = time.Time{}
	l.lastActivity = time.Time{}
	l.recorder.SetLockBusy(false)
}
