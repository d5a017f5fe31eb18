package db

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// SnapshotSource is read by the Recorder. *motion.Engine implements it.
type SnapshotSource interface {
	Snapshot() motion.Snapshot
}

// Recorder samples a SnapshotSource on a fixed interval and persists one
// session per active span of the engine. A session opens on the first tick
// that sees IsActive and closes on the first tick that does not.
type Recorder struct {
	db       *DB
	source   SnapshotSource
	clock    timeutil.Clock
	interval time.Duration

	mu      sync.Mutex
	current *Session
	samples int
}

func NewRecorder(db *DB, source SnapshotSource, clock timeutil.Clock, interval time.Duration) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Recorder{db: db, source: source, clock: clock, interval: interval}
}

// Run samples until ctx is done. An open session is closed on the way out.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	logf("recorder sampling every %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.finish()
			return ctx.Err()
		case <-ticker.C():
			if err := r.Tick(); err != nil {
				logf("recorder: %v", err)
			}
		}
	}
}

// Tick takes one sample. It is exported so callers can force a sample, for
// example right after a lifecycle change. The snapshot is read under the
// recorder lock so concurrent ticks apply in the order they observed the
// engine.
func (r *Recorder) Tick() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickLocked(r.source.Snapshot(), r.clock.Now())
}

// Restart closes the open session with the counters it has reached, runs
// reset, and opens a fresh session if the engine is still active. Engine
// resets zero the frame and step counters, so one session row never spans a
// reset.
func (r *Recorder) Restart(reset func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	r.finishLocked(r.source.Snapshot(), now)
	reset()
	return r.tickLocked(r.source.Snapshot(), now)
}

func (r *Recorder) tickLocked(snap motion.Snapshot, now time.Time) error {
	if !snap.IsActive {
		r.finishLocked(snap, now)
		return nil
	}
	if r.current == nil {
		s, err := r.db.StartSession(snap.Mode, now)
		if err != nil {
			return err
		}
		logf("session %s started (mode=%s)", s.ID, s.Mode)
		r.current = s
		r.samples = 0
	}
	if err := r.db.RecordSample(r.current.ID, now, snap); err != nil {
		return err
	}
	r.samples++
	return nil
}

// Current returns the ID of the open session, or "" when none is open.
func (r *Recorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.ID
}

func (r *Recorder) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked(r.source.Snapshot(), r.clock.Now())
}

func (r *Recorder) finishLocked(snap motion.Snapshot, now time.Time) {
	if r.current == nil {
		return
	}
	if err := r.db.EndSession(r.current.ID, now, snap); err != nil {
		logf("recorder: %v", err)
	}
	logf("session %s ended after %d samples", r.current.ID, r.samples)
	r.current = nil
}
