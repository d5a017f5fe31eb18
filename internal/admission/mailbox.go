// Package admission decouples frame sources from the motion engine.
//
// Sources call Submit, which never blocks. A single worker started with Run
// hands frames to the engine one at a time. The mailbox holds at most one
// pending frame: a newer frame replaces an unconsumed one, so a slow engine
// always works on the freshest pose rather than a growing backlog.
package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// Processor consumes admitted frames. *motion.Engine satisfies it.
type Processor interface {
	ProcessFrame(f motion.Frame)
}

// Stats is a point-in-time view of the mailbox counters.
type Stats struct {
	Submitted     uint64        `json:"submitted"`
	Processed     uint64        `json:"processed"`
	Dropped       uint64        `json:"dropped"`
	LastSeq       uint64        `json:"last_seq"`
	Interval      time.Duration `json:"interval_ns"`
	Closed        bool          `json:"closed"`
	LastProcessed time.Time     `json:"last_processed,omitempty"`
}

// Mailbox is a single-slot, drop-oldest frame buffer with one consumer.
type Mailbox struct {
	clock    timeutil.Clock
	interval time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	pending *motion.Frame
	closed  bool
	lastSeq uint64
	lastAt  time.Time

	submitted atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
}

// New returns an open mailbox. interval is the minimum spacing between two
// frames handed to the processor; zero disables throttling.
func New(clock timeutil.Clock, interval time.Duration) *Mailbox {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	m := &Mailbox{clock: clock, interval: interval}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Submit offers a frame to the worker. It returns false once the mailbox is
// closed. An unconsumed frame already in the slot is dropped.
func (m *Mailbox) Submit(f motion.Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.submitted.Add(1)
	if m.pending != nil {
		m.dropped.Add(1)
	}
	m.pending = &f
	m.cond.Signal()
	return true
}

// next blocks until a frame is pending or the mailbox is closed.
func (m *Mailbox) next() (motion.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.pending == nil && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return motion.Frame{}, false
	}
	f := *m.pending
	m.pending = nil
	m.lastSeq = f.Seq
	return f, true
}

// Run delivers frames to p until ctx is cancelled or Close is called. It must
// be called from exactly one goroutine. A pending frame left at shutdown is
// discarded.
func (m *Mailbox) Run(ctx context.Context, p Processor) error {
	stop := context.AfterFunc(ctx, m.Close)
	defer stop()

	monitoring.Logf("admission: worker started (interval=%s)", m.interval)
	defer func() {
		monitoring.Logf("admission: worker stopped (processed=%d dropped=%d)", m.processed.Load(), m.dropped.Load())
	}()

	for {
		f, ok := m.next()
		if !ok {
			return ctx.Err()
		}
		p.ProcessFrame(f)
		m.processed.Add(1)

		m.mu.Lock()
		m.lastAt = m.clock.Now()
		m.mu.Unlock()

		if m.interval <= 0 {
			continue
		}
		select {
		case <-m.clock.After(m.interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close wakes the worker and rejects further submissions. It is idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.pending = nil
	m.cond.Broadcast()
}

// Stats returns the current counters.
func (m *Mailbox) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Submitted:     m.submitted.Load(),
		Processed:     m.processed.Load(),
		Dropped:       m.dropped.Load(),
		LastSeq:       m.lastSeq,
		Interval:      m.interval,
		Closed:        m.closed,
		LastProcessed: m.lastAt,
	}
}
