// Package session manages extraction runs: progress throttling,
// cancellation, and prompted user input. Each run is self-contained so
// concurrent extractions never share mutable state.
package session

import (
	"sync"
	"time"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

// DefaultProgressInterval is the minimum gap between progress emissions.
const DefaultProgressInterval = 15 * time.Second

// Tracker counts processed items and publishes throttled progress
// snapshots. A nil sink makes every method a no-op, so extractors never
// need to guard their calls.
type Tracker struct {
	sink     interfaces.ProgressSink
	interval time.Duration

	mu        sync.Mutex
	processed int
	total     int
	start     time.Time
	lastEmit  time.Time
	// now is swappable in tests.
	now func() time.Time
}

// NewTracker creates a tracker publishing to sink at most once per
// interval. A zero interval uses the default.
func NewTracker(sink interfaces.ProgressSink, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Tracker{
		sink:     sink,
		interval: interval,
		now:      time.Now,
	}
}

// Grow raises the expected total as traversal discovers more work.
func (t *Tracker) Grow(n int) {
	if t == nil || t.sink == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.start.IsZero() {
		t.start = t.now()
	}
	t.total += n
}

// Step records one processed item and emits a snapshot when the
// throttle interval has passed.
func (t *Tracker) Step() {
	if t == nil || t.sink == nil {
		return
	}
	t.mu.Lock()
	if t.start.IsZero() {
		t.start = t.now()
	}
	t.processed++
	now := t.now()
	emit := now.Sub(t.lastEmit) >= t.interval
	var p types.Progress
	if emit {
		t.lastEmit = now
		p = t.snapshotLocked(now)
	}
	t.mu.Unlock()

	if emit {
		t.sink.Publish(p)
	}
}

// Flush publishes a final snapshot regardless of throttling.
func (t *Tracker) Flush() {
	if t == nil || t.sink == nil {
		return
	}
	t.mu.Lock()
	now := t.now()
	if t.start.IsZero() {
		t.start = now
	}
	t.lastEmit = now
	p := t.snapshotLocked(now)
	t.mu.Unlock()

	t.sink.Publish(p)
}

func (t *Tracker) snapshotLocked(now time.Time) types.Progress {
	elapsed := now.Sub(t.start)
	var eta time.Duration
	if t.processed > 0 && t.total > t.processed {
		perItem := elapsed / time.Duration(t.processed)
		eta = perItem * time.Duration(t.total-t.processed)
	}
	return types.Progress{
		Processed: t.processed,
		Total:     t.total,
		Elapsed:   elapsed,
		ETA:       eta,
	}
}
