package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

type recordingSink struct {
	mu        sync.Mutex
	snapshots []types.Progress
}

func (s *recordingSink) Publish(p types.Progress) {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, p)
	s.mu.Unlock()
}

func TestTrackerThrottlesEmissions(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink, 10*time.Second)

	clock := time.Unix(1000, 0)
	tr.now = func() time.Time { return clock }

	tr.Grow(100)
	for i := 0; i < 5; i++ {
		clock = clock.Add(time.Second)
		tr.Step()
	}
	// 5 steps over 5 seconds: only the first (lastEmit zero) gets through.
	assert.Len(t, sink.snapshots, 1)

	clock = clock.Add(10 * time.Second)
	tr.Step()
	require.Len(t, sink.snapshots, 2)
	assert.Equal(t, 6, sink.snapshots[1].Processed)
	assert.Equal(t, 100, sink.snapshots[1].Total)
}

func TestTrackerFlushAlwaysEmits(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink, time.Hour)

	clock := time.Unix(1000, 0)
	tr.now = func() time.Time { return clock }

	tr.Grow(4)
	clock = clock.Add(time.Second)
	tr.Step()
	tr.Step()
	clock = clock.Add(time.Second)
	tr.Flush()

	require.NotEmpty(t, sink.snapshots)
	last := sink.snapshots[len(sink.snapshots)-1]
	assert.Equal(t, 2, last.Processed)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, 2*time.Second, last.Elapsed)
	// 2 items in 2s leaves 2 items at 1s each.
	assert.Equal(t, 2*time.Second, last.ETA)
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tr *Tracker
	tr.Grow(10)
	tr.Step()
	tr.Flush()

	tr = NewTracker(nil, 0)
	tr.Grow(10)
	tr.Step()
	tr.Flush()
}

func TestManagerOneRunPerUser(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	r1, err := m.Start(ctx, 7, nil, StaticInput{})
	require.NoError(t, err)

	_, err = m.Start(ctx, 7, nil, StaticInput{})
	assert.ErrorIs(t, err, ErrRunActive)

	// A different user is unaffected.
	r2, err := m.Start(ctx, 8, nil, StaticInput{})
	require.NoError(t, err)

	m.Finish(r1)
	_, err = m.Start(ctx, 7, nil, StaticInput{})
	assert.NoError(t, err)

	m.Finish(r2)
}

func TestManagerCancelPropagates(t *testing.T) {
	m := NewManager()
	r, err := m.Start(context.Background(), 7, nil, StaticInput{})
	require.NoError(t, err)
	defer m.Finish(r)

	require.True(t, m.Cancel(7))
	select {
	case <-r.Ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("run context not cancelled")
	}

	assert.False(t, m.Cancel(99))
}

type slowInput struct{ delay time.Duration }

func (s slowInput) Ask(ctx context.Context, prompt, defaultVal string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.delay):
		return "answered", nil
	}
}

func TestTimeoutInputFallsBackToDefault(t *testing.T) {
	in := TimeoutInput{Inner: slowInput{delay: time.Hour}, Timeout: 10 * time.Millisecond}
	got, err := in.Ask(context.Background(), "quality?", "720")
	require.NoError(t, err)
	assert.Equal(t, "720", got)
}

func TestTimeoutInputForwardsAnswer(t *testing.T) {
	in := TimeoutInput{Inner: slowInput{delay: time.Millisecond}, Timeout: time.Second}
	got, err := in.Ask(context.Background(), "quality?", "720")
	require.NoError(t, err)
	assert.Equal(t, "answered", got)
}

func TestTimeoutInputHonorsRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := TimeoutInput{Inner: slowInput{delay: time.Hour}, Timeout: time.Hour}
	_, err := in.Ask(ctx, "quality?", "720")
	assert.Error(t, err)
}
