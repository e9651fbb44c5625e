package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
)

// ErrRunActive is returned when a user already has an extraction running.
var ErrRunActive = errors.New("an extraction is already running for this user")

// Run is one extraction in flight. Cancellation flows through its
// context; nothing about a run is global.
type Run struct {
	ID      string
	UserID  int64
	Ctx     context.Context
	Tracker *Tracker
	Input   interfaces.InputProvider

	cancel context.CancelFunc
}

// Cancel aborts the run.
func (r *Run) Cancel() {
	r.cancel()
}

// Manager tracks at most one active run per user.
type Manager struct {
	mu   sync.Mutex
	runs map[int64]*Run
}

// NewManager creates an empty run manager.
func NewManager() *Manager {
	return &Manager{runs: make(map[int64]*Run)}
}

// Start registers a new run for the user. The caller must call Finish
// when the run ends, usually via defer.
func (m *Manager) Start(ctx context.Context, userID int64, tracker *Tracker, input interfaces.InputProvider) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, active := m.runs[userID]; active {
		return nil, ErrRunActive
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		ID:      uuid.NewString(),
		UserID:  userID,
		Ctx:     runCtx,
		Tracker: tracker,
		Input:   input,
		cancel:  cancel,
	}
	m.runs[userID] = r
	return r, nil
}

// Finish removes the run and releases its context.
func (m *Manager) Finish(r *Run) {
	if r == nil {
		return
	}
	r.cancel()
	m.mu.Lock()
	if cur, ok := m.runs[r.UserID]; ok && cur.ID == r.ID {
		delete(m.runs, r.UserID)
	}
	m.mu.Unlock()
}

// Cancel aborts the user's active run, if any. Returns true when a run
// was cancelled.
func (m *Manager) Cancel(userID int64) bool {
	m.mu.Lock()
	r, ok := m.runs[userID]
	m.mu.Unlock()
	if ok {
		r.Cancel()
	}
	return ok
}

// Active returns the user's running extraction, or nil.
func (m *Manager) Active(userID int64) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[userID]
}
