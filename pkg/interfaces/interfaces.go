// Package interfaces defines the core abstractions for the extractor service.
// All platform extractors implement these interfaces, making the system
// modular and easy to extend.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

// Extractor logs into one e-learning platform and walks its course
// hierarchy down to direct asset links.
//
// To add a new platform:
// 1. Create a new file in pkg/extractors/
// 2. Implement this interface
// 3. Register it in the ExtractorRegistry
type Extractor interface {
	// Name returns a unique identifier for this platform.
	Name() string

	// CanHandle returns true if this extractor recognizes the given
	// target (platform keyword, host, or URL).
	CanHandle(target string) bool

	// Login authenticates and returns a session for subsequent calls.
	Login(ctx context.Context, creds types.Credentials) (*types.Session, error)

	// Courses lists the courses available to the session.
	Courses(ctx context.Context, sess *types.Session) ([]types.Course, error)

	// Extract walks one course and returns its link manifest. A failed
	// subtree contributes zero entries; it never fails the whole course.
	Extract(ctx context.Context, sess *types.Session, course types.Course, opts ExtractOptions) (*manifest.Manifest, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// ExtractOptions carries the per-run collaborators an extraction uses.
type ExtractOptions struct {
	Progress ProgressTracker
	Input    InputProvider
	Workers  int
}

// ProgressSink receives throttled progress snapshots during a run.
type ProgressSink interface {
	Publish(p types.Progress)
}

// ProgressTracker counts traversal work on behalf of a run. Extractors
// grow the total as they discover nodes and step once per processed
// item; throttling and ETA math live behind the implementation.
type ProgressTracker interface {
	Grow(n int)
	Step()
	Flush()
}

// InputProvider answers mid-run prompts (quality, batch name, folder
// mode). Implementations return the default when the user stays silent.
type InputProvider interface {
	Ask(ctx context.Context, prompt, defaultVal string) (string, error)
}

// Store persists users, backups, and the APPX API directory.
type Store interface {
	AddSubscriber(ctx context.Context, userID int64) error
	Subscribers(ctx context.Context) ([]int64, error)

	SetPremium(ctx context.Context, userID int64, until time.Time) error
	IsPremium(ctx context.Context, userID int64) (bool, error)
	RemovePremium(ctx context.Context, userID int64) error

	SaveBackup(ctx context.Context, userID int64, name string, m *manifest.Manifest) error
	ListBackups(ctx context.Context, userID int64) ([]string, error)
	GetBackup(ctx context.Context, userID int64, name string) (*manifest.Manifest, error)

	SetAppxAPI(ctx context.Context, appName, apiURL string) error
	GetAppxAPI(ctx context.Context, appName string) (string, error)
	ListAppxAPIs(ctx context.Context) (map[string]string, error)
	DeleteAppxAPI(ctx context.Context, appName string) error

	Close() error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Registry is a generic interface for component registries.
type Registry[T any] interface {
	// Register adds a component to the registry.
	Register(component T)

	// Get returns the appropriate component for the given target.
	Get(target string) T

	// All returns all registered components.
	All() []T
}

// Logger defines the logging interface used throughout the application.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
