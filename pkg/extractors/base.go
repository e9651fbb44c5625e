// Package extractors provides the platform extractor implementations.
// Each extractor logs into one e-learning platform and walks its course
// hierarchy down to direct asset links.
//
// To add a new platform:
// 1. Create a new file (e.g., myplatform.go)
// 2. Implement the interfaces.Extractor interface
// 3. Register it in internal/app
package extractors

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
)

const (
	// browserUA is sent on requests where the platform checks for a browser.
	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// defaultWorkers bounds leaf fan-out when the caller does not say.
	defaultWorkers = 5

	// traversalAttempts is how often a failing subtree fetch is retried
	// before it is abandoned.
	traversalAttempts = 5
)

// BaseExtractor provides common functionality for extractors.
type BaseExtractor struct {
	client *httpclient.Client
	log    *logging.Logger
}

// NewBaseExtractor creates a new base extractor.
func NewBaseExtractor(client *httpclient.Client, log *logging.Logger) *BaseExtractor {
	return &BaseExtractor{client: client, log: log}
}

// Close releases resources.
func (b *BaseExtractor) Close() error {
	return nil
}

// withRetry runs fn with exponential backoff, capped at 30 seconds per
// wait and traversalAttempts tries in total.
func (b *BaseExtractor) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < traversalAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == traversalAttempts-1 {
			break
		}
		wait := time.Duration(1<<uint(attempt)) * time.Second
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

// forEachLimit runs fn for every index with at most limit goroutines.
// fn returning an error cancels the remaining work.
func forEachLimit(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if limit <= 0 {
		limit = defaultWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error { return fn(gctx, i) })
	}
	return g.Wait()
}

// workers resolves the fan-out width from options.
func workers(opts interfaces.ExtractOptions) int {
	if opts.Workers > 0 {
		return opts.Workers
	}
	return defaultWorkers
}

// grow and step tolerate runs without a progress tracker.
func grow(opts interfaces.ExtractOptions, n int) {
	if opts.Progress != nil {
		opts.Progress.Grow(n)
	}
}

func step(opts interfaces.ExtractOptions) {
	if opts.Progress != nil {
		opts.Progress.Step()
	}
}

// ask prompts through the run's input provider, tolerating a missing one.
func ask(ctx context.Context, opts interfaces.ExtractOptions, prompt, defaultVal string) (string, error) {
	if opts.Input == nil {
		return defaultVal, nil
	}
	answer, err := opts.Input.Ask(ctx, prompt, defaultVal)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return defaultVal, nil
	}
	return answer, nil
}

// flexID decodes ids that arrive as either JSON numbers or strings,
// which varies between platform backends and sometimes between
// endpoints of the same platform.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	*f = flexID(strings.Trim(string(b), `"`))
	return nil
}

func (f flexID) String() string { return string(f) }
