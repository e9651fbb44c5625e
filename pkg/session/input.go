package session

import (
	"context"
	"errors"
	"time"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
)

// StaticInput answers every prompt with its default, for non-interactive
// runs and tests.
type StaticInput struct{}

// Ask returns the default value immediately.
func (StaticInput) Ask(ctx context.Context, prompt, defaultVal string) (string, error) {
	return defaultVal, nil
}

// TimeoutInput wraps another provider, falling back to the default when
// no answer arrives within the timeout. Context cancellation still
// aborts the run.
type TimeoutInput struct {
	Inner   interfaces.InputProvider
	Timeout time.Duration
}

// Ask forwards to the inner provider under a deadline.
func (t TimeoutInput) Ask(ctx context.Context, prompt, defaultVal string) (string, error) {
	if t.Timeout <= 0 {
		return t.Inner.Ask(ctx, prompt, defaultVal)
	}
	askCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	answer, err := t.Inner.Ask(askCtx, prompt, defaultVal)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return defaultVal, nil
		}
		return "", err
	}
	if answer == "" {
		return defaultVal, nil
	}
	return answer, nil
}
