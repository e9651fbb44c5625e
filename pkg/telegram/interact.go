package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

// chatInput answers prompts with the user's next plain message in the
// chat. The bot's dispatch loop feeds answers in through the pending
// map; the timeout wrapper around this provider supplies defaults.
type chatInput struct {
	bot    *Bot
	chatID int64
	userID int64
}

func (c *chatInput) Ask(ctx context.Context, prompt, defaultVal string) (string, error) {
	ch := make(chan string, 1)
	c.bot.mu.Lock()
	c.bot.pending[c.userID] = ch
	c.bot.mu.Unlock()
	defer func() {
		c.bot.mu.Lock()
		delete(c.bot.pending, c.userID)
		c.bot.mu.Unlock()
	}()

	text := prompt
	if defaultVal != "" {
		text = fmt.Sprintf("%s (default: %s)", prompt, defaultVal)
	}
	if _, err := c.bot.api.SendMessage(ctx, c.chatID, text); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case answer := <-ch:
		return answer, nil
	}
}

// progressSink renders progress snapshots into one chat message,
// edited in place.
type progressSink struct {
	api    *API
	log    *logging.Logger
	chatID int64

	mu        sync.Mutex
	messageID int64
}

// setMessage points the sink at the status message to edit.
func (s *progressSink) setMessage(id int64) {
	s.mu.Lock()
	s.messageID = id
	s.mu.Unlock()
}

func (s *progressSink) Publish(p types.Progress) {
	s.mu.Lock()
	id := s.messageID
	s.mu.Unlock()
	if id == 0 {
		return
	}

	text := fmt.Sprintf("Extracting: %d/%d\nElapsed: %s", p.Processed, p.Total, p.Elapsed.Round(time.Second))
	if p.ETA > 0 {
		text += fmt.Sprintf("\nETA: %s", p.ETA.Round(time.Second))
	}
	// Edits race with the poll loop only through the API; failures
	// (rate limits, unchanged text) are not worth surfacing.
	if err := s.api.EditMessageText(context.Background(), s.chatID, id, text); err != nil {
		s.log.WithError(err).Debug("progress edit failed")
	}
}
