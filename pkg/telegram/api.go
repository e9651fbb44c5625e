// Package telegram is the chat boundary: a raw Bot API client and the
// command loop that drives extractions from chat messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

const apiHost = "https://api.telegram.org"

// API is a minimal Bot API client covering the calls the bot needs.
type API struct {
	client *httpclient.Client
	log    *logging.Logger
	base   string
}

// NewAPI creates a Bot API client for the given bot token.
func NewAPI(client *httpclient.Client, log *logging.Logger, token string) *API {
	return &API{
		client: client,
		log:    log.WithComponent("telegram"),
		base:   apiHost + "/bot" + token,
	}
}

// apiResponse is the Bot API envelope around every result.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (a *API) call(ctx context.Context, method string, payload any, out any) error {
	var resp apiResponse
	if err := a.client.PostJSON(ctx, a.base+"/"+method, nil, payload, &resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if !resp.OK {
		return fmt.Errorf("%s: %s", method, resp.Description)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

type wireUpdate struct {
	UpdateID int64        `json:"update_id"`
	Message  *wireMessage `json:"message"`
}

type wireMessage struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

// GetUpdates long-polls for new messages. Updates without a text
// message are consumed but not returned.
func (a *API) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]types.Update, int64, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message"},
	}
	var raw []wireUpdate
	if err := a.call(ctx, "getUpdates", payload, &raw); err != nil {
		return nil, offset, err
	}

	next := offset
	updates := make([]types.Update, 0, len(raw))
	for _, u := range raw {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.From == nil || u.Message.Text == "" {
			continue
		}
		updates = append(updates, types.Update{
			UpdateID:  u.UpdateID,
			ChatID:    u.Message.Chat.ID,
			UserID:    u.Message.From.ID,
			Username:  u.Message.From.Username,
			Text:      u.Message.Text,
			MessageID: u.Message.MessageID,
		})
	}
	return updates, next, nil
}

// SendMessage sends a plain-text message and returns its message ID.
func (a *API) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	var msg wireMessage
	if err := a.call(ctx, "sendMessage", payload, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessageText rewrites a previously sent message, used for
// in-place progress updates.
func (a *API) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	return a.call(ctx, "editMessageText", payload, nil)
}

// SendDocument uploads a file to the chat as a multipart request.
func (a *API) SendDocument(ctx context.Context, chatID int64, doc types.Document) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if doc.Caption != "" {
		if err := w.WriteField("caption", doc.Caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", doc.Name)
	if err != nil {
		return err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/sendDocument", bytes.NewReader(body.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("sendDocument: decode response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("sendDocument: %s", envelope.Description)
	}
	return nil
}
