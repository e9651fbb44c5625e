package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

func testLogger() *logging.Logger {
	return logging.New("error", false, io.Discard)
}

func newTestAPI(t *testing.T, handler http.Handler) *API {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := testLogger()
	return &API{
		client: httpclient.New(log),
		log:    log,
		base:   srv.URL + "/bottest-token",
	}
}

func TestGetUpdatesParsesMessages(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/getUpdates" {
			t.Errorf("path = %q, want /bottest-token/getUpdates", r.URL.Path)
		}
		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"from":{"id":7,"username":"alice"},"chat":{"id":7},"text":"/start"}},
			{"update_id":11,"edited_message":{"message_id":2}},
			{"update_id":12,"message":{"message_id":3,"from":{"id":8},"chat":{"id":-100},"text":"hello"}}
		]}`)
	}))

	updates, next, err := api.GetUpdates(context.Background(), 5, 0)
	if err != nil {
		t.Fatalf("GetUpdates() error = %v", err)
	}
	if next != 13 {
		t.Errorf("next offset = %d, want 13", next)
	}
	if len(updates) != 2 {
		t.Fatalf("len(updates) = %d, want 2", len(updates))
	}
	want := types.Update{UpdateID: 10, ChatID: 7, UserID: 7, Username: "alice", Text: "/start", MessageID: 1}
	if updates[0] != want {
		t.Errorf("updates[0] = %+v, want %+v", updates[0], want)
	}
	if updates[1].ChatID != -100 || updates[1].Text != "hello" {
		t.Errorf("updates[1] = %+v, want chat -100 text hello", updates[1])
	}
}

func TestSendMessageReturnsID(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["text"] != "hi" {
			t.Errorf("text = %v, want hi", payload["text"])
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":99}}`)
	}))

	id, err := api.SendMessage(context.Background(), 7, "hi")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if id != 99 {
		t.Errorf("message id = %d, want 99", id)
	}
}

func TestCallSurfacesAPIErrors(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
	}))

	_, err := api.SendMessage(context.Background(), 7, "hi")
	if err == nil {
		t.Fatal("SendMessage() error = nil, want api error")
	}
}

func TestSendDocumentMultipart(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("chat_id"); got != "42" {
			t.Errorf("chat_id = %q, want 42", got)
		}
		if got := r.FormValue("caption"); got != "Notes" {
			t.Errorf("caption = %q, want Notes", got)
		}
		f, hdr, err := r.FormFile("document")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "batch.txt" {
			t.Errorf("filename = %q, want batch.txt", hdr.Filename)
		}
		body, _ := io.ReadAll(f)
		if string(body) != "Lecture:https://example.com/a.m3u8\n" {
			t.Errorf("file body = %q", body)
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":5}}`)
	}))

	doc := types.Document{
		Name:    "batch.txt",
		Caption: "Notes",
		Data:    []byte("Lecture:https://example.com/a.m3u8\n"),
	}
	if err := api.SendDocument(context.Background(), 42, doc); err != nil {
		t.Fatalf("SendDocument() error = %v", err)
	}
}

func TestManifestFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Physics Batch 2024", "Physics_Batch_2024.txt"},
		{"a/b:c", "abc.txt"},
		{"", "manifest.txt"},
	}
	for _, tt := range tests {
		if got := manifestFileName(tt.in); got != tt.want {
			t.Errorf("manifestFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
