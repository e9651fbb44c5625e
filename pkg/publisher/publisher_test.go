package publisher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/cipher"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
)

func TestSplitKeyedURL(t *testing.T) {
	tests := []struct {
		in      string
		wantURL string
		wantKey string
	}{
		{"https://cdn.example.com/v/encrypted.mkv*abc123", "https://cdn.example.com/v/encrypted.mkv", "abc123"},
		{"https://cdn.example.com/doc.pdf", "https://cdn.example.com/doc.pdf", ""},
		{"https://cdn.example.com/a*b*key", "https://cdn.example.com/a*b", "key"},
	}
	for _, tt := range tests {
		gotURL, gotKey := splitKeyedURL(tt.in)
		if gotURL != tt.wantURL || gotKey != tt.wantKey {
			t.Errorf("splitKeyedURL(%q) = (%q, %q), want (%q, %q)",
				tt.in, gotURL, gotKey, tt.wantURL, tt.wantKey)
		}
	}
}

func TestNeedsHeaderPatch(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/v/encrypted.mkv", true},
		{"https://cdn.example.com/v/encrypted.mp4", true},
		{"https://cdn.example.com/notes.pdf", true},
		{"https://cdn.example.com/notes.PDF", true},
		{"https://cdn.example.com/v/plain.mp4", false},
		{"https://youtu.be/dQw4w9WgXcQ", false},
	}
	for _, tt := range tests {
		if got := needsHeaderPatch(tt.url); got != tt.want {
			t.Errorf("needsHeaderPatch(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Lecture 01 - Intro", "Lecture_01_-_Intro"},
		{"a/b\\c:d", "abcd"},
		{"///", "file"},
		{"notes.pdf", "notes.pdf"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	pdf := manifest.Entry{Title: "Notes", URL: "https://cdn.example.com/notes.pdf"}
	if got := extensionFor(pdf); got != ".pdf" {
		t.Errorf("extensionFor(pdf) = %q, want %q", got, ".pdf")
	}
	vid := manifest.Entry{Title: "Class", URL: "https://cdn.example.com/class.m3u8"}
	if got := extensionFor(vid); got != ".mp4" {
		t.Errorf("extensionFor(video) = %q, want %q", got, ".mp4")
	}
}

func TestPatchFileHeader(t *testing.T) {
	const key = "testkey"
	plain := []byte("this is the original file header content....tail unchanged")

	obfuscated := make([]byte, len(plain))
	copy(obfuscated, plain)
	cipher.PatchHeader(obfuscated, key) // XOR is its own inverse

	path := filepath.Join(t.TempDir(), "asset.bin")
	if err := os.WriteFile(path, obfuscated, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if err := patchFileHeader(path, key); err != nil {
		t.Fatalf("patchFileHeader() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != string(plain) {
		t.Errorf("patched file = %q, want %q", got, plain)
	}
}
