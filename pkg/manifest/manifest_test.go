package manifest

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Kind
	}{
		{"mpd manifest", "https://cdn.example.com/stream/master.mpd", KindDRMVideo},
		{"mpd with query", "https://cdn.example.com/master.mpd?token=x", KindDRMVideo},
		{"videoid marker", "https://host.example.com/get.videoid=829", KindDRMVideo},
		{"testbook marker", "https://cpvod.testbook.com/x.testbook/playlist", KindDRMVideo},
		{"hls playlist", "https://cdn.example.com/v/master.m3u8", KindVideo},
		{"plain mp4", "https://apps-s3.example.com/plain/720x1280.mp4", KindVideo},
		{"pdf", "https://kdcampus.live/uploaded/content_data/notes.pdf", KindPDF},
		{"youtube fallback", "https://youtu.be/dQw4w9WgXcQ", KindVideo},
		{"bare page", "https://example.com/watch?v=abc", KindVideo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.url); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestAddDeduplicatesKeepingFirst(t *testing.T) {
	m := New("batch")
	if !m.Add("Lecture 1", "https://a.example.com/1.m3u8") {
		t.Fatal("first Add returned false")
	}
	if m.Add("Lecture 1 (again)", "https://a.example.com/1.m3u8") {
		t.Error("duplicate URL was added")
	}
	if !m.Add("Lecture 2", "https://a.example.com/2.m3u8") {
		t.Error("distinct URL was rejected")
	}
	if m.Add("", "") {
		t.Error("empty URL was added")
	}

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if m.Entries[0].Title != "Lecture 1" {
		t.Errorf("first kept title = %q, want %q", m.Entries[0].Title, "Lecture 1")
	}
}

func TestAddRejectsURLsThatWouldNotRoundTrip(t *testing.T) {
	m := New("batch")
	if m.Add("Thumb", "/images/thumb_42.png") {
		t.Error("relative URL was added")
	}
	if m.Add("Odd", "ftp://example.com/file") {
		t.Error("non-http scheme was added")
	}
	if !m.Add("Stored", "enc_url:Zm9vYmFy") {
		t.Error("encrypted-at-rest URL was rejected")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}

	got := Parse("batch", m.Serialize())
	if got.Len() != m.Len() {
		t.Errorf("Parse(Serialize()) kept %d entries, want %d", got.Len(), m.Len())
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	m := New("SSC Batch")
	m.Add("Lecture 1: Intro", "https://cdn.example.com/1/master.m3u8")
	m.Add("Notes: Chapter 1", "https://cdn.example.com/notes1.pdf")
	m.Add("DRM Class", "https://cdn.example.com/2/master.mpd?auth=a:b")

	got := Parse("SSC Batch", m.Serialize())
	if got.Len() != m.Len() {
		t.Fatalf("Parse() has %d entries, want %d", got.Len(), m.Len())
	}
	for i, e := range m.Entries {
		if got.Entries[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, got.Entries[i], e)
		}
	}
}

func TestParseSkipsLinesWithoutLinks(t *testing.T) {
	data := "Lecture 1:https://cdn.example.com/1.m3u8\n\nheader without a link\nL2:http://cdn.example.com/2.mp4\n"
	m := Parse("b", data)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if m.Entries[1].URL != "http://cdn.example.com/2.mp4" {
		t.Errorf("second URL = %q", m.Entries[1].URL)
	}
}

func TestCounts(t *testing.T) {
	m := New("b")
	m.Add("a", "https://x/1.m3u8")
	m.Add("b", "https://x/2.mpd")
	m.Add("c", "https://x/3.pdf")
	m.Add("d", "https://x/4.mp4")

	videos, drm, pdfs := m.Counts()
	if videos != 2 || drm != 1 || pdfs != 1 {
		t.Errorf("Counts() = (%d, %d, %d), want (2, 1, 1)", videos, drm, pdfs)
	}
}

func TestIndexedReport(t *testing.T) {
	m := New("Target 2026")
	m.Add("Lecture 1", "https://x/1.m3u8")
	m.Add("Notes", "https://x/n.pdf")

	out := m.Indexed()
	for _, want := range []string{
		"BATCH DETAILS",
		"Name      : Target 2026",
		"Total     : 2",
		"1. Lecture 1:https://x/1.m3u8",
		"2. Notes:https://x/n.pdf",
		"personal archival only",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Indexed() missing %q in:\n%s", want, out)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := New("b")
	m.Add("Lecture 1", "https://cdn.example.com/1/master.m3u8")
	m.Add("Notes", "https://cdn.example.com/n.pdf")

	enc := m.Encrypt()
	for i, e := range enc.Entries {
		if !strings.HasPrefix(e.URL, "enc_url:") {
			t.Errorf("entry %d not encrypted: %q", i, e.URL)
		}
	}

	dec := enc.Decrypt()
	if dec.Len() != m.Len() {
		t.Fatalf("Decrypt() has %d entries, want %d", dec.Len(), m.Len())
	}
	for i, e := range m.Entries {
		if dec.Entries[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, dec.Entries[i], e)
		}
	}
}

func TestDecryptPassesPlainEntriesThrough(t *testing.T) {
	m := New("b")
	m.Add("Plain", "https://cdn.example.com/v.mp4")
	dec := m.Decrypt()
	if dec.Len() != 1 || dec.Entries[0].URL != "https://cdn.example.com/v.mp4" {
		t.Errorf("Decrypt() = %+v, want plain entry preserved", dec.Entries)
	}
}

func TestParseReadsEncryptedLines(t *testing.T) {
	m := New("Batch")
	m.Add("Lecture 1", "https://cdn.example.com/v1.m3u8")
	m.Add("Notes", "https://cdn.example.com/n1.pdf")

	stored := m.Encrypt().Serialize()
	got := Parse("Batch", stored).Decrypt()

	if got.Len() != m.Len() {
		t.Fatalf("round trip lost entries: got %d, want %d", got.Len(), m.Len())
	}
	for i := range m.Entries {
		if got.Entries[i] != m.Entries[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got.Entries[i], m.Entries[i])
		}
	}
}
