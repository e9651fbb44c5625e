package extractors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/cipher"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

func testLogger() *logging.Logger {
	return logging.New("error", false, io.Discard)
}

func newTestHTTPClient(t *testing.T) *httpclient.Client {
	t.Helper()
	return httpclient.New(testLogger())
}

func newAppxTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	videoID := cipher.EncryptAppx("dQw4w9WgXcQ")
	pdfLink := cipher.EncryptAppx("https://cdn.example.com/notes.pdf")
	pdfKey := cipher.EncryptAppx("abcdefg")

	mux := http.NewServeMux()
	mux.HandleFunc("/post/userLogin", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("source") != "website" {
			fmt.Fprint(w, `{"status":203}`)
			return
		}
		fmt.Fprint(w, `{"status":200,"data":{"token":"tok-1","userid":42}}`)
	})
	mux.HandleFunc("/get/mycoursev2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":7,"course_name":"Algebra Crash Course","folder_wise_course":1}]}`)
	})
	mux.HandleFunc("/get/folder_contentsv2", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("parent_id") {
		case "-1":
			fmt.Fprint(w, `{"data":[{"id":10,"Title":"Week 1","material_type":"FOLDER"}]}`)
		case "10":
			fmt.Fprintf(w, `{"data":[
				{"id":11,"Title":"Lecture 1","material_type":"VIDEO","video_id":%q},
				{"id":12,"Title":"Worksheet","material_type":"PDF","pdf_link":%q,"is_pdf_encrypted":1,"pdf_encryption_key":%q}
			]}`, videoID, pdfLink, pdfKey)
		default:
			fmt.Fprint(w, `{"data":[]}`)
		}
	})
	return httptest.NewServer(mux)
}

func TestAppxLoginRetriesAsWebsite(t *testing.T) {
	srv := newAppxTestServer(t)
	defer srv.Close()

	e := NewAppxExtractor(newTestHTTPClient(t), testLogger(), nil)
	sess, err := e.Login(context.Background(), types.Credentials{
		Identifier: "user@example.com",
		Password:   "hunter2",
		Host:       srv.URL,
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sess.Token != "tok-1" {
		t.Errorf("Login() token = %q, want %q", sess.Token, "tok-1")
	}
	if sess.UserID != "42" {
		t.Errorf("Login() user id = %q, want %q", sess.UserID, "42")
	}
}

func TestAppxCoursesAndExtract(t *testing.T) {
	srv := newAppxTestServer(t)
	defer srv.Close()

	e := NewAppxExtractor(newTestHTTPClient(t), testLogger(), nil)
	sess := &types.Session{Platform: "appx", Host: srv.URL, Token: "tok-1", UserID: "42"}

	courses, err := e.Courses(context.Background(), sess)
	if err != nil {
		t.Fatalf("Courses() error = %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("Courses() returned %d courses, want 1", len(courses))
	}
	if courses[0].Extra["folder_wise"] != "1" {
		t.Errorf("folder_wise = %q, want %q", courses[0].Extra["folder_wise"], "1")
	}

	m, err := e.Extract(context.Background(), sess, courses[0], interfaces.ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("Extract() yielded %d entries, want 2: %s", m.Len(), m.Serialize())
	}

	wantEntries := []struct {
		title, url string
		kind       manifest.Kind
	}{
		{"Lecture 1", "https://youtu.be/dQw4w9WgXcQ", manifest.KindVideo},
		{"Worksheet", "https://cdn.example.com/notes.pdf", manifest.KindPDF},
	}
	for i, want := range wantEntries {
		got := m.Entries[i]
		if got.Title != want.title || got.URL != want.url || got.Kind() != want.kind {
			t.Errorf("entry %d = (%q, %q, %v), want (%q, %q, %v)",
				i, got.Title, got.URL, got.Kind(), want.title, want.url, want.kind)
		}
	}
}

func TestResolvePDFKeysPerLink(t *testing.T) {
	e := NewAppxExtractor(newTestHTTPClient(t), testLogger(), nil)

	// First attachment's key decrypts to the plain-file sentinel, the
	// second carries its own real key.
	item := appxItem{
		Title:           "Worksheet",
		PDFLink:         cipher.EncryptAppx("https://cdn.example.com/ws.pdf"),
		IsPDFEncrypted:  "1",
		PDFKey:          cipher.EncryptAppx("abcdefg"),
		PDFLink2:        cipher.EncryptAppx("https://cdn.example.com/ws2.pdf"),
		IsPDF2Encrypted: "1",
		PDFKey2:         cipher.EncryptAppx("key-two"),
	}
	m := manifest.New("test")
	e.resolvePDF(item, m)

	want := []string{
		"https://cdn.example.com/ws.pdf",
		"https://cdn.example.com/ws2.pdf*key-two",
	}
	if m.Len() != len(want) {
		t.Fatalf("resolvePDF yielded %d entries, want %d: %s", m.Len(), len(want), m.Serialize())
	}
	for i, u := range want {
		if m.Entries[i].URL != u {
			t.Errorf("entry %d URL = %q, want %q", i, m.Entries[i].URL, u)
		}
	}
}

func TestResolveItemEmitsBothVideoLinks(t *testing.T) {
	e := NewAppxExtractor(newTestHTTPClient(t), testLogger(), nil)

	item := appxItem{
		Title:        "Lecture 9",
		MaterialType: "VIDEO",
		VideoID:      cipher.EncryptAppx("dQw4w9WgXcQ"),
		DownloadLink: cipher.EncryptAppx("https://cdn.example.com/lec9.mp4"),
	}
	m := manifest.New("test")
	e.resolveItem(context.Background(), &types.Session{}, types.Course{}, item, "0", m)

	want := []string{
		"https://youtu.be/dQw4w9WgXcQ",
		"https://cdn.example.com/lec9.mp4",
	}
	if m.Len() != len(want) {
		t.Fatalf("resolveItem yielded %d entries, want %d: %s", m.Len(), len(want), m.Serialize())
	}
	for i, u := range want {
		if m.Entries[i].URL != u {
			t.Errorf("entry %d URL = %q, want %q", i, m.Entries[i].URL, u)
		}
	}
}

func TestAppxExtractUnknownFolderFlagRunsBothWalks(t *testing.T) {
	videoID := cipher.EncryptAppx("vidAAA")
	pdfLink := cipher.EncryptAppx("https://cdn.example.com/folder-notes.pdf")

	var subjectWalkHit, folderWalkHit bool
	mux := http.NewServeMux()
	mux.HandleFunc("/get/allsubjectfrmlivecourseclass", func(w http.ResponseWriter, r *http.Request) {
		subjectWalkHit = true
		fmt.Fprint(w, `{"data":[{"subjectid":1,"subject_name":"Maths"}]}`)
	})
	mux.HandleFunc("/get/alltopicfrmlivecourseclass", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"topicid":2,"topic_name":"Limits"}]}`)
	})
	mux.HandleFunc("/get/livecourseclassbycoursesubtopconceptapiv3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"id":11,"Title":"Lecture 1","material_type":"VIDEO","video_id":%q}]}`, videoID)
	})
	mux.HandleFunc("/get/folder_contentsv2", func(w http.ResponseWriter, r *http.Request) {
		folderWalkHit = true
		fmt.Fprintf(w, `{"data":[
			{"id":11,"Title":"Lecture 1","material_type":"VIDEO","video_id":%q},
			{"id":12,"Title":"Notes","material_type":"PDF","pdf_link":%q}
		]}`, videoID, pdfLink)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewAppxExtractor(newTestHTTPClient(t), testLogger(), nil)
	sess := &types.Session{Platform: "appx", Host: srv.URL, Token: "tok-1", UserID: "42"}
	course := types.Course{ID: "7", Name: "Calculus", Extra: map[string]string{}}

	m, err := e.Extract(context.Background(), sess, course, interfaces.ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if !subjectWalkHit || !folderWalkHit {
		t.Fatalf("walks invoked: subject=%v folder=%v, want both", subjectWalkHit, folderWalkHit)
	}

	// The lecture appears in both walks; the merge keeps one copy.
	want := []string{
		"https://youtu.be/vidAAA",
		"https://cdn.example.com/folder-notes.pdf",
	}
	if m.Len() != len(want) {
		t.Fatalf("Extract() yielded %d entries, want %d: %s", m.Len(), len(want), m.Serialize())
	}
	for i, u := range want {
		if m.Entries[i].URL != u {
			t.Errorf("entry %d URL = %q, want %q", i, m.Entries[i].URL, u)
		}
	}
}

func TestDecodeLinkKey(t *testing.T) {
	enc := cipher.EncryptAppx("c2VjcmV0LWtleQ==")
	if got := decodeLinkKey(enc); got != "secret-key" {
		t.Errorf("decodeLinkKey(%q) = %q, want %q", enc, got, "secret-key")
	}
	if got := decodeLinkKey("not-encrypted"); got != "" {
		t.Errorf("decodeLinkKey(%q) = %q, want empty", "not-encrypted", got)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"string one", "1", true},
		{"string zero", "0", false},
		{"string true", "true", true},
		{"float nonzero", float64(2), true},
		{"float zero", float64(0), false},
		{"number", json.Number("1"), true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truthy(tt.in); got != tt.want {
				t.Errorf("truthy(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
