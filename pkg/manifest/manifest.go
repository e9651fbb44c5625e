// Package manifest builds, classifies, and serializes link manifests.
// A manifest is the product of one course extraction: an ordered,
// deduplicated list of titled asset links.
package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/cipher"
)

// Kind classifies one link for delivery.
type Kind string

const (
	KindVideo    Kind = "video"
	KindDRMVideo Kind = "drm_video"
	KindPDF      Kind = "pdf"
)

var (
	drmExtendedRe = regexp.MustCompile(`\.(videoid|mpd|testbook)`)
	mediaExtRe    = regexp.MustCompile(`\.(m3u8|mpd|mp4)`)
)

// Classify buckets a URL for delivery. DRM markers win over generic
// media extensions; anything unrecognized is treated as a plain video
// link so it is never silently dropped.
func Classify(url string) Kind {
	lower := strings.ToLower(url)
	switch {
	case drmExtendedRe.MatchString(lower) || strings.Contains(lower, ".mpd"):
		return KindDRMVideo
	case mediaExtRe.MatchString(lower):
		if strings.Contains(lower, ".m3u8") || strings.Contains(lower, ".mp4") {
			return KindVideo
		}
		return KindDRMVideo
	case strings.HasSuffix(lower, ".pdf"):
		return KindPDF
	default:
		return KindVideo
	}
}

// Entry is one titled link.
type Entry struct {
	Title string
	URL   string
}

// Kind classifies the entry's URL.
func (e Entry) Kind() Kind { return Classify(e.URL) }

// Manifest is an ordered, URL-deduplicated list of entries.
type Manifest struct {
	BatchName string
	Entries   []Entry

	seen map[string]struct{}
}

// New returns an empty manifest for the named batch.
func New(batchName string) *Manifest {
	return &Manifest{BatchName: batchName, seen: make(map[string]struct{})}
}

// Add appends an entry unless its URL was already added. URLs that are
// neither http links nor encrypted-at-rest lines would not survive the
// Serialize/Parse round trip and are dropped. Returns true when the
// entry was kept.
func (m *Manifest) Add(title, url string) bool {
	if !strings.HasPrefix(url, "http") && !strings.HasPrefix(url, encMarker) {
		return false
	}
	if m.seen == nil {
		m.seen = make(map[string]struct{}, len(m.Entries))
		for _, e := range m.Entries {
			m.seen[e.URL] = struct{}{}
		}
	}
	if _, dup := m.seen[url]; dup {
		return false
	}
	m.seen[url] = struct{}{}
	m.Entries = append(m.Entries, Entry{Title: title, URL: url})
	return true
}

// Append merges another manifest, preserving this manifest's dedupe set.
func (m *Manifest) Append(other *Manifest) {
	if other == nil {
		return
	}
	for _, e := range other.Entries {
		m.Add(e.Title, e.URL)
	}
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.Entries) }

// Counts tallies entries per kind.
func (m *Manifest) Counts() (videos, drmVideos, pdfs int) {
	for _, e := range m.Entries {
		switch e.Kind() {
		case KindDRMVideo:
			drmVideos++
		case KindPDF:
			pdfs++
		default:
			videos++
		}
	}
	return
}

// Serialize renders the batch wire format, one "Title:URL" per line.
func (m *Manifest) Serialize() string {
	var b strings.Builder
	for _, e := range m.Entries {
		b.WriteString(e.Title)
		b.WriteByte(':')
		b.WriteString(e.URL)
		b.WriteByte('\n')
	}
	return b.String()
}

// Parse reads the batch wire format back into a manifest. The URL starts
// at the first "http" in each line; the separating ':' and surrounding
// space are stripped from the title, which may itself contain colons.
// Lines without a link are skipped.
func Parse(batchName, data string) *Manifest {
	m := New(batchName)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, "http://")
		if i := strings.Index(line, "https://"); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
		if idx < 0 {
			// Encrypted-at-rest lines carry the marker instead of a scheme.
			idx = strings.Index(line, encMarker)
		}
		if idx < 0 {
			continue
		}
		title := strings.TrimRight(strings.TrimSpace(line[:idx]), ": ")
		m.Add(title, line[idx:])
	}
	return m
}

const reportFooter = `Note: These links are extracted for personal archival only.
Redistribution of paid content is not permitted.`

// Indexed renders the human-readable report: a batch header with per-kind
// counts, numbered entries, and the fixed warning footer.
func (m *Manifest) Indexed() string {
	videos, drm, pdfs := m.Counts()

	var b strings.Builder
	b.WriteString("BATCH DETAILS\n")
	fmt.Fprintf(&b, "Name      : %s\n", m.BatchName)
	fmt.Fprintf(&b, "Total     : %d\n", m.Len())
	fmt.Fprintf(&b, "DRM Video : %d\n", drm)
	fmt.Fprintf(&b, "Video     : %d\n", videos)
	fmt.Fprintf(&b, "PDF       : %d\n", pdfs)
	b.WriteString("\n")
	for i, e := range m.Entries {
		fmt.Fprintf(&b, "%d. %s:%s\n", i+1, e.Title, e.URL)
	}
	b.WriteString("\n")
	b.WriteString(reportFooter)
	b.WriteString("\n")
	return b.String()
}

// encMarker prefixes URLs that are encrypted at rest.
const encMarker = "enc_url:"

// Encrypt returns a copy with every URL encrypted at rest. Already
// encrypted entries pass through unchanged.
func (m *Manifest) Encrypt() *Manifest {
	out := New(m.BatchName)
	for _, e := range m.Entries {
		url := e.URL
		if !strings.HasPrefix(url, encMarker) {
			if enc := cipher.EncryptAppx(url); enc != "" {
				url = encMarker + enc
			}
		}
		out.seen[url] = struct{}{}
		out.Entries = append(out.Entries, Entry{Title: e.Title, URL: url})
	}
	return out
}

// Decrypt reverses Encrypt. Plain entries pass through; entries that
// fail to decrypt are dropped rather than delivered corrupted.
func (m *Manifest) Decrypt() *Manifest {
	out := New(m.BatchName)
	for _, e := range m.Entries {
		url := e.URL
		if strings.HasPrefix(url, encMarker) {
			url = cipher.DecryptAppx(strings.TrimPrefix(url, encMarker))
			if url == "" {
				continue
			}
		}
		out.Add(e.Title, url)
	}
	return out
}
