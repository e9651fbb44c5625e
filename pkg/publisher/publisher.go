// Package publisher turns a manifest into delivered files: videos go
// through an external yt-dlp process, documents are fetched directly,
// and obfuscated assets have their headers restored before delivery.
package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/cipher"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
)

// DeliverFunc receives each downloaded file, in manifest order.
type DeliverFunc func(ctx context.Context, entry manifest.Entry, path string) error

// Publisher downloads manifest entries and hands the files to a
// delivery callback.
type Publisher struct {
	client    *httpclient.Client
	log       *logging.Logger
	outputDir string
	ytdlpPath string
	workers   int
}

// New creates a publisher writing under outputDir. ytdlpPath names the
// yt-dlp binary; workers bounds concurrent downloads.
func New(client *httpclient.Client, log *logging.Logger, outputDir, ytdlpPath string, workers int) (*Publisher, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	if workers <= 0 {
		workers = 3
	}
	return &Publisher{
		client:    client,
		log:       log.WithComponent("publisher"),
		outputDir: outputDir,
		ytdlpPath: ytdlpPath,
		workers:   workers,
	}, nil
}

// Publish downloads every entry of the manifest and delivers the files
// in manifest order. Download failures are logged and skipped; a
// delivery failure aborts the run. The run's files are removed before
// returning.
func (p *Publisher) Publish(ctx context.Context, m *manifest.Manifest, deliver DeliverFunc) error {
	runDir := filepath.Join(p.outputDir, fmt.Sprintf("run_%d", time.Now().UnixNano()))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	defer os.RemoveAll(runDir)

	// Downloads run concurrently; paths land in manifest order.
	paths := make([]string, m.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, entry := range m.Entries {
		i, entry := i, entry
		g.Go(func() error {
			path, err := p.download(gctx, entry, runDir, i)
			if err != nil {
				p.log.WithError(err).Warn("download failed", "title", entry.Title, "url", entry.URL)
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, entry := range m.Entries {
		if paths[i] == "" {
			continue
		}
		if err := deliver(ctx, entry, paths[i]); err != nil {
			return fmt.Errorf("deliver %q: %w", entry.Title, err)
		}
	}
	return nil
}

// download fetches one entry into the run directory and returns the
// file path.
func (p *Publisher) download(ctx context.Context, entry manifest.Entry, runDir string, index int) (string, error) {
	rawURL, key := splitKeyedURL(entry.URL)
	outPath := filepath.Join(runDir, fmt.Sprintf("%03d_%s%s", index+1, sanitizeName(entry.Title), extensionFor(entry)))

	var err error
	switch entry.Kind() {
	case manifest.KindPDF:
		err = p.fetchDirect(ctx, rawURL, outPath)
	default:
		err = p.runYtdlp(ctx, rawURL, outPath)
	}
	if err != nil {
		return "", err
	}

	if key != "" && needsHeaderPatch(rawURL) {
		if err := patchFileHeader(outPath, key); err != nil {
			return "", fmt.Errorf("patch header: %w", err)
		}
	}
	return outPath, nil
}

// fetchDirect downloads a document over plain HTTP.
func (p *Publisher) fetchDirect(ctx context.Context, rawURL, outPath string) error {
	body, err := p.client.Get(ctx, rawURL, nil)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, body, 0644)
}

// runYtdlp downloads a video through the external yt-dlp binary.
func (p *Publisher) runYtdlp(ctx context.Context, rawURL, outPath string) error {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--no-part",
		"--concurrent-fragments", "4",
		"--output", outPath,
		rawURL,
	}

	p.log.Info("starting yt-dlp download", "url", rawURL, "output", outPath)
	cmd := exec.CommandContext(ctx, p.ytdlpPath, args...)
	cmd.Stderr = &processLogger{log: p.log, name: filepath.Base(outPath)}

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	p.log.WithDuration(time.Since(start)).Debug("yt-dlp download finished", "output", outPath)

	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("yt-dlp produced no output: %w", err)
	}
	return nil
}

// splitKeyedURL separates a vendor "url*key" pair. URLs without a key
// pass through whole.
func splitKeyedURL(u string) (rawURL, key string) {
	if i := strings.LastIndex(u, "*"); i >= 0 {
		return u[:i], u[i+1:]
	}
	return u, ""
}

// needsHeaderPatch reports whether a keyed URL points at an asset whose
// leading bytes are XOR-obfuscated.
func needsHeaderPatch(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "encrypted.m") || strings.HasSuffix(lower, ".pdf")
}

// patchFileHeader restores the obfuscated leading bytes of a downloaded
// file in place.
func patchFileHeader(path, key string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 28)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return err
	}
	cipher.PatchHeader(buf[:n], key)
	_, err = f.WriteAt(buf[:n], 0)
	return err
}

// sanitizeName keeps a title usable as a file name.
func sanitizeName(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// extensionFor picks the delivered file extension by entry kind.
func extensionFor(entry manifest.Entry) string {
	switch entry.Kind() {
	case manifest.KindPDF:
		return ".pdf"
	default:
		return ".mp4"
	}
}

// processLogger captures the external downloader's stderr.
type processLogger struct {
	log  *logging.Logger
	name string
}

func (l *processLogger) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.log.Debug("yt-dlp output", "file", l.name, "output", msg)
	}
	return len(p), nil
}
