// Package fetch downloads raw source archives from a URL list into a local
// directory ahead of ingestion.
package fetch

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher downloads files listed in a URL manifest. Already-present files
// are skipped, so an interrupted fetch resumes where it stopped.
type Fetcher struct {
	client *resty.Client
	logger *slog.Logger
}

// NewFetcher builds a fetcher with retry on transient failures.
func NewFetcher(logger *slog.Logger) *Fetcher {
	client := resty.New().
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetTimeout(10 * time.Minute)
	return &Fetcher{client: client, logger: logger}
}

// Report summarizes one fetch pass.
type Report struct {
	Downloaded int
	Skipped    int
}

// FetchList reads a manifest of URLs (one per line, blank lines and
// #-comments ignored) and downloads each into destDir. A failed download
// aborts the pass; completed files from earlier in the list are kept.
func (f *Fetcher) FetchList(ctx context.Context, manifestPath, destDir string) (Report, error) {
	file, err := os.Open(manifestPath)
	if err != nil {
		return Report{}, fmt.Errorf("fetch: open manifest %s: %w", manifestPath, err)
	}
	defer file.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("fetch: create dest dir %s: %w", destDir, err)
	}

	var report Report
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, err := fileNameFromURL(line)
		if err != nil {
			return report, err
		}
		dest := filepath.Join(destDir, name)
		if _, err := os.Stat(dest); err == nil {
			f.logger.Debug("already downloaded", "file", name)
			report.Skipped++
			continue
		}
		if err := f.download(ctx, line, dest); err != nil {
			return report, err
		}
		report.Downloaded++
	}
	if err := sc.Err(); err != nil {
		return report, fmt.Errorf("fetch: read manifest: %w", err)
	}
	return report, nil
}

// download streams one URL to disk via a temp file, so a partial download
// never masquerades as a complete one.
func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	f.logger.Info("downloading", "url", rawURL)
	tmp := dest + ".part"

	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(rawURL)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fetch: get %s: %w", rawURL, err)
	}
	if resp.StatusCode() != 200 {
		os.Remove(tmp)
		return fmt.Errorf("fetch: get %s: status %d", rawURL, resp.StatusCode())
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("fetch: finalize %s: %w", dest, err)
	}
	f.logger.Info("downloaded", "file", filepath.Base(dest))
	return nil
}

func fileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch: parse url %q: %w", rawURL, err)
	}
	name := filepath.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("fetch: url %q has no file name", rawURL)
	}
	return name, nil
}
