package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/stealth-crawler/internal/entity"
	"github.com/user/stealth-crawler/pkg/utils"
)

const filePrefix = "scraped_data_"

// SinkImpl appends crawl results to a plain text file named after the
// start URL's site.
type SinkImpl struct {
	dir string

	mu   sync.Mutex
	path string
}

// NewSink creates a sink writing into dir. An empty dir means the working
// directory.
func NewSink(dir string) *SinkImpl {
	if dir == "" {
		dir = "."
	}
	return &SinkImpl{dir: dir}
}

// FileName returns the output file name for a start URL.
func FileName(startURL string) (string, error) {
	site, err := utils.SiteName(startURL)
	if err != nil {
		return "", err
	}
	return filePrefix + site + ".txt", nil
}

// Begin truncates the output file of startURL.
func (s *SinkImpl) Begin(_ context.Context, startURL string) error {
	name, err := FileName(startURL)
	if err != nil {
		return fmt.Errorf("failed to derive output file: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return fmt.Errorf("failed to truncate output file: %w", err)
	}

	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	return nil
}

func (s *SinkImpl) WriteMatches(_ context.Context, url string, _ entity.Mode, matches entity.ExtractionResult) error {
	return s.append(fmt.Sprintf("\nURL: %s\n---\n%s\n---\n", url, strings.Join(matches, "\n")))
}

func (s *SinkImpl) WriteHTML(_ context.Context, url, rawHTML string) error {
	return s.append(fmt.Sprintf("\n\n--- FULL HTML: %s ---\n%s\n---\n", url, rawHTML))
}

func (s *SinkImpl) WriteFailures(_ context.Context, failures []entity.FailedURL) error {
	if len(failures) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("\n\n--- ❌ Failed URLs ---\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "URL: %s\nError: %s\n---\n", f.URL, f.Reason)
	}
	return s.append(b.String())
}

// Location returns the output file path, or "" before Begin.
func (s *SinkImpl) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *SinkImpl) append(block string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("output file not opened")
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	if _, err := f.WriteString(block); err != nil {
		f.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return f.Close()
}
