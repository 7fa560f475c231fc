package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/stealth-crawler/internal/entity"
	"github.com/user/stealth-crawler/internal/extractor"
)

var errNoRun = errors.New("no scrape run started")

// SinkImpl mirrors crawl results into PostgreSQL, one scrape_runs row per run.
type SinkImpl struct {
	db DB

	mu    sync.Mutex
	runID int64
}

// NewSink creates a sink over db.
func NewSink(db DB) *SinkImpl {
	return &SinkImpl{db: db}
}

// Begin ensures the schema exists and opens a new run.
func (s *SinkImpl) Begin(ctx context.Context, startURL string) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var id int64
	query := `INSERT INTO scrape_runs (start_url) VALUES ($1) RETURNING id;`
	if err := s.db.QueryRow(ctx, query, startURL).Scan(&id); err != nil {
		return fmt.Errorf("failed to open scrape run: %w", err)
	}

	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()
	return nil
}

// WriteMatches stores one row per match, its kind being the pattern family
// that produced it.
func (s *SinkImpl) WriteMatches(ctx context.Context, url string, mode entity.Mode, matches entity.ExtractionResult) error {
	if len(matches) == 0 {
		return nil
	}
	runID, err := s.currentRun()
	if err != nil {
		return err
	}

	kinds := make([]string, len(matches))
	for i, m := range matches {
		kinds[i] = mode.String()
		if family, ok := extractor.Family(m); ok {
			kinds[i] = family.String()
		}
	}

	query := `
		INSERT INTO extracted_matches (run_id, page_url, kind, value)
		SELECT $1, $2, k, v FROM unnest($3::text[], $4::text[]) AS t(k, v);
	`
	if _, err := s.db.Exec(ctx, query, runID, url, kinds, []string(matches)); err != nil {
		return fmt.Errorf("failed to save matches for %s: %w", url, err)
	}
	return nil
}

func (s *SinkImpl) WriteHTML(ctx context.Context, url, rawHTML string) error {
	runID, err := s.currentRun()
	if err != nil {
		return err
	}

	query := `INSERT INTO page_snapshots (run_id, page_url, html) VALUES ($1, $2, $3);`
	if _, err := s.db.Exec(ctx, query, runID, url, rawHTML); err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", url, err)
	}
	return nil
}

// WriteFailures records each failure; a URL failing twice keeps the last reason.
func (s *SinkImpl) WriteFailures(ctx context.Context, failures []entity.FailedURL) error {
	if len(failures) == 0 {
		return nil
	}
	runID, err := s.currentRun()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO failed_urls (run_id, url, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, url) DO UPDATE SET
			reason = EXCLUDED.reason;
	`
	for _, f := range failures {
		if _, err := s.db.Exec(ctx, query, runID, f.URL, f.Reason); err != nil {
			return fmt.Errorf("failed to save failed URL %s: %w", f.URL, err)
		}
	}
	return nil
}

func (s *SinkImpl) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID == 0 {
		return ""
	}
	return fmt.Sprintf("postgres scrape_runs id %d", s.runID)
}

func (s *SinkImpl) currentRun() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID == 0 {
		return 0, errNoRun
	}
	return s.runID, nil
}
