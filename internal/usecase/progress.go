package usecase

import (
	"sync"
	"time"

	"github.com/user/stealth-crawler/internal/entity"
)

// Run states reported by Progress.
const (
	StatusIdle        = "idle"
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// Progress is a point-in-time view of a run, served by the status endpoint.
type Progress struct {
	Status     string     `json:"status"`
	StartURL   string     `json:"start_url,omitempty"`
	Mode       string     `json:"mode,omitempty"`
	MaxDepth   int        `json:"max_depth"`
	CurrentURL string     `json:"current_url,omitempty"`
	Visited    int        `json:"visited"`
	Fetched    int        `json:"fetched"`
	Failed     int        `json:"failed"`
	Challenges int        `json:"challenges"`
	Output     string     `json:"output,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// tracker is written by the traversal and read by HTTP handlers.
type tracker struct {
	mu sync.Mutex
	p  Progress
}

func newTracker() *tracker {
	return &tracker{p: Progress{Status: StatusIdle}}
}

func (t *tracker) start(startURL string, mode entity.Mode, maxDepth int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.p = Progress{
		Status:    StatusRunning,
		StartURL:  startURL,
		Mode:      mode.String(),
		MaxDepth:  maxDepth,
		StartedAt: &now,
	}
}

func (t *tracker) update(fn func(p *Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.p)
}

func (t *tracker) finish(status, output string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.p.Status = status
	t.p.Output = output
	t.p.CurrentURL = ""
	t.p.FinishedAt = &now
}

func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}
