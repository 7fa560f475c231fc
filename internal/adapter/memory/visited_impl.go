package memory

import (
	"context"
	"sync"
)

// VisitedRepoImpl is an in-process visited set. It is the default backend.
type VisitedRepoImpl struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewVisitedRepo creates an empty visited set.
func NewVisitedRepo() *VisitedRepoImpl {
	return &VisitedRepoImpl{urls: make(map[string]struct{})}
}

func (r *VisitedRepoImpl) MarkVisited(_ context.Context, url string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.urls[url]; ok {
		return false, nil
	}
	r.urls[url] = struct{}{}
	return true, nil
}

func (r *VisitedRepoImpl) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.urls), nil
}

func (r *VisitedRepoImpl) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.urls)
	return nil
}
