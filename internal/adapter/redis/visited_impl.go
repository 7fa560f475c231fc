package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/user/stealth-crawler/pkg/utils"
)

const visitedKeyPrefix = "visited:"

// VisitedRepoImpl keeps the visited set of one run in a single Redis SET.
// Members are URL hashes so arbitrary URLs make safe, fixed-size members.
type VisitedRepoImpl struct {
	client redis.UniversalClient
	key    string
}

// NewVisitedRepo creates a visited set scoped to runID.
func NewVisitedRepo(client redis.UniversalClient, runID string) *VisitedRepoImpl {
	return &VisitedRepoImpl{
		client: client,
		key:    fmt.Sprintf("%s%s", visitedKeyPrefix, runID),
	}
}

// Key returns the Redis key holding the set.
func (r *VisitedRepoImpl) Key() string {
	return r.key
}

// MarkVisited adds url to the set. SADD is atomic and reports whether the
// member was new.
func (r *VisitedRepoImpl) MarkVisited(ctx context.Context, url string) (bool, error) {
	n, err := r.client.SAdd(ctx, r.key, utils.HashURL(url)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark visited: %w", err)
	}
	return n == 1, nil
}

func (r *VisitedRepoImpl) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count visited: %w", err)
	}
	return int(n), nil
}

// Reset deletes the set; the run is over.
func (r *VisitedRepoImpl) Reset(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
