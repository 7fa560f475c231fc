package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/stealth-crawler/pkg/utils"
)

func newTestRepo(t *testing.T, runID string) (*VisitedRepoImpl, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVisitedRepo(client, runID), mr
}

func TestVisitedRepo_MarkVisited(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t, "run-1")

	added, err := repo.MarkVisited(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.MarkVisited(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.False(t, added)

	members, err := mr.Members("visited:run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{utils.HashURL("https://example.com/")}, members)
}

func TestVisitedRepo_CountAndReset(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t, "run-2")

	for _, u := range []string{"https://a.example/", "https://b.example/", "https://a.example/"} {
		_, err := repo.MarkVisited(ctx, u)
		require.NoError(t, err)
	}
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.Reset(ctx))
	assert.False(t, mr.Exists(repo.Key()))

	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVisitedRepo_RunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewVisitedRepo(client, "a")
	b := NewVisitedRepo(client, "b")

	_, err := a.MarkVisited(ctx, "https://example.com/")
	require.NoError(t, err)
	added, err := b.MarkVisited(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.True(t, added)
}

func TestVisitedRepo_ServerDown(t *testing.T) {
	repo, mr := newTestRepo(t, "run-3")
	mr.Close()

	_, err := repo.MarkVisited(context.Background(), "https://example.com/")
	assert.Error(t, err)
}
