package health

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loveucifer/visceral/internal/cache"
	"github.com/loveucifer/visceral/internal/domain"
	"github.com/loveucifer/visceral/internal/matcher"
	"github.com/loveucifer/visceral/internal/repository"
	"github.com/loveucifer/visceral/internal/scoring"
	"github.com/loveucifer/visceral/internal/storage"
)

func newChecker(t *testing.T, withRules bool) *SystemHealthChecker {
	t.Helper()

	store := storage.NewFileStore(filepath.Join(t.TempDir(), "rules.json"))
	repo := repository.NewRepository(store, matcher.NewMatcher(), scoring.NewUpdater(scoring.DefaultPolicy()))
	ctx := context.Background()
	require.NoError(t, repo.Load(ctx))

	if withRules {
		require.NoError(t, repo.Add(ctx, &domain.Rule{
			ID:       uuid.New().String(),
			Pattern:  "refund",
			Response: "Answer.",
			Score:    2,
		}))
	}

	return NewSystemHealthChecker(repo, cache.NewLRUCache(64))
}

func TestCheckHealth_Healthy(t *testing.T) {
	checker := newChecker(t, true)

	health := checker.CheckHealth(context.Background())
	assert.Equal(t, domain.HealthStatusHealthy, health.Status)
	assert.Contains(t, health.Components, "repository")
	assert.Contains(t, health.Components, "cache")
	assert.Contains(t, health.Metrics, "repository")
	assert.Contains(t, health.Metrics, "cache")
	assert.Contains(t, health.Metrics, "system")
}

func TestCheckHealth_EmptyRepositoryDegrades(t *testing.T) {
	checker := newChecker(t, false)

	health := checker.CheckHealth(context.Background())
	assert.Equal(t, domain.HealthStatusDegraded, health.Status)
	assert.Equal(t, domain.HealthStatusDegraded, health.Components["repository"].Status)
}

func TestCheckHealth_CachesResult(t *testing.T) {
	checker := newChecker(t, true)
	ctx := context.Background()

	first := checker.CheckHealth(ctx)
	second := checker.CheckHealth(ctx)
	assert.Equal(t, first.Timestamp, second.Timestamp)
}

func TestCheckComponent(t *testing.T) {
	checker := newChecker(t, true)
	ctx := context.Background()

	assert.Equal(t, domain.HealthStatusHealthy, checker.CheckComponent(ctx, "repository").Status)
	assert.Equal(t, domain.HealthStatusHealthy, checker.CheckComponent(ctx, "cache").Status)
	assert.Equal(t, domain.HealthStatusUnhealthy, checker.CheckComponent(ctx, "bogus").Status)
}

func TestIsHealthy(t *testing.T) {
	assert.True(t, newChecker(t, true).IsHealthy(context.Background()))
	assert.False(t, newChecker(t, false).IsHealthy(context.Background()))
}
