package database

import (
	"context"
	"testing"

	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *SnapshotRepository {
	t.Helper()
	db, err := Open(Config{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSnapshotRepository(db, "learner-1")
}

func TestSnapshotRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	var got models.UserProgress
	found, err := repo.Load(ctx, storage.KeyLearningProgress, &got)
	require.NoError(t, err)
	assert.False(t, found)

	p := models.UserProgress{CurrentLevel: models.LevelA2, CompletedRequirements: []string{"a2-vocab-weather"}}
	require.NoError(t, repo.Save(ctx, storage.KeyLearningProgress, p))

	p.CompletedRequirements = append(p.CompletedRequirements, "a2-grammar-future")
	require.NoError(t, repo.Save(ctx, storage.KeyLearningProgress, p))

	found, err = repo.Load(ctx, storage.KeyLearningProgress, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a2-vocab-weather", "a2-grammar-future"}, got.CompletedRequirements)

	_, ok, err := repo.UpdatedAt(ctx, storage.KeyLearningProgress)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSnapshotRepositoryIsolatesLearners(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	other := NewSnapshotRepository(repo.db, "learner-2")

	require.NoError(t, repo.Save(ctx, storage.KeyStats, models.UserStats{Grammar: 10}))

	var got models.UserStats
	found, err := other.Load(ctx, storage.KeyStats, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSnapshotRepositoryCorruptData(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	_, err := repo.db.Exec(`INSERT INTO snapshots (learner_id, key, data, updated_at) VALUES ('learner-1', 'k', '{oops', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	var got map[string]interface{}
	found, err := repo.Load(ctx, "k", &got)
	assert.True(t, found)
	assert.True(t, errors.Is(err, storage.ErrCorrupt))
}

func TestLearnerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLearnerRepository(openTestDB(t).db)

	l, err := repo.GetByChatID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, l)

	require.NoError(t, repo.Upsert(ctx, &models.Learner{ChatID: 42, LearnerID: "learner-1", Username: "ana", NotificationHour: 9}))
	require.NoError(t, repo.Upsert(ctx, &models.Learner{ChatID: 7, LearnerID: "learner-1", NotificationHour: 18}))
	require.NoError(t, repo.Upsert(ctx, &models.Learner{ChatID: 42, LearnerID: "learner-1", Username: "ana", NotificationHour: 18}))

	l, err = repo.GetByChatID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 18, l.NotificationHour)

	due, err := repo.GetForNotification(ctx, 18)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, int64(7), due[0].ChatID)

	require.NoError(t, repo.Delete(ctx, 7))
	due, err = repo.GetForNotification(ctx, 18)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(Config{Type: "oracle"})
	assert.Error(t, err)
}
