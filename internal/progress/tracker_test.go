package progress

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/fluentbuddy/internal/catalog"
	"github.com/example/fluentbuddy/internal/events"
	"github.com/example/fluentbuddy/internal/spaced_repetition"
	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
}

// testCatalog has four A1 grammar requirements and one requirement per other category.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	var reqs, topics strings.Builder
	reqs.WriteString("levels:\n")
	topics.WriteString("levels:\n")
	for _, level := range models.Levels {
		fmt.Fprintf(&reqs, "  - level: %s\n    display_name: Level %s\n    requirements:\n", level, level)
		for _, cat := range models.Categories {
			n := 1
			if cat == models.CategoryGrammar && level == models.LevelA1 {
				n = 4
			}
			for i := 1; i <= n; i++ {
				fmt.Fprintf(&reqs, "      - {id: %s-%s-r%d, category: %s, name: %s %s %d}\n",
					level.Lower(), cat.IDPrefix(), i, cat, level, cat, i)
			}
		}
		fmt.Fprintf(&topics, "  - level: %s\n    topics:\n      - {title: T, estimated_minutes: 10, recommended_sessions: 1}\n", level)
	}
	c, err := catalog.Load([]byte(reqs.String()), []byte(topics.String()), []byte("exercises: []"))
	require.NoError(t, err)
	return c
}

func newTracker(t *testing.T, clock *fakeClock, local, remote storage.Store, pub events.Publisher) *Tracker {
	t.Helper()
	opts := Options{
		LearnerID: "learner-1",
		Level:     models.LevelA1,
		Catalog:   testCatalog(t),
		Local:     local,
		Events:    pub,
		Clock:     clock.Now,
	}
	if remote != nil {
		opts.Remote = remote
	}
	return NewTracker(opts)
}

func TestMarkCompletedSchedulesReview(t *testing.T) {
	clock := newClock()
	local := storage.NewMemoryStore()
	tr := newTracker(t, clock, local, nil, nil)
	start := tr.Progress().LastUpdated

	clock.Advance(time.Minute)
	assert.True(t, tr.MarkCompleted("a1-grammar-r1"))
	assert.False(t, tr.MarkCompleted("a1-grammar-r1"))
	assert.False(t, tr.MarkCompleted(""))

	p := tr.Progress()
	assert.Equal(t, []string{"a1-grammar-r1"}, p.CompletedRequirements)
	assert.True(t, p.LastUpdated.After(start))

	item, ok := tr.ReviewItem("a1-grammar-r1")
	require.True(t, ok)
	assert.Equal(t, 1.0, item.Interval)
	assert.Equal(t, clock.t.Add(24*time.Hour), item.NextReview)

	var saved models.UserProgress
	found, err := local.Load(context.Background(), storage.KeyLearningProgress, &saved)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, p.CompletedRequirements, saved.CompletedRequirements)

	var schedule map[string]models.ReviewItem
	found, err = local.Load(context.Background(), storage.KeyReviewSchedule, &schedule)
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, schedule, "a1-grammar-r1")
}

func TestMarkIncompleteKeepsReviewSchedule(t *testing.T) {
	clock := newClock()
	tr := newTracker(t, clock, storage.NewMemoryStore(), nil, nil)
	tr.MarkCompleted("a1-grammar-r1")
	tr.MarkCompleted("a1-grammar-r2")

	assert.True(t, tr.MarkIncomplete("a1-grammar-r1"))
	assert.False(t, tr.MarkIncomplete("a1-grammar-r1"))
	assert.Equal(t, []string{"a1-grammar-r2"}, tr.CompletedIDs())

	_, ok := tr.ReviewItem("a1-grammar-r1")
	assert.True(t, ok)
}

func TestCategoryProgressPercentage(t *testing.T) {
	tr := newTracker(t, newClock(), storage.NewMemoryStore(), nil, nil)
	tr.MarkCompleted("a1-grammar-r1")

	assert.Equal(t, models.CategoryProgress{
		Category:   models.CategoryGrammar,
		Completed:  1,
		Total:      4,
		Percentage: 25,
	}, tr.CategoryProgress(models.CategoryGrammar))

	tr.MarkCompleted("b1-grammar-r1")
	completed, total, pct := tr.OverallProgress()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 9, total)
	assert.Equal(t, 11, pct)
}

func TestNotesAndLevelStampLastUpdated(t *testing.T) {
	clock := newClock()
	tr := newTracker(t, clock, storage.NewMemoryStore(), nil, nil)

	clock.Advance(time.Hour)
	tr.AddNote("a1-grammar-r1", "confuses a/an")
	assert.Equal(t, "confuses a/an", tr.Note("a1-grammar-r1"))
	assert.Equal(t, clock.t, tr.Progress().LastUpdated)

	clock.Advance(time.Hour)
	require.NoError(t, tr.UpdateLevel(models.LevelB2))
	assert.Equal(t, models.LevelB2, tr.Level())
	assert.Equal(t, clock.t, tr.Progress().LastUpdated)

	assert.Error(t, tr.UpdateLevel("Z9"))
}

func TestNextRequirementFollowsCatalog(t *testing.T) {
	tr := newTracker(t, newClock(), storage.NewMemoryStore(), nil, nil)
	next := tr.NextRequirement()
	require.NotNil(t, next)
	assert.Equal(t, "a1-vocab-r1", next.ID)

	tr.MarkCompleted("a1-vocab-r1")
	assert.Equal(t, "a1-grammar-r1", tr.NextRequirement().ID)
	assert.Len(t, tr.NextRequirements(3), 3)
}

func TestLoadMergeRemoteNewerWins(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	local := storage.NewMemoryStore()
	remote := storage.NewMemoryStore()

	t1 := clock.t.Add(-2 * time.Hour)
	t2 := clock.t.Add(-time.Hour)
	require.NoError(t, local.Save(ctx, storage.KeyLearningProgress, models.UserProgress{
		CurrentLevel: models.LevelA1, CompletedRequirements: []string{"a1-vocab-r1", "a1-verbs-r1"}, LastUpdated: t1,
	}))
	require.NoError(t, remote.Save(ctx, storage.KeyLearningProgress, models.UserProgress{
		CurrentLevel: models.LevelA2, CompletedRequirements: []string{"a1-grammar-r3"}, LastUpdated: t2,
	}))

	tr := newTracker(t, clock, local, remote, nil)
	tr.Load(ctx)

	assert.Equal(t, []string{"a1-grammar-r3"}, tr.CompletedIDs())
	assert.Equal(t, models.LevelA2, tr.Level())

	var stored models.UserProgress
	_, err := local.Load(ctx, storage.KeyLearningProgress, &stored)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1-grammar-r3"}, stored.CompletedRequirements)
}

func TestLoadMergeLocalNewerIsPushed(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	local := storage.NewMemoryStore()
	remote := storage.NewMemoryStore()

	require.NoError(t, local.Save(ctx, storage.KeyLearningProgress, models.UserProgress{
		CurrentLevel: models.LevelA1, CompletedRequirements: []string{"a1-vocab-r1"}, LastUpdated: clock.t.Add(-time.Minute),
	}))
	require.NoError(t, remote.Save(ctx, storage.KeyLearningProgress, models.UserProgress{
		CurrentLevel: models.LevelA1, CompletedRequirements: []string{"a1-speaking-r1"}, LastUpdated: clock.t.Add(-time.Hour),
	}))

	tr := newTracker(t, clock, local, remote, nil)
	tr.Load(ctx)
	assert.Equal(t, []string{"a1-vocab-r1"}, tr.CompletedIDs())

	var pushed models.UserProgress
	_, err := remote.Load(ctx, storage.KeyLearningProgress, &pushed)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1-vocab-r1"}, pushed.CompletedRequirements)
}

func TestLoadRemoteOnly(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	remote := storage.NewMemoryStore()
	require.NoError(t, remote.Save(ctx, storage.KeyLearningProgress, models.UserProgress{
		CurrentLevel: models.LevelB1, CompletedRequirements: []string{"b1-vocab-r1"}, LastUpdated: clock.t.Add(-time.Hour),
	}))

	tr := newTracker(t, clock, storage.NewMemoryStore(), remote, nil)
	tr.Load(ctx)
	assert.Equal(t, models.LevelB1, tr.Level())
	assert.Equal(t, []string{"b1-vocab-r1"}, tr.CompletedIDs())
	assert.NotNil(t, tr.Progress().Notes)
}

func TestLoadCorruptLocalFallsBackToDefault(t *testing.T) {
	local := storage.NewMemoryStore()
	local.PutRaw(storage.KeyLearningProgress, []byte(`{"completedRequirements": [1, 2`))
	local.PutRaw(storage.KeyReviewSchedule, []byte(`nope`))

	tr := newTracker(t, newClock(), local, nil, nil)
	tr.Load(context.Background())

	assert.Empty(t, tr.CompletedIDs())
	assert.Equal(t, models.LevelA1, tr.Level())
	assert.Empty(t, tr.DueForReview())
}

func TestLoadDeduplicatesSnapshot(t *testing.T) {
	local := storage.NewMemoryStore()
	local.PutRaw(storage.KeyLearningProgress, []byte(`{"currentLevel":"A1","completedRequirements":["x","x","y"],"lastUpdated":"2024-05-10T10:00:00Z"}`))

	tr := newTracker(t, newClock(), local, nil, nil)
	tr.Load(context.Background())
	assert.Equal(t, []string{"x", "y"}, tr.CompletedIDs())
}

func TestRemoteFailureDoesNotBlockLocal(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	local := storage.NewMemoryStore()
	remote := storage.NewMemoryStore()
	remote.SetFailSaves(true)

	tr := newTracker(t, clock, local, remote, nil)
	assert.True(t, tr.MarkCompleted("a1-vocab-r1"))

	var stored models.UserProgress
	found, err := local.Load(ctx, storage.KeyLearningProgress, &stored)
	require.NoError(t, err)
	require.True(t, found)
	_, pushed := remote.Raw(storage.KeyLearningProgress)
	assert.False(t, pushed)

	remote.SetFailSaves(false)
	tr.MarkCompleted("a1-vocab-r2")
	var synced models.UserProgress
	found, err = remote.Load(ctx, storage.KeyLearningProgress, &synced)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"a1-vocab-r1", "a1-vocab-r2"}, synced.CompletedRequirements)
}

func TestApplyRemoteOnlyWhenNewer(t *testing.T) {
	clock := newClock()
	tr := newTracker(t, clock, storage.NewMemoryStore(), nil, nil)
	tr.MarkCompleted("a1-vocab-r1")

	assert.False(t, tr.ApplyRemote(models.UserProgress{
		CurrentLevel: models.LevelA1, CompletedRequirements: []string{"old"}, LastUpdated: clock.t.Add(-time.Hour),
	}))
	assert.True(t, tr.ApplyRemote(models.UserProgress{
		CurrentLevel: models.LevelA1, CompletedRequirements: []string{"new"}, LastUpdated: clock.t.Add(time.Hour),
	}))
	assert.Equal(t, []string{"new"}, tr.CompletedIDs())
}

func TestCompleteFromMasteryPublishes(t *testing.T) {
	bus := events.NewBus()
	var got []events.ProgressUpdated
	bus.Subscribe(func(ev events.ProgressUpdated) { got = append(got, ev) })

	tr := newTracker(t, newClock(), storage.NewMemoryStore(), nil, bus)
	tr.MarkCompleted("a1-grammar-r1")

	added := tr.CompleteFromMastery([]string{"a1-grammar-r1", "a1-grammar-r2", "a1-grammar-unknown"})
	assert.Equal(t, []string{"a1-grammar-r2", "a1-grammar-unknown"}, added)

	require.Len(t, got, 1)
	assert.Equal(t, "learner-1", got[0].LearnerID)
	assert.Equal(t, added, got[0].Completed)
	assert.Equal(t, []string{"a1-grammar-r1", "a1-grammar-r2", "a1-grammar-unknown"}, got[0].Progress.CompletedRequirements)

	assert.Nil(t, tr.CompleteFromMastery([]string{"a1-grammar-r2"}))
	assert.Len(t, got, 1)
}

func TestRecordReviewAndDue(t *testing.T) {
	clock := newClock()
	local := storage.NewMemoryStore()
	tr := newTracker(t, clock, local, nil, nil)
	tr.MarkCompleted("a1-grammar-r1")
	assert.Empty(t, tr.DueForReview())
	assert.Len(t, tr.UpcomingReviews(1), 1)

	clock.Advance(25 * time.Hour)
	due := tr.DueForReview()
	require.Len(t, due, 1)

	item := tr.RecordReview("a1-grammar-r1", spaced_repetition.QualityPerfect)
	assert.Equal(t, 1, item.Repetitions)
	assert.Empty(t, tr.DueForReview())

	var schedule map[string]models.ReviewItem
	_, err := local.Load(context.Background(), storage.KeyReviewSchedule, &schedule)
	require.NoError(t, err)
	assert.Equal(t, 1, schedule["a1-grammar-r1"].Repetitions)
}

func TestDebouncedPersistence(t *testing.T) {
	local := storage.NewMemoryStore()
	tr := NewTracker(Options{
		Level:    models.LevelA1,
		Catalog:  testCatalog(t),
		Local:    local,
		Clock:    newClock().Now,
		Debounce: time.Hour,
	})
	tr.MarkCompleted("a1-vocab-r1")
	tr.MarkCompleted("a1-vocab-r2")
	assert.Equal(t, 2, len(tr.CompletedIDs()))

	_, saved := local.Raw(storage.KeyLearningProgress)
	assert.False(t, saved)

	tr.Flush()
	var stored models.UserProgress
	found, err := local.Load(context.Background(), storage.KeyLearningProgress, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, stored.CompletedRequirements, 2)
}

func TestLearningContext(t *testing.T) {
	tr := newTracker(t, newClock(), storage.NewMemoryStore(), nil, nil)
	tr.MarkCompleted("a1-vocab-r1")
	tr.MarkCompleted("a1-grammar-r1")
	tr.MarkCompleted("a1-grammar-r2")

	lc := tr.LearningContext()
	assert.Equal(t, models.CategoryVerbs, lc.WeakestCategory)
	assert.Equal(t, []models.Category{
		models.CategoryVerbs, models.CategorySpeaking, models.CategoryWriting, models.CategoryPronunciation,
	}, lc.FocusAreas)
	assert.Equal(t, []string{"A1 grammar 3", "A1 grammar 4", "A1 verbs 1", "A1 speaking 1", "A1 writing 1"}, lc.CurrentRequirements)
}

func TestBuildAIContext(t *testing.T) {
	clock := newClock()
	tr := newTracker(t, clock, storage.NewMemoryStore(), nil, nil)
	tr.MarkCompleted("a1-grammar-r1")
	tr.CompleteFromMastery([]string{"a1-grammar-ghost"})
	clock.Advance(48 * time.Hour)

	ctx := tr.BuildAIContext()
	assert.Contains(t, ctx, "Current Level: A1 (Level A1)")
	assert.Contains(t, ctx, "Overall Progress: 1/9 requirements completed (11%)")
	assert.Contains(t, ctx, "REVIEW DUE TODAY")
	assert.Contains(t, ctx, "  - A1 grammar 1\n")
	assert.Contains(t, ctx, "  - a1-grammar-ghost\n")
	assert.Contains(t, ctx, "Weakest Category: vocabulary")
	assert.Contains(t, ctx, "Focus Areas (< 50% complete): vocabulary, grammar, verbs")
	assert.Contains(t, ctx, "1. A1 vocabulary 1")
	assert.Contains(t, ctx, "INSTRUCTIONS FOR AI:")
}
