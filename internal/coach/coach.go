package coach

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/example/fluentbuddy/internal/ai"
	"github.com/example/fluentbuddy/internal/catalog"
	"github.com/example/fluentbuddy/internal/events"
	"github.com/example/fluentbuddy/internal/exercise"
	"github.com/example/fluentbuddy/internal/plan"
	"github.com/example/fluentbuddy/internal/progress"
	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
)

// Requirements listed in the structured context
const planRequirements = 3

// Options configures a Coach
type Options struct {
	LearnerID string
	// Starting level for a learner without saved progress
	Level    models.Level
	Catalog  *catalog.Catalog
	Local    storage.Store
	Remote   storage.Store
	Events   events.Publisher
	Assessor ai.Assessor
	Clock    func() time.Time
	Rand     *rand.Rand
	Debounce time.Duration
}

// Coach wires the learning trackers of one learner together
type Coach struct {
	learnerID string
	catalog   *catalog.Catalog

	Progress  *progress.Tracker
	Exercises *exercise.Engine
	Plan      *plan.Engine
	Stats     *ai.StatsTracker
}

// New builds the trackers of a learner. Call Load before use.
func New(opts Options) *Coach {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Local == nil {
		opts.Local = storage.NewMemoryStore()
	}
	if !opts.Level.Valid() {
		opts.Level = models.LevelA1
	}

	c := &Coach{learnerID: opts.LearnerID, catalog: opts.Catalog}
	c.Progress = progress.NewTracker(progress.Options{
		LearnerID: opts.LearnerID,
		Level:     opts.Level,
		Catalog:   opts.Catalog,
		Local:     opts.Local,
		Remote:    opts.Remote,
		Events:    opts.Events,
		Clock:     opts.Clock,
		Debounce:  opts.Debounce,
	})
	c.Exercises = exercise.NewEngine(exercise.Options{
		Level:     opts.Level,
		Catalog:   opts.Catalog,
		Local:     opts.Local,
		Completer: c.Progress,
		Clock:     opts.Clock,
		Rand:      opts.Rand,
		Debounce:  opts.Debounce,
	})
	c.Plan = plan.NewEngine(plan.Options{
		Level:    opts.Level,
		Catalog:  opts.Catalog,
		Local:    opts.Local,
		Clock:    opts.Clock,
		Debounce: opts.Debounce,
	})
	c.Stats = ai.NewStatsTracker(ai.StatsOptions{
		Local:    opts.Local,
		Assessor: opts.Assessor,
		OnLevelChange: func(level models.Level) {
			if err := c.SetLevel(level); err != nil {
				log.Printf("failed to apply assessed level for learner %s: %v", c.learnerID, err)
			}
		},
		CurrentLevel: c.Progress.Level,
		Debounce:     opts.Debounce,
	})
	return c
}

// Load restores every tracker and aligns the plan and exercises with the progress level.
// The plan gets its topic list before the saved index is restored against it.
func (c *Coach) Load(ctx context.Context) {
	c.Progress.Load(ctx)
	c.Plan.SetLevel(c.Progress.Level())
	c.Plan.Load(ctx)
	c.Exercises.Load(ctx)
	c.Stats.Load(ctx)
	c.syncLevel(c.Progress.Level())
}

// LearnerID returns the learner this coach serves
func (c *Coach) LearnerID() string {
	return c.learnerID
}

// Level returns the learner's current level
func (c *Coach) Level() models.Level {
	return c.Progress.Level()
}

// SetLevel moves the learner to a level; the topic plan and exercise selection follow
func (c *Coach) SetLevel(level models.Level) error {
	if err := c.Progress.UpdateLevel(level); err != nil {
		return err
	}
	c.syncLevel(level)
	return nil
}

func (c *Coach) syncLevel(level models.Level) {
	c.Plan.SetLevel(level)
	c.Exercises.SetLevel(level)
}

// SyncRemote pulls newer remote progress and lets the other trackers follow its level
func (c *Coach) SyncRemote(ctx context.Context) (bool, error) {
	applied, err := c.Progress.PullRemote(ctx)
	if applied {
		c.syncLevel(c.Progress.Level())
	}
	return applied, err
}

// SystemContext is the prompt fragment handed to the dialogue model
func (c *Coach) SystemContext() string {
	return c.Progress.BuildAIContext() + "\n" + c.Plan.StructuredContext(c.Progress.NextRequirements(planRequirements))
}

// NextExercise picks an exercise for the learner's level
func (c *Coach) NextExercise() *models.Exercise {
	return c.Exercises.NextExercise(c.Progress.Level(), c.Progress.CompletedIDs())
}

// SubmitAnswer grades an exercise answer
func (c *Coach) SubmitAnswer(exerciseID, answer string, timeSpent int) (exercise.Result, error) {
	return c.Exercises.Submit(exerciseID, answer, timeSpent)
}

// ObserveConversation feeds the transcript to the proficiency assessment
func (c *Coach) ObserveConversation(ctx context.Context, history []ai.Turn) (bool, error) {
	return c.Stats.Observe(ctx, history)
}

// Flush writes every pending snapshot, giving up when ctx is done
func (c *Coach) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Progress.Flush()
		c.Exercises.Flush()
		c.Plan.Flush()
		c.Stats.Flush()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
