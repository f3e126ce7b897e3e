package progress

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/example/fluentbuddy/internal/catalog"
	"github.com/example/fluentbuddy/internal/events"
	"github.com/example/fluentbuddy/internal/metrics"
	"github.com/example/fluentbuddy/internal/spaced_repetition"
	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
	"github.com/pkg/errors"
)

const saveTimeout = 5 * time.Second

// Options configures a Tracker
type Options struct {
	LearnerID string
	// Level used when no snapshot exists
	Level   models.Level
	Catalog *catalog.Catalog
	Local   storage.Store
	// Remote mirror of learning_progress; nil disables sync
	Remote   storage.Store
	Events   events.Publisher
	Clock    func() time.Time
	Debounce time.Duration
}

// Tracker owns the completed requirements, notes and requirement review schedule of one learner
type Tracker struct {
	mu        sync.Mutex
	progress  models.UserProgress
	reviews   *spaced_repetition.Scheduler
	catalog   *catalog.Catalog
	local     storage.Store
	remote    storage.Store
	events    events.Publisher
	now       func() time.Time
	learnerID string
	metrics   *metrics.Metrics

	saveProgress *storage.Debouncer
	saveReviews  *storage.Debouncer
}

// NewTracker creates a tracker with fresh state. Call Load to restore snapshots.
func NewTracker(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Local == nil {
		opts.Local = storage.NewMemoryStore()
	}
	if !opts.Level.Valid() {
		opts.Level = models.LevelA1
	}

	t := &Tracker{
		progress:  models.NewUserProgress(opts.Level, opts.Clock()),
		reviews:   spaced_repetition.NewScheduler(spaced_repetition.RequirementPolicy(), opts.Clock),
		catalog:   opts.Catalog,
		local:     opts.Local,
		remote:    opts.Remote,
		events:    opts.Events,
		now:       opts.Clock,
		learnerID: opts.LearnerID,
		metrics:   metrics.Get(),
	}
	t.saveProgress = storage.NewDebouncer(opts.Debounce, t.persistProgress)
	t.saveReviews = storage.NewDebouncer(opts.Debounce, t.persistReviews)
	return t
}

// Load restores local snapshots and reconciles learning_progress with the remote store.
// The more recently updated copy wins as a whole; the other side is overwritten.
func (t *Tracker) Load(ctx context.Context) {
	var local models.UserProgress
	hasLocal, err := t.local.Load(ctx, storage.KeyLearningProgress, &local)
	if err != nil {
		log.Printf("learning progress snapshot unreadable, starting fresh: %v", err)
		hasLocal = false
	}

	var schedule map[string]models.ReviewItem
	if _, err := t.local.Load(ctx, storage.KeyReviewSchedule, &schedule); err != nil {
		log.Printf("review schedule snapshot unreadable, starting fresh: %v", err)
		schedule = nil
	}
	t.reviews.Restore(schedule)

	t.mu.Lock()
	if hasLocal {
		t.progress = t.normalize(local)
	}
	t.mu.Unlock()

	if t.remote == nil {
		return
	}

	var remote models.UserProgress
	hasRemote, err := t.remote.Load(ctx, storage.KeyLearningProgress, &remote)
	if err != nil {
		log.Printf("remote progress for learner %s unavailable: %v", t.learnerID, err)
		if !errors.Is(err, storage.ErrCorrupt) {
			return
		}
		hasRemote = false
	}

	switch {
	case hasRemote && (!hasLocal || remote.LastUpdated.After(local.LastUpdated)):
		t.mu.Lock()
		t.progress = t.normalize(remote)
		snapshot := t.progress.Clone()
		t.mu.Unlock()
		t.metrics.RemoteMerges.WithLabelValues("remote").Inc()
		if err := t.local.Save(ctx, storage.KeyLearningProgress, snapshot); err != nil {
			t.metrics.PersistFailures.WithLabelValues("local", storage.KeyLearningProgress).Inc()
			log.Printf("failed to store remote progress locally: %v", err)
		}
	default:
		t.metrics.RemoteMerges.WithLabelValues("local").Inc()
		t.pushRemote(ctx, t.Progress())
	}
}

// ApplyRemote adopts a pulled remote snapshot when it is strictly newer than local state
func (t *Tracker) ApplyRemote(remote models.UserProgress) bool {
	t.mu.Lock()
	if !remote.LastUpdated.After(t.progress.LastUpdated) {
		t.mu.Unlock()
		return false
	}
	t.progress = t.normalize(remote)
	t.mu.Unlock()

	t.metrics.RemoteMerges.WithLabelValues("remote").Inc()
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := t.local.Save(ctx, storage.KeyLearningProgress, t.Progress()); err != nil {
		t.metrics.PersistFailures.WithLabelValues("local", storage.KeyLearningProgress).Inc()
		log.Printf("failed to store remote progress locally: %v", err)
	}
	return true
}

// PullRemote fetches the remote snapshot and applies it if newer
func (t *Tracker) PullRemote(ctx context.Context) (bool, error) {
	if t.remote == nil {
		return false, nil
	}
	var remote models.UserProgress
	found, err := t.remote.Load(ctx, storage.KeyLearningProgress, &remote)
	if err != nil || !found {
		return false, err
	}
	return t.ApplyRemote(remote), nil
}

func (t *Tracker) normalize(p models.UserProgress) models.UserProgress {
	if !p.CurrentLevel.Valid() {
		log.Printf("progress snapshot has unknown level %q, using %s", p.CurrentLevel, t.progress.CurrentLevel)
		p.CurrentLevel = t.progress.CurrentLevel
	}
	seen := make(map[string]bool, len(p.CompletedRequirements))
	ids := make([]string, 0, len(p.CompletedRequirements))
	for _, id := range p.CompletedRequirements {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	p.CompletedRequirements = ids
	if p.Notes == nil {
		p.Notes = map[string]string{}
	}
	return p.Clone()
}

// MarkCompleted adds id to the completed set and enters it into the review cycle.
// It reports false when id was already complete.
func (t *Tracker) MarkCompleted(id string) bool {
	if !t.markCompleted(id) {
		return false
	}
	t.metrics.RequirementsCompleted.WithLabelValues("manual").Inc()
	t.changed(true)
	return true
}

func (t *Tracker) markCompleted(id string) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress.IsCompleted(id) {
		return false
	}
	t.progress.CompletedRequirements = append(t.progress.CompletedRequirements, id)
	t.progress.LastUpdated = t.now()
	t.reviews.AddItem(id)
	return true
}

// CompleteFromMastery marks requirements detected through exercise mastery and
// announces the change. It returns the ids that were newly completed.
func (t *Tracker) CompleteFromMastery(ids []string) []string {
	var added []string
	for _, id := range ids {
		if _, ok := t.catalog.Requirement(id); !ok {
			log.Printf("mastery requirement %s is not in the catalog", id)
		}
		if t.markCompleted(id) {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return nil
	}
	t.metrics.RequirementsCompleted.WithLabelValues("mastery").Add(float64(len(added)))
	t.changed(true)
	t.events.Publish(events.ProgressUpdated{
		LearnerID: t.learnerID,
		Progress:  t.Progress(),
		Completed: added,
		Timestamp: t.now(),
	})
	return added
}

// MarkIncomplete removes id from the completed set. The review schedule is kept.
func (t *Tracker) MarkIncomplete(id string) bool {
	t.mu.Lock()
	idx := -1
	for i, c := range t.progress.CompletedRequirements {
		if c == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return false
	}
	ids := t.progress.CompletedRequirements
	t.progress.CompletedRequirements = append(ids[:idx:idx], ids[idx+1:]...)
	t.progress.LastUpdated = t.now()
	t.mu.Unlock()

	t.changed(false)
	return true
}

// AddNote sets the learner's note on a requirement
func (t *Tracker) AddNote(id, text string) {
	t.mu.Lock()
	t.progress.Notes[id] = text
	t.progress.LastUpdated = t.now()
	t.mu.Unlock()
	t.changed(false)
}

// Note returns the note of a requirement
func (t *Tracker) Note(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.Notes[id]
}

// UpdateLevel moves the learner to another CEFR level
func (t *Tracker) UpdateLevel(level models.Level) error {
	if !level.Valid() {
		return fmt.Errorf("unknown CEFR level %q", level)
	}
	t.mu.Lock()
	if t.progress.CurrentLevel == level {
		t.mu.Unlock()
		return nil
	}
	t.progress.CurrentLevel = level
	t.progress.LastUpdated = t.now()
	t.mu.Unlock()
	t.changed(false)
	return nil
}

// Level returns the learner's current level
func (t *Tracker) Level() models.Level {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.CurrentLevel
}

// Progress returns a copy of the learner's progress
func (t *Tracker) Progress() models.UserProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.Clone()
}

// CompletedIDs returns the completed requirement ids in completion order
func (t *Tracker) CompletedIDs() []string {
	return t.Progress().CompletedRequirements
}

// IsCompleted reports whether a requirement is complete
func (t *Tracker) IsCompleted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.IsCompleted(id)
}

// CategoryProgress summarizes completion of a category at the current level
func (t *Tracker) CategoryProgress(category models.Category) models.CategoryProgress {
	p := t.Progress()
	return t.categoryProgress(p.CurrentLevel, p.CompletedSet(), category)
}

func (t *Tracker) categoryProgress(level models.Level, done map[string]bool, category models.Category) models.CategoryProgress {
	reqs := t.catalog.RequirementsByCategory(level, category)
	completed := 0
	for _, r := range reqs {
		if done[r.ID] {
			completed++
		}
	}
	return models.CategoryProgress{
		Category:   category,
		Completed:  completed,
		Total:      len(reqs),
		Percentage: percent(completed, len(reqs)),
	}
}

// OverallProgress counts completed catalog requirements at the current level
func (t *Tracker) OverallProgress() (completed, total, percentage int) {
	p := t.Progress()
	done := p.CompletedSet()
	reqs := t.catalog.RequirementsForLevel(p.CurrentLevel)
	for _, r := range reqs {
		if done[r.ID] {
			completed++
		}
	}
	return completed, len(reqs), percent(completed, len(reqs))
}

// NextRequirement returns the first incomplete requirement of the current level, or nil
func (t *Tracker) NextRequirement() *models.LearningRequirement {
	p := t.Progress()
	return t.catalog.NextIncomplete(p.CurrentLevel, p.CompletedSet())
}

// NextRequirements returns up to n incomplete requirements in catalog order
func (t *Tracker) NextRequirements(n int) []models.LearningRequirement {
	p := t.Progress()
	return t.catalog.Incomplete(p.CurrentLevel, p.CompletedSet(), n)
}

// RecordReview grades the learner's recall of a requirement
func (t *Tracker) RecordReview(id string, quality spaced_repetition.QualityResponse) models.ReviewItem {
	item := t.reviews.RecordReview(id, quality)
	outcome := "fail"
	if quality.Clamp() >= t.reviews.Policy().PassThreshold {
		outcome = "pass"
	}
	t.metrics.ReviewsRecorded.WithLabelValues(outcome).Inc()
	t.saveReviews.Trigger()
	return item
}

// DueForReview returns requirement reviews that are due, earliest first
func (t *Tracker) DueForReview() []models.ReviewItem {
	return t.reviews.DueForReview()
}

// UpcomingReviews returns reviews falling due within the next days
func (t *Tracker) UpcomingReviews(days int) []models.ReviewItem {
	return t.reviews.Upcoming(days)
}

// ReviewItem returns the schedule of one requirement
func (t *Tracker) ReviewItem(id string) (models.ReviewItem, bool) {
	return t.reviews.Item(id)
}

// Flush writes pending snapshots immediately
func (t *Tracker) Flush() {
	t.saveProgress.Flush()
	t.saveReviews.Flush()
}

func (t *Tracker) changed(reviews bool) {
	t.saveProgress.Trigger()
	if reviews {
		t.saveReviews.Trigger()
	}
}

func (t *Tracker) persistProgress() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	snapshot := t.Progress()
	if err := t.local.Save(ctx, storage.KeyLearningProgress, snapshot); err != nil {
		t.metrics.PersistFailures.WithLabelValues("local", storage.KeyLearningProgress).Inc()
		log.Printf("failed to save learning progress: %v", err)
	}
	t.pushRemote(ctx, snapshot)
}

// pushRemote is fire-and-forget; the next mutation pushes the whole snapshot again
func (t *Tracker) pushRemote(ctx context.Context, snapshot models.UserProgress) {
	if t.remote == nil {
		return
	}
	if err := t.remote.Save(ctx, storage.KeyLearningProgress, snapshot); err != nil {
		t.metrics.PersistFailures.WithLabelValues("remote", storage.KeyLearningProgress).Inc()
		log.Printf("failed to sync progress of learner %s: %v", t.learnerID, err)
	}
}

func (t *Tracker) persistReviews() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := t.local.Save(ctx, storage.KeyReviewSchedule, t.reviews.Items()); err != nil {
		t.metrics.PersistFailures.WithLabelValues("local", storage.KeyReviewSchedule).Inc()
		log.Printf("failed to save review schedule: %v", err)
	}
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
