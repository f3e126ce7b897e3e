package exercise

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/fluentbuddy/internal/catalog"
	"github.com/example/fluentbuddy/internal/metrics"
	"github.com/example/fluentbuddy/internal/spaced_repetition"
	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
)

const (
	masteryGain = 20
	masteryLoss = 15
	maxMastery  = 100
	// Mastery at which the exercise's tags count as learned requirements
	MasteryThreshold = 80

	saveTimeout = 5 * time.Second
)

// ErrUnknownExercise is returned for ids missing from the exercise bank
var ErrUnknownExercise = errors.New("unknown exercise")

// RequirementCompleter receives requirement ids learned through exercise mastery
type RequirementCompleter interface {
	CompleteFromMastery(ids []string) []string
}

// Options configures an Engine
type Options struct {
	Level     models.Level
	Catalog   *catalog.Catalog
	Local     storage.Store
	Completer RequirementCompleter
	Clock     func() time.Time
	Rand      *rand.Rand
	Debounce  time.Duration
}

// Result describes a graded attempt
type Result struct {
	Exercise models.Exercise
	Correct  bool
	Progress models.ExerciseProgress
	// Requirement ids newly completed through mastery
	Completed []string
}

// Stats summarizes practice totals
type Stats struct {
	TotalCompleted   int
	TotalCorrect     int
	Accuracy         int
	Streak           int
	LastPracticeDate time.Time
}

// Engine schedules practice exercises and tracks their mastery
type Engine struct {
	mu        sync.Mutex
	data      models.UserExerciseData
	bank      []models.Exercise
	byID      map[string]models.Exercise
	policy    spaced_repetition.Policy
	local     storage.Store
	completer RequirementCompleter
	now       func() time.Time
	rnd       *rand.Rand
	metrics   *metrics.Metrics
	save      *storage.Debouncer
}

// NewEngine creates an engine over the catalog's exercise bank
func NewEngine(opts Options) *Engine {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Local == nil {
		opts.Local = storage.NewMemoryStore()
	}
	if !opts.Level.Valid() {
		opts.Level = models.LevelA1
	}

	bank := opts.Catalog.Exercises()
	e := &Engine{
		data:      newData(opts.Level),
		bank:      bank,
		byID:      make(map[string]models.Exercise, len(bank)),
		policy:    spaced_repetition.ExercisePolicy(),
		local:     opts.Local,
		completer: opts.Completer,
		now:       opts.Clock,
		rnd:       opts.Rand,
		metrics:   metrics.Get(),
	}
	for _, ex := range bank {
		e.byID[ex.ID] = ex
	}
	e.save = storage.NewDebouncer(opts.Debounce, e.persist)
	return e
}

func newData(level models.Level) models.UserExerciseData {
	return models.UserExerciseData{
		CurrentLevel:       level,
		ProgressByExercise: map[string]models.ExerciseProgress{},
	}
}

// Load restores the persisted exercise state. Unreadable snapshots are replaced by fresh state.
func (e *Engine) Load(ctx context.Context) {
	var data models.UserExerciseData
	found, err := e.local.Load(ctx, storage.KeyExerciseProgress, &data)
	if err != nil {
		log.Printf("exercise progress snapshot unreadable, starting fresh: %v", err)
		return
	}
	if !found {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !data.CurrentLevel.Valid() {
		data.CurrentLevel = e.data.CurrentLevel
	}
	if data.ProgressByExercise == nil {
		data.ProgressByExercise = map[string]models.ExerciseProgress{}
	}
	e.data = data
}

// Exercise looks up an exercise of the bank
func (e *Engine) Exercise(id string) (models.Exercise, bool) {
	ex, ok := e.byID[id]
	return ex, ok
}

// Present prepares an exercise for display
func (e *Engine) Present(ex models.Exercise) Presentation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Present(ex, e.rnd)
}

// Submit grades an answer and records the attempt
func (e *Engine) Submit(exerciseID, answer string, timeSpent int) (Result, error) {
	ex, ok := e.byID[exerciseID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownExercise, exerciseID)
	}
	return e.RecordAttempt(exerciseID, Grade(ex, answer), answer, timeSpent)
}

// RecordAttempt applies a graded answer to the exercise's schedule, mastery and the totals
func (e *Engine) RecordAttempt(exerciseID string, correct bool, answer string, timeSpent int) (Result, error) {
	ex, ok := e.byID[exerciseID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownExercise, exerciseID)
	}
	now := e.now()

	e.mu.Lock()
	prev, seen := e.data.ProgressByExercise[exerciseID]
	next := e.schedule(exerciseID, prev, seen, correct, now)
	next.Attempts = append(append([]models.ExerciseAttempt(nil), prev.Attempts...), models.ExerciseAttempt{
		ExerciseID: exerciseID,
		Timestamp:  now,
		Correct:    correct,
		UserAnswer: answer,
		TimeSpent:  timeSpent,
	})
	e.data.ProgressByExercise[exerciseID] = next
	e.data.TotalCompleted++
	if correct {
		e.data.TotalCorrect++
		e.data.Streak++
	} else {
		e.data.Streak = 0
	}
	e.data.LastPracticeDate = now
	e.mu.Unlock()

	e.metrics.ExerciseAttempts.WithLabelValues(string(ex.Level), strconv.FormatBool(correct)).Inc()
	e.save.Trigger()

	res := Result{Exercise: ex, Correct: correct, Progress: next}
	if next.MasteryLevel >= MasteryThreshold && len(ex.Tags) > 0 && e.completer != nil {
		res.Completed = e.completer.CompleteFromMastery(MasteredRequirements(ex))
	}
	return res, nil
}

func (e *Engine) schedule(id string, prev models.ExerciseProgress, seen bool, correct bool, now time.Time) models.ExerciseProgress {
	quality := spaced_repetition.QualityIncorrect
	if correct {
		quality = spaced_repetition.QualityPerfect
	}

	var last *models.ReviewItem
	mastery := 0
	if seen {
		last = &models.ReviewItem{
			ItemID:       id,
			LastReviewed: prev.LastAttempt,
			NextReview:   prev.NextReview,
			Interval:     prev.Interval,
			EaseFactor:   prev.EaseFactor,
			Repetitions:  prev.Repetitions,
		}
		mastery = prev.MasteryLevel
		if correct {
			mastery = min(maxMastery, mastery+masteryGain)
		} else {
			mastery = max(0, mastery-masteryLoss)
		}
	} else if correct {
		mastery = masteryGain
	}

	item := e.policy.Review(id, last, quality, now)
	return models.ExerciseProgress{
		ExerciseID:   id,
		LastAttempt:  item.LastReviewed,
		NextReview:   item.NextReview,
		Interval:     item.Interval,
		EaseFactor:   item.EaseFactor,
		Repetitions:  item.Repetitions,
		MasteryLevel: mastery,
	}
}

// MasteredRequirements lists the requirement ids an exercise's tags stand for
func MasteredRequirements(ex models.Exercise) []string {
	ids := make([]string, 0, len(ex.Tags))
	for _, tag := range ex.Tags {
		ids = append(ids, models.RequirementID(ex.Level, ex.Category, tag))
	}
	return ids
}

// NextExercise picks the next exercise of a level. Exercises whose tags are all
// covered by completedIDs are skipped unless nothing else is left. Due exercises
// come first, lowest mastery first; when nothing is due a random one is returned.
func (e *Engine) NextExercise(level models.Level, completedIDs []string) *models.Exercise {
	var available []models.Exercise
	for _, ex := range e.bank {
		if ex.Level == level {
			available = append(available, ex)
		}
	}
	if len(available) == 0 {
		return nil
	}

	if len(completedIDs) > 0 {
		var open []models.Exercise
		for _, ex := range available {
			if !tagsCovered(ex.Tags, completedIDs) {
				open = append(open, ex)
			}
		}
		if len(open) > 0 {
			available = open
		}
	}

	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	var due []models.Exercise
	for _, ex := range available {
		p, ok := e.data.ProgressByExercise[ex.ID]
		if !ok || !p.NextReview.After(now) {
			due = append(due, ex)
		}
	}
	if len(due) == 0 {
		ex := available[e.rnd.Intn(len(available))]
		return &ex
	}

	sort.SliceStable(due, func(i, j int) bool {
		return e.data.ProgressByExercise[due[i].ID].MasteryLevel < e.data.ProgressByExercise[due[j].ID].MasteryLevel
	})
	ex := due[0]
	return &ex
}

// tagsCovered reports whether every tag matches some completed requirement.
// Exercises without tags are never covered.
func tagsCovered(tags, completedIDs []string) bool {
	if len(tags) == 0 {
		return false
	}
	for _, tag := range tags {
		covered := false
		for _, id := range completedIDs {
			if strings.HasSuffix(id, "-"+tag) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// Progress returns the schedule and mastery of one exercise
func (e *Engine) Progress(exerciseID string) (models.ExerciseProgress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.data.ProgressByExercise[exerciseID]
	return p, ok
}

// Stats returns the practice totals
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		TotalCompleted:   e.data.TotalCompleted,
		TotalCorrect:     e.data.TotalCorrect,
		Streak:           e.data.Streak,
		LastPracticeDate: e.data.LastPracticeDate,
	}
	if s.TotalCompleted > 0 {
		s.Accuracy = int(math.Round(float64(s.TotalCorrect) * 100 / float64(s.TotalCompleted)))
	}
	return s
}

// SetLevel changes the level used for exercise selection
func (e *Engine) SetLevel(level models.Level) {
	if !level.Valid() {
		return
	}
	e.mu.Lock()
	if e.data.CurrentLevel == level {
		e.mu.Unlock()
		return
	}
	e.data.CurrentLevel = level
	e.mu.Unlock()
	e.save.Trigger()
}

// Level returns the level used for exercise selection
func (e *Engine) Level() models.Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.CurrentLevel
}

// Flush writes a pending snapshot immediately
func (e *Engine) Flush() {
	e.save.Flush()
}

func (e *Engine) snapshot() models.UserExerciseData {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.data
	cp.ProgressByExercise = make(map[string]models.ExerciseProgress, len(e.data.ProgressByExercise))
	for k, v := range e.data.ProgressByExercise {
		cp.ProgressByExercise[k] = v
	}
	return cp
}

func (e *Engine) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := e.local.Save(ctx, storage.KeyExerciseProgress, e.snapshot()); err != nil {
		e.metrics.PersistFailures.WithLabelValues("local", storage.KeyExerciseProgress).Inc()
		log.Printf("failed to save exercise progress: %v", err)
	}
}
