package ai

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/example/fluentbuddy/internal/metrics"
	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
)

// An assessment runs after every assessEvery user turns
const assessEvery = 3

var levelScores = map[models.Level]models.UserStats{
	models.LevelA1: {Grammar: 15, Vocabulary: 20, Communication: 25},
	models.LevelA2: {Grammar: 30, Vocabulary: 35, Communication: 40},
	models.LevelB1: {Grammar: 45, Vocabulary: 50, Communication: 55},
	models.LevelB2: {Grammar: 60, Vocabulary: 65, Communication: 70},
	models.LevelC1: {Grammar: 75, Vocabulary: 80, Communication: 85},
	models.LevelC2: {Grammar: 90, Vocabulary: 90, Communication: 95},
}

// InitialStats are the scores of a learner nobody has assessed yet
func InitialStats() models.UserStats {
	return models.UserStats{Grammar: 30, Vocabulary: 35, Communication: 40, Level: models.LevelB1}
}

// StatsOptions configures a StatsTracker
type StatsOptions struct {
	Local    storage.Store
	Assessor Assessor
	// Called after an assessment or SetInitialLevel moves the learner to another level
	OnLevelChange func(models.Level)
	// Level the learner is working at; defaults to the assessed level
	CurrentLevel func() models.Level
	Debounce     time.Duration
}

// StatsTracker keeps the assessed proficiency scores of a learner
type StatsTracker struct {
	mu            sync.Mutex
	stats         models.UserStats
	local         storage.Store
	assessor      Assessor
	onLevelChange func(models.Level)
	currentLevel  func() models.Level
	metrics       *metrics.Metrics
	save          *storage.Debouncer

	// user turns counted before the last conversation restart
	turnBase  int
	lastTurns int
}

// NewStatsTracker creates a tracker with the initial scores
func NewStatsTracker(opts StatsOptions) *StatsTracker {
	if opts.Local == nil {
		opts.Local = storage.NewMemoryStore()
	}
	s := &StatsTracker{
		stats:         InitialStats(),
		local:         opts.Local,
		assessor:      opts.Assessor,
		onLevelChange: opts.OnLevelChange,
		currentLevel:  opts.CurrentLevel,
		metrics:       metrics.Get(),
	}
	s.save = storage.NewDebouncer(opts.Debounce, s.persist)
	return s
}

// Load restores persisted scores
func (s *StatsTracker) Load(ctx context.Context) {
	var st models.UserStats
	found, err := s.local.Load(ctx, storage.KeyStats, &st)
	if err != nil {
		log.Printf("stats snapshot unreadable, using initial scores: %v", err)
		return
	}
	if !found {
		return
	}
	if !st.Level.Valid() {
		st.Level = InitialStats().Level
	}
	s.mu.Lock()
	s.stats = st
	s.turnBase = st.TotalTurns
	s.lastTurns = 0
	s.mu.Unlock()
}

// Stats returns the current scores
func (s *StatsTracker) Stats() models.UserStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Level returns the assessed level
func (s *StatsTracker) Level() models.Level {
	return s.Stats().Level
}

// SetInitialLevel seeds the scores typical for a level, e.g. after a placement test
func (s *StatsTracker) SetInitialLevel(level models.Level) {
	scores, ok := levelScores[level]
	if !ok {
		return
	}
	scores.Level = level

	prev := s.learnerLevel()
	s.mu.Lock()
	scores.TotalTurns = s.stats.TotalTurns
	s.stats = scores
	s.mu.Unlock()

	s.save.Trigger()
	if prev != level && s.onLevelChange != nil {
		s.onLevelChange(level)
	}
}

// learnerLevel is the level a new assessment is compared against
func (s *StatsTracker) learnerLevel() models.Level {
	if s.currentLevel != nil {
		if l := s.currentLevel(); l.Valid() {
			return l
		}
	}
	return s.Level()
}

// Observe runs an assessment when history holds a new multiple of three user turns.
// A history shorter than the previous one starts a new conversation; the running
// turn count keeps growing across it. It reports whether an assessment was applied.
func (s *StatsTracker) Observe(ctx context.Context, history []Turn) (bool, error) {
	userTurns := 0
	for _, t := range history {
		if t.Role == RoleUser {
			userTurns++
		}
	}

	s.mu.Lock()
	if userTurns < s.lastTurns {
		s.turnBase += s.lastTurns
	}
	s.lastTurns = userTurns
	total := s.turnBase + userTurns
	seen := s.stats.TotalTurns == total
	s.mu.Unlock()

	if s.assessor == nil || userTurns == 0 || userTurns%assessEvery != 0 || seen {
		return false, nil
	}

	a, err := s.assessor.Assess(ctx, history)
	if err != nil {
		s.metrics.Assessments.WithLabelValues("error").Inc()
		log.Printf("assessment after %d turns failed: %v", userTurns, err)
		return false, err
	}
	s.metrics.Assessments.WithLabelValues("ok").Inc()

	prev := s.learnerLevel()
	s.mu.Lock()
	s.stats = models.UserStats{
		Grammar:       average(s.stats.Grammar, a.Grammar),
		Vocabulary:    average(s.stats.Vocabulary, a.Vocabulary),
		Communication: average(s.stats.Communication, a.Communication),
		Level:         a.Level,
		TotalTurns:    total,
	}
	s.mu.Unlock()

	s.save.Trigger()
	if a.Level != prev {
		s.metrics.Assessments.WithLabelValues("level_change").Inc()
		log.Printf("assessment moved learner from %s to %s: %s", prev, a.Level, a.Reasoning)
		if s.onLevelChange != nil {
			s.onLevelChange(a.Level)
		}
	}
	return true, nil
}

func average(prev, next int) int {
	return int(math.Round(float64(prev+next) / 2))
}

// Flush writes a pending snapshot immediately
func (s *StatsTracker) Flush() {
	s.save.Flush()
}

func (s *StatsTracker) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.local.Save(ctx, storage.KeyStats, s.Stats()); err != nil {
		s.metrics.PersistFailures.WithLabelValues("local", storage.KeyStats).Inc()
		log.Printf("failed to save stats: %v", err)
	}
}
