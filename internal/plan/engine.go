package plan

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/example/fluentbuddy/internal/catalog"
	"github.com/example/fluentbuddy/internal/metrics"
	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
)

const saveTimeout = 5 * time.Second

// TopicID is the identifier stored in topicsCompleted for a topic index
func TopicID(index int) string {
	return fmt.Sprintf("topic-%d", index)
}

// Options configures an Engine
type Options struct {
	Level    models.Level
	Catalog  *catalog.Catalog
	Local    storage.Store
	Clock    func() time.Time
	Debounce time.Duration
}

// Engine walks the cumulative topic plan from A1 up to the learner's level
type Engine struct {
	mu       sync.Mutex
	level    models.Level
	topics   []models.TopicDetails
	progress models.StructuredPlanProgress
	catalog  *catalog.Catalog
	local    storage.Store
	now      func() time.Time
	metrics  *metrics.Metrics
	save     *storage.Debouncer
}

// NewEngine creates a plan engine at the first topic
func NewEngine(opts Options) *Engine {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Local == nil {
		opts.Local = storage.NewMemoryStore()
	}
	if !opts.Level.Valid() {
		opts.Level = models.LevelA1
	}
	e := &Engine{
		level:   opts.Level,
		topics:  opts.Catalog.TopicsUpTo(opts.Level),
		catalog: opts.Catalog,
		local:   opts.Local,
		now:     opts.Clock,
		metrics: metrics.Get(),
	}
	e.progress = e.fresh()
	e.save = storage.NewDebouncer(opts.Debounce, e.persist)
	return e
}

func (e *Engine) fresh() models.StructuredPlanProgress {
	return models.StructuredPlanProgress{
		TopicsCompleted: []string{},
		TimeTracking:    map[int]models.TopicTimeTracking{},
		LastSessionDate: e.now(),
	}
}

// Load restores the persisted plan. An unreadable snapshot leaves a fresh plan.
func (e *Engine) Load(ctx context.Context) {
	var p models.StructuredPlanProgress
	found, err := e.local.Load(ctx, storage.KeyStructuredPlan, &p)
	if err != nil {
		log.Printf("structured plan snapshot unreadable, starting fresh: %v", err)
		return
	}
	if !found {
		return
	}
	if p.TopicsCompleted == nil {
		p.TopicsCompleted = []string{}
	}
	if p.TimeTracking == nil {
		p.TimeTracking = map[int]models.TopicTimeTracking{}
	}

	e.mu.Lock()
	e.progress = p
	e.clamp()
	e.mu.Unlock()
}

// SetLevel recomputes the topic list for a new level and clamps the current index
func (e *Engine) SetLevel(level models.Level) {
	if !level.Valid() {
		return
	}
	e.mu.Lock()
	if level == e.level {
		e.mu.Unlock()
		return
	}
	e.level = level
	e.topics = e.catalog.TopicsUpTo(level)
	moved := e.clamp()
	e.mu.Unlock()
	if moved {
		e.save.Trigger()
	}
}

// Level returns the level the topic list was built for
func (e *Engine) Level() models.Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// clamp keeps the index within the topic list; it reports whether it moved
func (e *Engine) clamp() bool {
	idx := e.progress.CurrentTopicIndex
	if idx >= len(e.topics) {
		idx = len(e.topics) - 1
	}
	if idx < 0 {
		idx = 0
	}
	moved := idx != e.progress.CurrentTopicIndex
	e.progress.CurrentTopicIndex = idx
	return moved
}

// Topics returns the cumulative topic list
func (e *Engine) Topics() []models.TopicDetails {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.TopicDetails(nil), e.topics...)
}

// CurrentIndex returns the position of the current topic
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress.CurrentTopicIndex
}

// CurrentTopic returns the topic being practiced
func (e *Engine) CurrentTopic() models.TopicDetails {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.topics[e.progress.CurrentTopicIndex]
}

// Progress is the percentage of topics completed
func (e *Engine) Progress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.percentComplete()
}

func (e *Engine) percentComplete() int {
	return int(math.Round(float64(len(e.progress.TopicsCompleted)) * 100 / float64(len(e.topics))))
}

// PlanProgress returns a copy of the plan state
func (e *Engine) PlanProgress() models.StructuredPlanProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.progress
	cp.TopicsCompleted = append([]string{}, e.progress.TopicsCompleted...)
	cp.TimeTracking = make(map[int]models.TopicTimeTracking, len(e.progress.TimeTracking))
	for k, v := range e.progress.TimeTracking {
		cp.TimeTracking[k] = v
	}
	if e.progress.CurrentSessionStartTime != nil {
		start := *e.progress.CurrentSessionStartTime
		cp.CurrentSessionStartTime = &start
	}
	return cp
}

// InSession reports whether a session is running
func (e *Engine) InSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress.CurrentSessionStartTime != nil
}

// StartSession starts timing practice on the current topic
func (e *Engine) StartSession() {
	now := e.now()
	e.mu.Lock()
	e.progress.CurrentSessionStartTime = &now
	e.mu.Unlock()
	e.save.Trigger()
}

// EndSession books the elapsed minutes on the current topic.
// It returns false when no session was running.
func (e *Engine) EndSession() (int, bool) {
	e.mu.Lock()
	minutes, ok := e.endSession()
	e.mu.Unlock()
	if !ok {
		return 0, false
	}
	e.metrics.PlanSessions.Inc()
	e.metrics.PlanSessionMinutes.Observe(float64(minutes))
	e.save.Trigger()
	return minutes, true
}

func (e *Engine) endSession() (int, bool) {
	start := e.progress.CurrentSessionStartTime
	if start == nil {
		return 0, false
	}
	now := e.now()
	minutes := int(math.Round(now.Sub(*start).Minutes()))
	if minutes < 0 {
		minutes = 0
	}

	idx := e.progress.CurrentTopicIndex
	tr, ok := e.progress.TimeTracking[idx]
	if !ok {
		tr = models.TopicTimeTracking{TopicIndex: idx}
	}
	tr.TimeSpentMinutes += minutes
	tr.SessionsCompleted++
	tr.LastSessionDate = now
	e.progress.TimeTracking[idx] = tr

	e.progress.TotalSessions++
	e.progress.LastSessionDate = now
	e.progress.CurrentSessionStartTime = nil
	return minutes, true
}

// transition ends a running session and then applies move under the lock
func (e *Engine) transition(move func() bool) bool {
	e.mu.Lock()
	minutes, ended := e.endSession()
	changed := move()
	e.mu.Unlock()

	if ended {
		e.metrics.PlanSessions.Inc()
		e.metrics.PlanSessionMinutes.Observe(float64(minutes))
	}
	if ended || changed {
		e.save.Trigger()
	}
	return changed
}

// CompleteCurrentTopic marks the current topic complete and advances to the next one.
// A topic that is already complete is left as is.
func (e *Engine) CompleteCurrentTopic() bool {
	return e.transition(func() bool {
		id := TopicID(e.progress.CurrentTopicIndex)
		for _, done := range e.progress.TopicsCompleted {
			if done == id {
				return false
			}
		}
		e.progress.TopicsCompleted = append(e.progress.TopicsCompleted, id)
		e.progress.CurrentTopicIndex = min(e.progress.CurrentTopicIndex+1, len(e.topics)-1)
		return true
	})
}

// GoToPreviousTopic moves back one topic for review
func (e *Engine) GoToPreviousTopic() bool {
	return e.transition(func() bool {
		if e.progress.CurrentTopicIndex == 0 {
			return false
		}
		e.progress.CurrentTopicIndex--
		return true
	})
}

// SkipToNextTopic advances without marking the current topic complete
func (e *Engine) SkipToNextTopic() bool {
	return e.transition(func() bool {
		if e.progress.CurrentTopicIndex >= len(e.topics)-1 {
			return false
		}
		e.progress.CurrentTopicIndex++
		return true
	})
}

// ResetPlan discards all plan progress
func (e *Engine) ResetPlan() {
	e.mu.Lock()
	e.progress = e.fresh()
	e.mu.Unlock()
	e.save.Trigger()
}

// CurrentTracking returns the accumulated practice on the current topic
func (e *Engine) CurrentTracking() models.TopicTimeTracking {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracking()
}

func (e *Engine) tracking() models.TopicTimeTracking {
	idx := e.progress.CurrentTopicIndex
	if tr, ok := e.progress.TimeTracking[idx]; ok {
		return tr
	}
	return models.TopicTimeTracking{TopicIndex: idx}
}

// TopicStats reports readiness of the current topic. Either enough sessions or
// enough minutes make the topic ready for evaluation.
func (e *Engine) TopicStats() models.TopicStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.topicStats()
}

func (e *Engine) topicStats() models.TopicStats {
	topic := e.topics[e.progress.CurrentTopicIndex]
	tr := e.tracking()
	return models.TopicStats{
		SessionsCompleted:   tr.SessionsCompleted,
		SessionsRecommended: topic.RecommendedSessions,
		SessionsProgress:    cappedPercent(tr.SessionsCompleted, topic.RecommendedSessions),
		TimeSpent:           tr.TimeSpentMinutes,
		TimeEstimated:       topic.EstimatedMinutes,
		TimeProgress:        cappedPercent(tr.TimeSpentMinutes, topic.EstimatedMinutes),
		IsReady:             tr.SessionsCompleted >= topic.RecommendedSessions || tr.TimeSpentMinutes >= topic.EstimatedMinutes,
		RemainingSessions:   max(0, topic.RecommendedSessions-tr.SessionsCompleted),
		RemainingMinutes:    max(0, topic.EstimatedMinutes-tr.TimeSpentMinutes),
	}
}

func cappedPercent(part, total int) int {
	if total <= 0 {
		return 100
	}
	return min(100, int(math.Round(float64(part)*100/float64(total))))
}

// Flush writes a pending snapshot immediately
func (e *Engine) Flush() {
	e.save.Flush()
}

func (e *Engine) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := e.local.Save(ctx, storage.KeyStructuredPlan, e.PlanProgress()); err != nil {
		e.metrics.PersistFailures.WithLabelValues("local", storage.KeyStructuredPlan).Inc()
		log.Printf("failed to save structured plan: %v", err)
	}
}
