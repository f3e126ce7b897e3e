package spaced_repetition

import (
	"sort"
	"sync"
	"time"

	"github.com/example/fluentbuddy/pkg/models"
)

// Scheduler keeps the review state of a set of items under one Policy
type Scheduler struct {
	mu     sync.RWMutex
	policy Policy
	items  map[string]models.ReviewItem
	now    func() time.Time
}

// NewScheduler creates a scheduler. A nil clock means time.Now.
func NewScheduler(policy Policy, clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		policy: policy,
		items:  make(map[string]models.ReviewItem),
		now:    clock,
	}
}

// Policy returns the scheduling parameters
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// AddItem starts or restarts the schedule of an item
func (s *Scheduler) AddItem(id string) models.ReviewItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.policy.New(id, s.now())
	s.items[id] = item
	return item
}

// RecordReview applies a graded review. Unknown items are added instead.
func (s *Scheduler) RecordReview(id string, quality QualityResponse) models.ReviewItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	prev, ok := s.items[id]
	var item models.ReviewItem
	if !ok {
		item = s.policy.New(id, now)
	} else {
		item = s.policy.Review(id, &prev, quality, now)
	}
	s.items[id] = item
	return item
}

// Item returns the state of one item
func (s *Scheduler) Item(id string) (models.ReviewItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// DueForReview returns items whose next review is not in the future, earliest first
func (s *Scheduler) DueForReview() []models.ReviewItem {
	now := s.now()
	return s.filter(func(item models.ReviewItem) bool {
		return !item.NextReview.After(now)
	})
}

// Upcoming returns items due within the next days, excluding those already due
func (s *Scheduler) Upcoming(days int) []models.ReviewItem {
	now := s.now()
	limit := now.Add(time.Duration(days) * 24 * time.Hour)
	return s.filter(func(item models.ReviewItem) bool {
		return item.NextReview.After(now) && !item.NextReview.After(limit)
	})
}

func (s *Scheduler) filter(keep func(models.ReviewItem) bool) []models.ReviewItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ReviewItem, 0)
	for _, item := range s.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextReview.Equal(out[j].NextReview) {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].NextReview.Before(out[j].NextReview)
	})
	return out
}

// Items returns a copy of the full schedule for persistence
func (s *Scheduler) Items() map[string]models.ReviewItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.ReviewItem, len(s.items))
	for id, item := range s.items {
		out[id] = item
	}
	return out
}

// Restore replaces the schedule with a persisted snapshot
func (s *Scheduler) Restore(items map[string]models.ReviewItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]models.ReviewItem, len(items))
	for id, item := range items {
		if item.ItemID == "" {
			item.ItemID = id
		}
		if item.EaseFactor < s.policy.MinEase {
			item.EaseFactor = s.policy.MinEase
		}
		s.items[id] = item
	}
}

// Len returns the number of scheduled items
func (s *Scheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
