package events

import (
	"sync"
	"time"

	"github.com/example/fluentbuddy/pkg/models"
)

// ProgressUpdated fires when requirements are completed automatically
type ProgressUpdated struct {
	LearnerID string              `json:"learnerId"`
	Progress  models.UserProgress `json:"progress"`
	Completed []string            `json:"completed"` // ids completed by this change
	Timestamp time.Time           `json:"timestamp"`
}

// Handler receives published events
type Handler func(ProgressUpdated)

// Publisher is what trackers depend on to announce progress changes
type Publisher interface {
	Publish(ev ProgressUpdated)
}

// Bus is an in-process fan-out of ProgressUpdated events
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	h  Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h and returns a function that removes it
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, h: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev synchronously to every subscriber in subscription order
func (b *Bus) Publish(ev ProgressUpdated) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.h(ev)
	}
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(ProgressUpdated) {}

var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = Nop{}
)
