package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// Persisted state keys
const (
	KeyLearningProgress = "learning_progress"
	KeyReviewSchedule   = "reviewSchedule"
	KeyExerciseProgress = "exercise_progress"
	KeyStructuredPlan   = "fluentbuddy_structured_plan"
	KeyStats            = "fluentbuddy_stats"
	KeyLearnerIdentity  = "learner_identity"
)

// ErrCorrupt marks a snapshot that exists but cannot be decoded
var ErrCorrupt = errors.New("corrupt snapshot")

// Store persists JSON snapshots by key for a single learner
type Store interface {
	// Load decodes the snapshot under key into v. It reports false when nothing is stored.
	Load(ctx context.Context, key string, v interface{}) (bool, error)
	Save(ctx context.Context, key string, v interface{}) error
}

// Decode unmarshals raw snapshot bytes, wrapping failures with ErrCorrupt
func Decode(key string, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrCorrupt, "key %s: %v", key, err)
	}
	return nil
}

// Encode marshals a snapshot
func Encode(key string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", key)
	}
	return data, nil
}

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	// FailSaves makes Save return an error, for exercising failure paths
	FailSaves bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, key string, v interface{}) (bool, error) {
	m.mu.RLock()
	data, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := Decode(key, data, v); err != nil {
		return true, err
	}
	return true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, v interface{}) error {
	m.mu.RLock()
	fail := m.FailSaves
	m.mu.RUnlock()
	if fail {
		return errors.Errorf("memory store: save %s refused", key)
	}
	data, err := Encode(key, v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = data
	m.mu.Unlock()
	return nil
}

// SetFailSaves toggles FailSaves safely
func (m *MemoryStore) SetFailSaves(fail bool) {
	m.mu.Lock()
	m.FailSaves = fail
	m.mu.Unlock()
}

// Raw returns the stored bytes of a key
func (m *MemoryStore) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	return data, ok
}

// PutRaw stores bytes as-is, bypassing encoding
func (m *MemoryStore) PutRaw(key string, data []byte) {
	m.mu.Lock()
	m.data[key] = data
	m.mu.Unlock()
}

var _ Store = (*MemoryStore)(nil)
