package storage

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var got snapshot
	found, err := s.Load(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "k", snapshot{Name: "a", Count: 2}))
	found, err = s.Load(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snapshot{Name: "a", Count: 2}, got)
}

func TestMemoryStoreCorruptSnapshot(t *testing.T) {
	s := NewMemoryStore()
	s.PutRaw("k", []byte("{not json"))

	var got snapshot
	found, err := s.Load(context.Background(), "k", &got)
	assert.True(t, found)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestMemoryStoreFailSaves(t *testing.T) {
	s := NewMemoryStore()
	s.SetFailSaves(true)
	assert.Error(t, s.Save(context.Background(), "k", snapshot{}))
	_, ok := s.Raw("k")
	assert.False(t, ok)
}

func TestDebouncerCoalesces(t *testing.T) {
	var runs int32
	d := NewDebouncer(20*time.Millisecond, func() { atomic.AddInt32(&runs, 1) })

	for i := 0; i < 10; i++ {
		d.Trigger()
	}
	assert.True(t, d.Pending())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, d.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestDebouncerFlush(t *testing.T) {
	var runs int32
	d := NewDebouncer(time.Hour, func() { atomic.AddInt32(&runs, 1) })

	d.Flush()
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))

	d.Trigger()
	d.Trigger()
	d.Flush()
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	d.Stop()
	d.Trigger()
	assert.False(t, d.Pending())
}

func TestDebouncerZeroWaitIsSynchronous(t *testing.T) {
	runs := 0
	d := NewDebouncer(0, func() { runs++ })
	d.Trigger()
	d.Trigger()
	assert.Equal(t, 2, runs)

	d.Stop()
	d.Trigger()
	assert.Equal(t, 2, runs)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("FLUENTBUDDY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FLUENTBUDDY_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "fluentbuddy-test:"

	s, err := NewRedisStore(ctx, cfg, "learner-"+time.Now().Format("150405.000"))
	require.NoError(t, err)
	defer s.Close()

	var got snapshot
	found, err := s.Load(ctx, KeyLearningProgress, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, KeyLearningProgress, snapshot{Name: "r", Count: 1}))
	found, err = s.Load(ctx, KeyLearningProgress, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "r", got.Name)

	other := s.ForLearner("other-" + time.Now().Format("150405.000"))
	found, err = other.Load(ctx, KeyLearningProgress, &got)
	require.NoError(t, err)
	assert.False(t, found)
}
