package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetIsShared(t *testing.T) {
	a := Get()
	b := Get()
	assert.Same(t, a, b)
}

func TestCountersIncrement(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.ExerciseAttempts.WithLabelValues("B1", "true"))
	m.ExerciseAttempts.WithLabelValues("B1", "true").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(m.ExerciseAttempts.WithLabelValues("B1", "true")))
}
