package coach

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Factory builds and loads the coach of a learner
type Factory func(ctx context.Context, learnerID string) (*Coach, error)

// Registry keeps one loaded Coach per learner
type Registry struct {
	mu      sync.Mutex
	coaches map[string]*Coach
	factory Factory
}

// NewRegistry creates an empty registry
func NewRegistry(factory Factory) *Registry {
	return &Registry{coaches: make(map[string]*Coach), factory: factory}
}

// Get returns the learner's coach, building it on first use
func (r *Registry) Get(ctx context.Context, learnerID string) (*Coach, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coaches[learnerID]; ok {
		return c, nil
	}
	c, err := r.factory(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	r.coaches[learnerID] = c
	return c, nil
}

// All returns the loaded coaches ordered by learner id
func (r *Registry) All() []*Coach {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Coach, 0, len(r.coaches))
	for _, c := range r.coaches {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].learnerID < out[j].learnerID })
	return out
}

// Flush writes pending snapshots of every loaded coach
func (r *Registry) Flush(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range r.All() {
		c := c
		g.Go(func() error { return c.Flush(ctx) })
	}
	return g.Wait()
}
