package models

import "time"

// UserProgress tracks which requirements a learner has completed
type UserProgress struct {
	CurrentLevel          Level             `json:"currentLevel"`
	CompletedRequirements []string          `json:"completedRequirements"` // insertion order, no duplicates
	Notes                 map[string]string `json:"notes"`
	LastUpdated           time.Time         `json:"lastUpdated"`
}

// NewUserProgress returns an empty progress record at the given level
func NewUserProgress(level Level, now time.Time) UserProgress {
	return UserProgress{
		CurrentLevel:          level,
		CompletedRequirements: []string{},
		Notes:                 map[string]string{},
		LastUpdated:           now,
	}
}

// IsCompleted reports whether id is in the completed set
func (p *UserProgress) IsCompleted(id string) bool {
	for _, c := range p.CompletedRequirements {
		if c == id {
			return true
		}
	}
	return false
}

// CompletedSet returns the completed ids as a set
func (p *UserProgress) CompletedSet() map[string]bool {
	set := make(map[string]bool, len(p.CompletedRequirements))
	for _, id := range p.CompletedRequirements {
		set[id] = true
	}
	return set
}

// Clone returns a deep copy safe to hand to other goroutines
func (p UserProgress) Clone() UserProgress {
	c := p
	c.CompletedRequirements = append([]string{}, p.CompletedRequirements...)
	c.Notes = make(map[string]string, len(p.Notes))
	for k, v := range p.Notes {
		c.Notes[k] = v
	}
	return c
}
