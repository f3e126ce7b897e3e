package catalog

import (
	"embed"
	"fmt"
	"sync"

	"github.com/example/fluentbuddy/pkg/models"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Catalog holds the static requirement, topic and exercise data
type Catalog struct {
	levels    map[models.Level]models.LevelRequirements
	byID      map[string]models.LearningRequirement
	topics    map[models.Level][]models.TopicDetails
	exercises []models.Exercise
}

type requirementsFile struct {
	Levels []models.LevelRequirements `yaml:"levels"`
}

type topicsFile struct {
	Levels []struct {
		Level  models.Level          `yaml:"level"`
		Topics []models.TopicDetails `yaml:"topics"`
	} `yaml:"levels"`
}

type exercisesFile struct {
	Exercises []models.Exercise `yaml:"exercises"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It panics if the embedded data is invalid.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(
			mustRead("data/requirements.yaml"),
			mustRead("data/topics.yaml"),
			mustRead("data/exercises.yaml"),
		)
		if err != nil {
			panic(fmt.Sprintf("invalid embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func mustRead(name string) []byte {
	b, err := dataFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("missing embedded file %s: %v", name, err))
	}
	return b
}

// Load parses and validates catalog documents
func Load(requirementsYAML, topicsYAML, exercisesYAML []byte) (*Catalog, error) {
	var rf requirementsFile
	if err := yaml.Unmarshal(requirementsYAML, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse requirements: %w", err)
	}
	var tf topicsFile
	if err := yaml.Unmarshal(topicsYAML, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse topics: %w", err)
	}
	var ef exercisesFile
	if err := yaml.Unmarshal(exercisesYAML, &ef); err != nil {
		return nil, fmt.Errorf("failed to parse exercises: %w", err)
	}

	c := &Catalog{
		levels: make(map[models.Level]models.LevelRequirements),
		byID:   make(map[string]models.LearningRequirement),
		topics: make(map[models.Level][]models.TopicDetails),
	}

	for _, lr := range rf.Levels {
		if !lr.Level.Valid() {
			return nil, fmt.Errorf("unknown level %q", lr.Level)
		}
		if _, dup := c.levels[lr.Level]; dup {
			return nil, fmt.Errorf("level %s defined twice", lr.Level)
		}
		for _, r := range lr.Requirements {
			if !r.Category.Valid() {
				return nil, fmt.Errorf("requirement %s: unknown category %q", r.ID, r.Category)
			}
			if _, dup := c.byID[r.ID]; dup {
				return nil, fmt.Errorf("duplicate requirement id %s", r.ID)
			}
			c.byID[r.ID] = r
		}
		c.levels[lr.Level] = lr
	}

	for _, lt := range tf.Levels {
		if !lt.Level.Valid() {
			return nil, fmt.Errorf("unknown topic level %q", lt.Level)
		}
		for _, t := range lt.Topics {
			if t.EstimatedMinutes <= 0 || t.RecommendedSessions <= 0 {
				return nil, fmt.Errorf("topic %q must have positive minutes and sessions", t.Title)
			}
		}
		c.topics[lt.Level] = lt.Topics
	}

	for _, level := range models.Levels {
		lr, ok := c.levels[level]
		if !ok {
			return nil, fmt.Errorf("missing requirements for level %s", level)
		}
		for _, cat := range models.Categories {
			if countCategory(lr.Requirements, cat) == 0 {
				return nil, fmt.Errorf("level %s has no %s requirements", level, cat)
			}
		}
		if len(c.topics[level]) == 0 {
			return nil, fmt.Errorf("missing topics for level %s", level)
		}
	}

	seen := make(map[string]bool, len(ef.Exercises))
	for _, ex := range ef.Exercises {
		if err := ValidateExercise(ex); err != nil {
			return nil, err
		}
		if seen[ex.ID] {
			return nil, fmt.Errorf("duplicate exercise id %s", ex.ID)
		}
		seen[ex.ID] = true
	}
	c.exercises = ef.Exercises

	return c, nil
}

// ValidateExercise checks the fields every exercise needs
func ValidateExercise(ex models.Exercise) error {
	if ex.ID == "" {
		return fmt.Errorf("exercise without id")
	}
	if !ex.Level.Valid() {
		return fmt.Errorf("exercise %s: unknown level %q", ex.ID, ex.Level)
	}
	if !ex.Category.Valid() {
		return fmt.Errorf("exercise %s: unknown category %q", ex.ID, ex.Category)
	}
	if ex.Type != models.ExerciseWriting && ex.CorrectAnswer == "" {
		return fmt.Errorf("exercise %s: missing correct answer", ex.ID)
	}
	return nil
}

func countCategory(reqs []models.LearningRequirement, cat models.Category) int {
	n := 0
	for _, r := range reqs {
		if r.Category == cat {
			n++
		}
	}
	return n
}

func (c *Catalog) level(level models.Level) models.LevelRequirements {
	lr, ok := c.levels[level]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown level %q", level))
	}
	return lr
}

// LevelInfo returns the catalog entry of a level
func (c *Catalog) LevelInfo(level models.Level) models.LevelRequirements {
	return c.level(level)
}

// RequirementsForLevel returns the requirements of a level in catalog order
func (c *Catalog) RequirementsForLevel(level models.Level) []models.LearningRequirement {
	return c.level(level).Requirements
}

// RequirementsByCategory returns the requirements of one category within a level
func (c *Catalog) RequirementsByCategory(level models.Level, category models.Category) []models.LearningRequirement {
	var out []models.LearningRequirement
	for _, r := range c.level(level).Requirements {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// TotalCount returns the number of requirements in a level
func (c *Catalog) TotalCount(level models.Level) int {
	return len(c.level(level).Requirements)
}

// NextIncomplete returns the first requirement of the level not in completed, or nil
func (c *Catalog) NextIncomplete(level models.Level, completed map[string]bool) *models.LearningRequirement {
	for _, r := range c.level(level).Requirements {
		if !completed[r.ID] {
			r := r
			return &r
		}
	}
	return nil
}

// Incomplete returns up to limit requirements of the level not in completed
func (c *Catalog) Incomplete(level models.Level, completed map[string]bool, limit int) []models.LearningRequirement {
	var out []models.LearningRequirement
	for _, r := range c.level(level).Requirements {
		if len(out) >= limit {
			break
		}
		if !completed[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// Requirement looks up a requirement by id across all levels
func (c *Catalog) Requirement(id string) (models.LearningRequirement, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Topics returns the plan topics of a single level
func (c *Catalog) Topics(level models.Level) []models.TopicDetails {
	c.level(level)
	return c.topics[level]
}

// TopicsUpTo returns the cumulative topic list from A1 through level
func (c *Catalog) TopicsUpTo(level models.Level) []models.TopicDetails {
	idx := level.Index()
	if idx < 0 {
		panic(fmt.Sprintf("catalog: unknown level %q", level))
	}
	var out []models.TopicDetails
	for _, lv := range models.Levels[:idx+1] {
		out = append(out, c.topics[lv]...)
	}
	return out
}

// Exercises returns the exercise bank
func (c *Catalog) Exercises() []models.Exercise {
	return c.exercises
}

// WithExercises returns a copy of the catalog using a different exercise bank
func (c *Catalog) WithExercises(bank []models.Exercise) *Catalog {
	cp := *c
	cp.exercises = bank
	return &cp
}
