package catalog

import (
	"testing"

	"github.com/example/fluentbuddy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogCoversEveryLevel(t *testing.T) {
	c := Default()
	for _, level := range models.Levels {
		assert.NotZero(t, c.TotalCount(level), level)
		assert.Len(t, c.Topics(level), 6, level)
		for _, cat := range models.Categories {
			assert.NotEmpty(t, c.RequirementsByCategory(level, cat), "%s %s", level, cat)
		}
	}
	assert.Equal(t, "Intermediate", c.LevelInfo(models.LevelB1).DisplayName)
}

func TestNextIncompleteFollowsCatalogOrder(t *testing.T) {
	c := Default()
	reqs := c.RequirementsForLevel(models.LevelA1)

	next := c.NextIncomplete(models.LevelA1, map[string]bool{})
	require.NotNil(t, next)
	assert.Equal(t, reqs[0].ID, next.ID)

	next = c.NextIncomplete(models.LevelA1, map[string]bool{reqs[0].ID: true})
	require.NotNil(t, next)
	assert.Equal(t, reqs[1].ID, next.ID)

	all := map[string]bool{}
	for _, r := range reqs {
		all[r.ID] = true
	}
	assert.Nil(t, c.NextIncomplete(models.LevelA1, all))
}

func TestTopicsUpToIsCumulative(t *testing.T) {
	c := Default()
	topics := c.TopicsUpTo(models.LevelB1)
	require.Len(t, topics, 18)
	assert.Equal(t, "Personal Introduction", topics[0].Title)
	assert.Equal(t, "Past Experiences", topics[6].Title)
	assert.Equal(t, "Expressing Opinions", topics[12].Title)
	assert.Len(t, c.TopicsUpTo(models.LevelC2), 36)
}

func TestUnknownLevelPanics(t *testing.T) {
	c := Default()
	assert.Panics(t, func() { c.RequirementsForLevel(models.Level("D1")) })
	assert.Panics(t, func() { c.TopicsUpTo(models.Level("")) })
}

func TestExerciseTagsResolveToRequirements(t *testing.T) {
	c := Default()
	require.NotEmpty(t, c.Exercises())
	for _, ex := range c.Exercises() {
		for _, tag := range ex.Tags {
			id := models.RequirementID(ex.Level, ex.Category, tag)
			_, ok := c.Requirement(id)
			assert.True(t, ok, "exercise %s tag %s -> %s", ex.ID, tag, id)
		}
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	reqs := []byte(`
levels:
  - level: A1
    requirements:
      - {id: x, category: grammar, name: X}
      - {id: x, category: grammar, name: Y}
`)
	_, err := Load(reqs, []byte("levels: []"), []byte("exercises: []"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate requirement id")
}
