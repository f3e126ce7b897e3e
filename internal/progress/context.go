package progress

import (
	"fmt"
	"strings"

	"github.com/example/fluentbuddy/pkg/models"
)

// nextRequirementsInContext is how many upcoming requirements the AI context lists
const nextRequirementsInContext = 5

// LearningContext is the learner summary the AI context is built from
type LearningContext struct {
	// Names of the next incomplete requirements
	CurrentRequirements []string
	// Categories below half completion
	FocusAreas []models.Category
	// Lowest completion category; empty once every category is complete
	WeakestCategory models.Category
}

// LearningContext summarizes weak areas and the next requirements at the current level
func (t *Tracker) LearningContext() LearningContext {
	p := t.Progress()
	done := p.CompletedSet()

	var lc LearningContext
	lowest := 1.0
	for _, cat := range models.Categories {
		cp := t.categoryProgress(p.CurrentLevel, done, cat)
		ratio := float64(cp.Completed) / float64(cp.Total)
		if ratio < lowest {
			lowest = ratio
			lc.WeakestCategory = cat
		}
		if cp.Completed*2 < cp.Total {
			lc.FocusAreas = append(lc.FocusAreas, cat)
		}
	}

	for _, r := range t.catalog.Incomplete(p.CurrentLevel, done, nextRequirementsInContext) {
		lc.CurrentRequirements = append(lc.CurrentRequirements, r.Name)
	}
	return lc
}

// BuildAIContext renders the progress summary handed to the dialogue model
func (t *Tracker) BuildAIContext() string {
	level := t.Level()
	info := t.catalog.LevelInfo(level)
	completed, total, pct := t.OverallProgress()
	lc := t.LearningContext()

	var reviews []string
	for _, item := range t.DueForReview() {
		name := item.ItemID
		if r, ok := t.catalog.Requirement(item.ItemID); ok {
			name = r.Name
		}
		reviews = append(reviews, name)
	}

	var b strings.Builder
	b.WriteString("STUDENT LEARNING PROGRESS:\n")
	fmt.Fprintf(&b, "Current Level: %s (%s)\n", level, info.DisplayName)
	fmt.Fprintf(&b, "Overall Progress: %d/%d requirements completed (%d%%)\n\n", completed, total, pct)

	if len(reviews) > 0 {
		b.WriteString("REVIEW DUE TODAY (Spaced Repetition):\n")
		b.WriteString("These topics need review to reinforce memory:\n")
		for _, r := range reviews {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
		b.WriteString("\nPRIORITY: Ask questions about these topics to test retention!\n\n")
	}

	if lc.WeakestCategory != "" {
		fmt.Fprintf(&b, "Weakest Category: %s\n", lc.WeakestCategory)
	}
	if len(lc.FocusAreas) > 0 {
		areas := make([]string, len(lc.FocusAreas))
		for i, a := range lc.FocusAreas {
			areas[i] = string(a)
		}
		fmt.Fprintf(&b, "Focus Areas (< 50%% complete): %s\n", strings.Join(areas, ", "))
	}
	if len(lc.CurrentRequirements) > 0 {
		b.WriteString("\nNext Requirements to Learn:\n")
		for i, name := range lc.CurrentRequirements {
			fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		}
	}

	b.WriteString("\nINSTRUCTIONS FOR AI:\n")
	b.WriteString("- PRIORITY: Test retention of \"REVIEW DUE TODAY\" topics through questions and exercises\n")
	b.WriteString("- Focus your teaching on the student's weakest areas\n")
	b.WriteString("- Incorporate the next requirements naturally into conversation\n")
	b.WriteString("- Provide examples and practice opportunities for incomplete requirements\n")
	b.WriteString("- Acknowledge and reinforce completed requirements when appropriate\n")
	b.WriteString("- Adjust complexity to match the current CEFR level\n")
	b.WriteString("- Use spaced repetition: periodically revisit previously learned concepts\n")
	return b.String()
}
