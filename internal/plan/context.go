package plan

import (
	"fmt"
	"strings"

	"github.com/example/fluentbuddy/pkg/models"
)

// StructuredContext renders the topic-focused prompt fragment for the dialogue model.
// pending are the learner's open requirements; at most three are listed.
func (e *Engine) StructuredContext(pending []models.LearningRequirement) string {
	e.mu.Lock()
	level := e.level
	topic := e.topics[e.progress.CurrentTopicIndex]
	completed := len(e.progress.TopicsCompleted)
	total := len(e.topics)
	pct := e.percentComplete()
	stats := e.topicStats()
	e.mu.Unlock()

	var b strings.Builder
	b.WriteString("**STRUCTURED CONVERSATION MODE - Path to C2**\n\n")
	fmt.Fprintf(&b, "Current Student Level: %s\n", level)
	fmt.Fprintf(&b, "Current Topic: %q\n", topic.Title)
	fmt.Fprintf(&b, "Progress: %d/%d topics completed (%d%%)\n\n", completed, total, pct)

	b.WriteString("**TOPIC DETAILS**:\n")
	fmt.Fprintf(&b, "- Description: %s\n", topic.Description)
	fmt.Fprintf(&b, "- Recommended Time: %d minutes (%d spent so far)\n", topic.EstimatedMinutes, stats.TimeSpent)
	fmt.Fprintf(&b, "- Recommended Sessions: %d (%d completed)\n", topic.RecommendedSessions, stats.SessionsCompleted)
	fmt.Fprintf(&b, "- Student Progress: %d%% of time, %d%% of sessions\n", stats.TimeProgress, stats.SessionsProgress)
	if stats.IsReady {
		b.WriteString("Student is READY for evaluation!\n\n")
	} else {
		b.WriteString("More practice needed - keep them engaged!\n\n")
	}

	b.WriteString("**YOUR MISSION FOR THIS SESSION**:\n")
	fmt.Fprintf(&b, "Focus the ENTIRE conversation on: %q\n\n", topic.Title)

	b.WriteString("**HOW TO CONDUCT THIS SESSION**:\n")
	fmt.Fprintf(&b, "1. Start by explaining what you'll practice: %q\n", topic.Title)
	b.WriteString("2. Ask open-ended questions specifically about this topic\n")
	b.WriteString("3. Encourage the student to elaborate and use relevant vocabulary\n")
	b.WriteString("4. Provide examples and scenarios related to this topic\n")
	b.WriteString("5. Keep bringing the conversation back to this focus area if they diverge\n")
	b.WriteString("6. Challenge them to use more sophisticated language for this topic\n")
	b.WriteString("7. ALWAYS correct grammar and suggest more natural alternatives\n\n")

	b.WriteString("**AUTOMATIC ADVANCEMENT SYSTEM - YOU DECIDE WHEN TO ADVANCE**:\n\n")
	if stats.IsReady {
		writeMiniTest(&b, topic, stats)
	} else {
		b.WriteString("**STILL PRACTICING**\n\n")
		fmt.Fprintf(&b, "Student needs %d more session(s) (~%d minutes).\n\n", stats.RemainingSessions, stats.RemainingMinutes)
		fmt.Fprintf(&b, "Keep them engaged and focused on %q. No testing yet.\n\n", topic.Title)
	}

	if len(pending) > 3 {
		pending = pending[:3]
	}
	if len(pending) > 0 {
		b.WriteString("**RELATED LEARNING REQUIREMENTS TO INCORPORATE**:\n")
		for _, r := range pending {
			fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("**IMPORTANT**:\n")
	b.WriteString("- YOU control topic advancement, not the student\n")
	b.WriteString("- Apply the mini-test when they're ready (stats above)\n")
	b.WriteString("- Make clear decisions based on their performance\n")
	b.WriteString("- This is a guided learning path - be directive!\n\n")
	b.WriteString("Remember: Your job is to evaluate, decide, and advance them systematically to C2!\n")
	return b.String()
}

func writeMiniTest(b *strings.Builder, topic models.TopicDetails, stats models.TopicStats) {
	b.WriteString("**READY FOR EVALUATION!**\n\n")
	fmt.Fprintf(b, "The student has completed the recommended practice (%d/%d sessions, %d/%d min).\n\n",
		stats.SessionsCompleted, stats.SessionsRecommended, stats.TimeSpent, stats.TimeEstimated)
	b.WriteString("**YOUR JOB NOW**: Apply a MINI-TEST to evaluate if they're truly ready!\n\n")
	b.WriteString("**MINI-TEST FORMAT** (do this naturally in conversation):\n")
	fmt.Fprintf(b, "1. Ask 2-3 challenging questions about %q\n", topic.Title)
	b.WriteString("2. Observe their grammar accuracy, vocabulary range, fluency and confidence, and ability to elaborate\n\n")
	b.WriteString("**EVALUATION CRITERIA**:\n")
	b.WriteString("PASS (advance to next topic):\n")
	b.WriteString("   - Answers confidently with minimal errors\n")
	b.WriteString("   - Uses relevant vocabulary naturally\n")
	b.WriteString("   - Elaborates without prompting\n")
	b.WriteString("   - Shows clear understanding of the topic\n")
	b.WriteString("NEEDS MORE PRACTICE:\n")
	b.WriteString("   - Struggles with basic questions\n")
	b.WriteString("   - Limited vocabulary\n")
	b.WriteString("   - Short, incomplete answers\n")
	b.WriteString("   - Frequent grammar mistakes\n\n")
	b.WriteString("**AFTER MINI-TEST**:\n")
	fmt.Fprintf(b, "- If PASS: Say \"Excellent work! You've mastered %s. Let's move to the next topic: [next topic name]!\"\n", topic.Title)
	fmt.Fprintf(b, "- If FAIL: Say \"Good effort! Let's practice %s a bit more to build confidence.\"\n\n", topic.Title)
	b.WriteString("**CRITICAL**: YOU make the decision. Don't ask the student if they want to advance - YOU evaluate and advance automatically!\n\n")
}
