package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/fluentbuddy/internal/ai"
	"github.com/example/fluentbuddy/internal/coach"
	"github.com/example/fluentbuddy/internal/exercise"
	"github.com/example/fluentbuddy/internal/spaced_repetition"
	"github.com/example/fluentbuddy/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const notStartedText = "Use /start to begin."

const helpText = `Available commands:
/exercise - practice an exercise
/answer <text> - answer the current exercise
/progress - show your progress
/review - list requirements due for review
/review <id> <0-5> - record how well you recalled a requirement
/done <id> - mark a requirement as completed
/undo <id> - mark a requirement as not completed
/plan - show the current conversation topic
/session start|end - time a practice session
/complete - complete the current topic
/next - skip to the next topic
/prev - go back to the previous topic
/resetplan - start the topic plan over
/level [A1-C2] - show or change your level
/notify <hour> - set the reminder hour (0-23)
/context - show the coaching context
/stop - stop reminders and unlink this chat`

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		return b.handleStart(ctx, message)
	case "help":
		return b.replyWithMenu(chatID, helpText)
	}

	c, err := b.coachForChat(ctx, chatID)
	if err != nil {
		return err
	}
	if c == nil {
		return b.reply(chatID, notStartedText)
	}

	args := strings.Fields(message.CommandArguments())
	switch message.Command() {
	case "exercise":
		return b.reply(chatID, b.nextExercise(chatID, c))
	case "answer":
		return b.reply(chatID, b.answer(chatID, c, message.CommandArguments()))
	case "progress":
		return b.reply(chatID, progressText(c))
	case "review":
		return b.reply(chatID, handleReview(c, args))
	case "done":
		return b.reply(chatID, handleDone(c, args, true))
	case "undo":
		return b.reply(chatID, handleDone(c, args, false))
	case "plan":
		return b.reply(chatID, planText(c))
	case "session":
		return b.reply(chatID, handleSession(c, args))
	case "complete":
		if !c.Plan.CompleteCurrentTopic() {
			return b.reply(chatID, "This topic is already completed.")
		}
		return b.reply(chatID, "Topic completed.\n\n"+planText(c))
	case "next":
		if !c.Plan.SkipToNextTopic() {
			return b.reply(chatID, "You are on the last topic.")
		}
		return b.reply(chatID, planText(c))
	case "prev":
		if !c.Plan.GoToPreviousTopic() {
			return b.reply(chatID, "You are on the first topic.")
		}
		return b.reply(chatID, planText(c))
	case "resetplan":
		c.Plan.ResetPlan()
		return b.reply(chatID, "Topic plan reset.\n\n"+planText(c))
	case "level":
		return b.reply(chatID, handleLevel(c, args))
	case "notify":
		return b.handleNotify(ctx, message, args)
	case "context":
		return b.reply(chatID, c.SystemContext())
	case "stop":
		if err := b.learners.Delete(ctx, chatID); err != nil {
			return err
		}
		b.mu.Lock()
		delete(b.pending, chatID)
		b.mu.Unlock()
		return b.reply(chatID, "Reminders stopped. Your progress is kept; use /start to continue with a new profile.")
	default:
		return b.replyWithMenu(chatID, "Unknown command. Use /help to see the commands.")
	}
}

// HandleText answers the pending exercise, or else treats the message as
// conversation practice feeding the proficiency assessment
func (b *Bot) HandleText(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	chatID := message.Chat.ID
	c, err := b.coachForChat(ctx, chatID)
	if err != nil {
		return err
	}
	if c == nil {
		return b.reply(chatID, notStartedText)
	}
	if b.hasPending(chatID) {
		return b.reply(chatID, b.answer(chatID, c, message.Text))
	}
	if strings.TrimSpace(message.Text) == "" {
		return b.replyWithMenu(chatID, "I don't understand. Use /help to see the commands.")
	}
	return b.reply(chatID, b.converse(ctx, chatID, c, message.Text))
}

func (b *Bot) converse(ctx context.Context, chatID int64, c *coach.Coach, text string) string {
	turn := ai.Turn{Role: ai.RoleUser, Text: strings.TrimSpace(text)}
	b.mu.Lock()
	h := append(b.history[chatID], turn)
	if len(h) > maxHistory {
		h = []ai.Turn{turn}
	}
	b.history[chatID] = h
	history := append([]ai.Turn(nil), h...)
	b.mu.Unlock()

	prevLevel := c.Level()
	ran, err := c.ObserveConversation(ctx, history)
	if err != nil {
		return "Noted. I could not assess your English right now."
	}
	if !ran {
		return "Noted. Keep writing in English; your level is assessed every few messages."
	}
	st := c.Stats.Stats()
	reply := fmt.Sprintf("Assessment: grammar %d, vocabulary %d, communication %d. Estimated level %s.",
		st.Grammar, st.Vocabulary, st.Communication, st.Level)
	if c.Level() != prevLevel {
		reply += fmt.Sprintf(" Your level is now %s.", c.Level())
	}
	return reply
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	l, err := b.learners.GetByChatID(ctx, chatID)
	if err != nil {
		return err
	}
	if l == nil {
		l = &models.Learner{
			ChatID:           chatID,
			LearnerID:        uuid.NewString(),
			NotificationHour: b.config.DefaultNotificationHour,
		}
		if message.From != nil {
			l.Username = message.From.UserName
		}
		if err := b.learners.Upsert(ctx, l); err != nil {
			return fmt.Errorf("failed to create learner: %w", err)
		}
	}
	c, err := b.coaches.Get(ctx, l.LearnerID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Welcome to FluentBuddy! Your level is %s.\n\n%s", c.Level(), helpText)
	return b.replyWithMenu(chatID, text)
}

func (b *Bot) nextExercise(chatID int64, c *coach.Coach) string {
	ex := c.NextExercise()
	if ex == nil {
		return "No exercises available for your level."
	}
	p := c.Exercises.Present(*ex)

	b.mu.Lock()
	b.pending[chatID] = pendingExercise{ID: ex.ID, Options: p.Options, Shown: b.now()}
	b.mu.Unlock()

	return presentationText(p)
}

func presentationText(p exercise.Presentation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s | %s]\n%s\n", p.Exercise.Type, p.Exercise.Category, p.Text)
	// context exercises carry the blanked content in Text
	if p.Exercise.Content != "" && p.Exercise.Type != models.ExerciseContext {
		sb.WriteString("\n" + p.Exercise.Content + "\n")
	}
	for i, opt := range p.Options {
		fmt.Fprintf(&sb, "%d) %s\n", i+1, opt)
	}
	if len(p.Words) > 0 {
		sb.WriteString("Words: " + strings.Join(p.Words, " / ") + "\n")
	}
	if p.Exercise.Type == models.ExerciseWriting && p.Exercise.MinWords > 0 {
		fmt.Fprintf(&sb, "Write %d-%d words.\n", p.Exercise.MinWords, p.Exercise.MaxWords)
	}
	if p.Exercise.Hint != "" {
		sb.WriteString("Hint: " + p.Exercise.Hint + "\n")
	}
	sb.WriteString("\nReply with your answer.")
	return sb.String()
}

func (b *Bot) hasPending(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[chatID]
	return ok
}

func (b *Bot) answer(chatID int64, c *coach.Coach, text string) string {
	text = strings.TrimSpace(text)
	b.mu.Lock()
	pe, ok := b.pending[chatID]
	if ok && text != "" {
		delete(b.pending, chatID)
	}
	b.mu.Unlock()

	if !ok {
		return "No exercise in progress. Use /exercise to get one."
	}
	if text == "" {
		return "Please send your answer."
	}
	elapsed := b.now().Sub(pe.Shown)
	if b.config.AnswerTimeout > 0 && elapsed > b.config.AnswerTimeout {
		return "That exercise has expired. Use /exercise to get a new one."
	}
	// numbered choice
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(pe.Options) {
		text = pe.Options[n-1]
	}

	res, err := c.SubmitAnswer(pe.ID, text, int(elapsed.Seconds()))
	if err != nil {
		return "Could not record your answer: " + err.Error()
	}
	return resultText(res, text)
}

func resultText(res exercise.Result, answer string) string {
	var sb strings.Builder
	switch {
	case res.Exercise.Type == models.ExerciseWriting:
		fmt.Fprintf(&sb, "Saved your text (%d words).\n", exercise.WordCount(answer))
		if res.Exercise.SampleAnswer != "" {
			sb.WriteString("Sample answer: " + res.Exercise.SampleAnswer + "\n")
		}
	case res.Correct:
		sb.WriteString("Correct!\n")
	default:
		sb.WriteString("Not quite. The answer is: " + res.Exercise.CorrectAnswer + "\n")
	}
	if res.Exercise.Explanation != "" {
		sb.WriteString(res.Exercise.Explanation + "\n")
	}
	fmt.Fprintf(&sb, "Mastery: %d%%", res.Progress.MasteryLevel)
	if len(res.Completed) > 0 {
		sb.WriteString("\nRequirements mastered: " + strings.Join(res.Completed, ", "))
	}
	return sb.String()
}

func progressText(c *coach.Coach) string {
	completed, total, pct := c.Progress.OverallProgress()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Level %s: %d/%d requirements (%d%%)\n\n", c.Level(), completed, total, pct)
	for _, cat := range models.Categories {
		cp := c.Progress.CategoryProgress(cat)
		fmt.Fprintf(&sb, "%s: %d/%d (%d%%)\n", cat, cp.Completed, cp.Total, cp.Percentage)
	}

	st := c.Exercises.Stats()
	fmt.Fprintf(&sb, "\nExercises: %d answered, %d%% correct, streak %d\n", st.TotalCompleted, st.Accuracy, st.Streak)

	if next := c.Progress.NextRequirement(); next != nil {
		fmt.Fprintf(&sb, "Next: %s (%s)", next.Name, next.ID)
	} else {
		sb.WriteString("Every requirement of this level is completed.")
	}
	return sb.String()
}

func reviewText(c *coach.Coach) string {
	due := c.Progress.DueForReview()
	if len(due) == 0 {
		return "Nothing is due for review."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d due for review:\n", len(due))
	for _, item := range due {
		fmt.Fprintf(&sb, "- %s\n", item.ItemID)
	}
	sb.WriteString("\nRate your recall with /review <id> <0-5>.")
	return sb.String()
}

func handleReview(c *coach.Coach, args []string) string {
	if len(args) == 0 {
		return reviewText(c)
	}
	if len(args) != 2 {
		return "Usage: /review <id> <0-5>"
	}
	q, err := strconv.Atoi(args[1])
	if err != nil || q < 0 || q > 5 {
		return "Quality must be a number from 0 to 5."
	}
	item := c.Progress.RecordReview(args[0], spaced_repetition.QualityResponse(q))
	return fmt.Sprintf("Next review of %s on %s.", item.ItemID, item.NextReview.Format("2006-01-02"))
}

func handleDone(c *coach.Coach, args []string, done bool) string {
	if len(args) != 1 {
		if done {
			return "Usage: /done <requirement id>"
		}
		return "Usage: /undo <requirement id>"
	}
	id := args[0]
	if done {
		if !c.Progress.MarkCompleted(id) {
			return id + " is already completed."
		}
		return id + " completed. First review tomorrow."
	}
	if !c.Progress.MarkIncomplete(id) {
		return id + " was not completed."
	}
	return id + " marked as not completed."
}

func planText(c *coach.Coach) string {
	topics := c.Plan.Topics()
	topic := c.Plan.CurrentTopic()
	st := c.Plan.TopicStats()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic %d/%d: %s\n", c.Plan.CurrentIndex()+1, len(topics), topic.Title)
	if topic.Description != "" {
		sb.WriteString(topic.Description + "\n")
	}
	fmt.Fprintf(&sb, "Sessions: %d/%d, minutes: %d/%d\n", st.SessionsCompleted, st.SessionsRecommended, st.TimeSpent, st.TimeEstimated)
	fmt.Fprintf(&sb, "Plan progress: %d%%\n", c.Plan.Progress())
	if st.IsReady {
		sb.WriteString("Ready for the mini-test. Use /complete when done.")
	} else {
		fmt.Fprintf(&sb, "Remaining: %d sessions or %d minutes.", st.RemainingSessions, st.RemainingMinutes)
	}
	return sb.String()
}

func handleSession(c *coach.Coach, args []string) string {
	if len(args) != 1 {
		return "Usage: /session start|end"
	}
	switch args[0] {
	case "start":
		if c.Plan.InSession() {
			return "A session is already running."
		}
		c.Plan.StartSession()
		return "Session started on " + c.Plan.CurrentTopic().Title + "."
	case "end":
		minutes, ok := c.Plan.EndSession()
		if !ok {
			return "No session is running."
		}
		return fmt.Sprintf("Session ended: %d %s.", minutes, plural(minutes, "minute", "minutes"))
	default:
		return "Usage: /session start|end"
	}
}

func handleLevel(c *coach.Coach, args []string) string {
	if len(args) == 0 {
		return "Your level is " + string(c.Level()) + "."
	}
	level, err := models.ParseLevel(args[0])
	if err != nil {
		return "Unknown level. Use one of A1, A2, B1, B2, C1, C2."
	}
	if err := c.SetLevel(level); err != nil {
		return "Could not change level: " + err.Error()
	}
	return fmt.Sprintf("Level set to %s. Your plan now has %d topics.", level, len(c.Plan.Topics()))
}

func (b *Bot) handleNotify(ctx context.Context, message *tgbotapi.Message, args []string) error {
	chatID := message.Chat.ID
	if len(args) != 1 {
		return b.reply(chatID, "Usage: /notify <hour>")
	}
	hour, err := strconv.Atoi(args[0])
	if err != nil || hour < 0 || hour > 23 {
		return b.reply(chatID, "Hour must be a number from 0 to 23.")
	}
	l, err := b.learners.GetByChatID(ctx, chatID)
	if err != nil {
		return err
	}
	if l == nil {
		return b.reply(chatID, notStartedText)
	}
	l.NotificationHour = hour
	if err := b.learners.Upsert(ctx, l); err != nil {
		return err
	}
	return b.reply(chatID, fmt.Sprintf("Reminders will arrive at %02d:00.", hour))
}
