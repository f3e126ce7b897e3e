package bot

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/example/fluentbuddy/internal/ai"
	"github.com/example/fluentbuddy/internal/catalog"
	"github.com/example/fluentbuddy/internal/coach"
	"github.com/example/fluentbuddy/internal/exercise"
	"github.com/example/fluentbuddy/internal/storage"
	"github.com/example/fluentbuddy/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

type memoryLearners struct {
	byChat map[int64]models.Learner
}

func (m *memoryLearners) GetByChatID(_ context.Context, chatID int64) (*models.Learner, error) {
	l, ok := m.byChat[chatID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *memoryLearners) Upsert(_ context.Context, l *models.Learner) error {
	m.byChat[l.ChatID] = *l
	return nil
}

func (m *memoryLearners) Delete(_ context.Context, chatID int64) error {
	delete(m.byChat, chatID)
	return nil
}

type fakeAssessor struct{}

func (fakeAssessor) Assess(context.Context, []ai.Turn) (ai.Assessment, error) {
	return ai.Assessment{Grammar: 70, Vocabulary: 70, Communication: 70, Level: models.LevelB2}, nil
}

var bank = []models.Exercise{{
	ID: "a1-past-go", Level: models.LevelA1, Category: models.CategoryGrammar, Type: models.ExerciseMultipleChoice,
	Question: "Yesterday I ___ to school.", Options: []string{"go", "went", "gone"}, CorrectAnswer: "went",
	Explanation: "Past simple of go.",
}}

func setup(t *testing.T) (*Bot, *fakeSender, *memoryLearners, *time.Time) {
	t.Helper()
	now := time.Date(2024, 11, 4, 18, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cat := catalog.Default().WithExercises(bank)
	reg := coach.NewRegistry(func(ctx context.Context, learnerID string) (*coach.Coach, error) {
		c := coach.New(coach.Options{
			LearnerID: learnerID,
			Catalog:   cat,
			Local:     storage.NewMemoryStore(),
			Clock:     clock,
			Rand:      rand.New(rand.NewSource(1)),
			Assessor:  fakeAssessor{},
		})
		c.Load(ctx)
		return c, nil
	})

	api := &fakeSender{}
	learners := &memoryLearners{byChat: map[int64]models.Learner{}}
	b := newBot(api, DefaultConfig(), learners, reg)
	b.now = clock
	return b, api, learners, &now
}

func command(chatID int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: chatID, UserName: "ann"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func text(chatID int64, s string) *tgbotapi.Message {
	return &tgbotapi.Message{Text: s, Chat: &tgbotapi.Chat{ID: chatID}}
}

func TestStartRegistersLearner(t *testing.T) {
	ctx := context.Background()
	b, api, learners, _ := setup(t)

	require.NoError(t, b.HandleCommand(ctx, command(42, "/progress")))
	assert.Equal(t, notStartedText, api.last())

	require.NoError(t, b.HandleCommand(ctx, command(42, "/start")))
	l := learners.byChat[42]
	assert.Len(t, l.LearnerID, 36)
	assert.Equal(t, "ann", l.Username)
	assert.Equal(t, 9, l.NotificationHour)
	assert.Contains(t, api.last(), "Your level is A1")

	require.NoError(t, b.HandleCommand(ctx, command(42, "/start")))
	assert.Equal(t, l.LearnerID, learners.byChat[42].LearnerID)

	require.NoError(t, b.HandleCommand(ctx, command(42, "/stop")))
	assert.NotContains(t, learners.byChat, int64(42))
	require.NoError(t, b.HandleCommand(ctx, command(42, "/plan")))
	assert.Equal(t, notStartedText, api.last())
}

func TestContextExerciseHidesAnswer(t *testing.T) {
	ex := models.Exercise{
		ID: "a1-ctx-coffee", Level: models.LevelA1, Category: models.CategoryVocabulary, Type: models.ExerciseContext,
		Question: "Fill in the missing word.", Content: "I drink coffee every morning.", CorrectAnswer: "coffee",
	}
	out := presentationText(exercise.Present(ex, rand.New(rand.NewSource(1))))
	assert.Contains(t, out, "I drink _______ every morning.")
	assert.NotContains(t, out, "coffee")

	reading := ex
	reading.Type = models.ExerciseTranslate
	reading.Content = "Translate: Ich trinke Kaffee."
	assert.Contains(t, presentationText(exercise.Present(reading, rand.New(rand.NewSource(1)))), "Translate: Ich trinke Kaffee.")
}

func TestExerciseFlow(t *testing.T) {
	ctx := context.Background()
	b, api, _, now := setup(t)
	require.NoError(t, b.HandleCommand(ctx, command(1, "/start")))

	require.NoError(t, b.HandleText(ctx, text(1, "went")))
	assert.Contains(t, api.last(), "Noted.")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/exercise")))
	assert.Contains(t, api.last(), "Yesterday I ___ to school.")
	assert.Contains(t, api.last(), "1) ")

	*now = now.Add(20 * time.Second)
	require.NoError(t, b.HandleText(ctx, text(1, "went")))
	assert.Contains(t, api.last(), "Correct!")
	assert.Contains(t, api.last(), "Mastery: 20%")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/answer went")))
	assert.Contains(t, api.last(), "No exercise in progress")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/exercise")))
	pe := b.pending[1]
	wrong := 1
	for i, opt := range pe.Options {
		if opt != "went" {
			wrong = i + 1
			break
		}
	}
	require.NoError(t, b.HandleCommand(ctx, command(1, "/answer "+string(rune('0'+wrong)))))
	assert.Contains(t, api.last(), "The answer is: went")
	assert.Contains(t, api.last(), "Mastery: 5%")
}

func TestConversationAssessment(t *testing.T) {
	ctx := context.Background()
	b, api, _, _ := setup(t)

	require.NoError(t, b.HandleText(ctx, text(1, "hello")))
	assert.Equal(t, notStartedText, api.last())

	require.NoError(t, b.HandleCommand(ctx, command(1, "/start")))
	require.NoError(t, b.HandleText(ctx, text(1, "I have been living here for two years.")))
	require.NoError(t, b.HandleText(ctx, text(1, "Yesterday I went to the market.")))
	assert.Contains(t, api.last(), "Noted.")
	require.NoError(t, b.HandleText(ctx, text(1, "If I had more time, I would travel.")))
	assert.Equal(t, "Assessment: grammar 50, vocabulary 53, communication 55. Estimated level B2. Your level is now B2.", api.last())

	require.NoError(t, b.HandleCommand(ctx, command(1, "/level")))
	assert.Equal(t, "Your level is B2.", api.last())
}

func TestExpiredExercise(t *testing.T) {
	ctx := context.Background()
	b, api, _, now := setup(t)
	require.NoError(t, b.HandleCommand(ctx, command(1, "/start")))
	require.NoError(t, b.HandleCommand(ctx, command(1, "/exercise")))

	*now = now.Add(2 * time.Hour)
	require.NoError(t, b.HandleCommand(ctx, command(1, "/answer went")))
	assert.Contains(t, api.last(), "expired")
}

func TestProgressAndReviewCommands(t *testing.T) {
	ctx := context.Background()
	b, api, _, now := setup(t)
	require.NoError(t, b.HandleCommand(ctx, command(1, "/start")))

	require.NoError(t, b.HandleCommand(ctx, command(1, "/done a1-vocab-numbers")))
	assert.Contains(t, api.last(), "completed")
	require.NoError(t, b.HandleCommand(ctx, command(1, "/done a1-vocab-numbers")))
	assert.Contains(t, api.last(), "already completed")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/progress")))
	assert.Contains(t, api.last(), "Level A1: 1/")
	assert.Contains(t, api.last(), "vocabulary: 1/")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/review")))
	assert.Equal(t, "Nothing is due for review.", api.last())

	*now = now.Add(25 * time.Hour)
	require.NoError(t, b.HandleCommand(ctx, command(1, "/review")))
	assert.Contains(t, api.last(), "- a1-vocab-numbers")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/review a1-vocab-numbers 9")))
	assert.Contains(t, api.last(), "0 to 5")
	require.NoError(t, b.HandleCommand(ctx, command(1, "/review a1-vocab-numbers 5")))
	assert.Contains(t, api.last(), "Next review of a1-vocab-numbers on 2024-11-06")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/undo a1-vocab-numbers")))
	assert.Contains(t, api.last(), "marked as not completed")
}

func TestPlanCommands(t *testing.T) {
	ctx := context.Background()
	b, api, _, now := setup(t)
	require.NoError(t, b.HandleCommand(ctx, command(1, "/start")))

	require.NoError(t, b.HandleCommand(ctx, command(1, "/plan")))
	assert.Contains(t, api.last(), "Topic 1/6:")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/session end")))
	assert.Equal(t, "No session is running.", api.last())
	require.NoError(t, b.HandleCommand(ctx, command(1, "/session start")))
	*now = now.Add(10 * time.Minute)
	require.NoError(t, b.HandleCommand(ctx, command(1, "/session end")))
	assert.Equal(t, "Session ended: 10 minutes.", api.last())

	require.NoError(t, b.HandleCommand(ctx, command(1, "/prev")))
	assert.Equal(t, "You are on the first topic.", api.last())
	require.NoError(t, b.HandleCommand(ctx, command(1, "/complete")))
	assert.Contains(t, api.last(), "Topic 2/6:")
	require.NoError(t, b.HandleCommand(ctx, command(1, "/next")))
	assert.Contains(t, api.last(), "Topic 3/6:")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/level b1")))
	assert.Equal(t, "Level set to B1. Your plan now has 18 topics.", api.last())
	require.NoError(t, b.HandleCommand(ctx, command(1, "/level")))
	assert.Equal(t, "Your level is B1.", api.last())
	require.NoError(t, b.HandleCommand(ctx, command(1, "/level x")))
	assert.Contains(t, api.last(), "Unknown level")

	require.NoError(t, b.HandleCommand(ctx, command(1, "/context")))
	assert.Contains(t, api.last(), "STUDENT LEARNING PROGRESS:")
}

func TestNotifyAndReminder(t *testing.T) {
	ctx := context.Background()
	b, api, learners, _ := setup(t)
	require.NoError(t, b.HandleCommand(ctx, command(5, "/start")))

	require.NoError(t, b.HandleCommand(ctx, command(5, "/notify 25")))
	assert.Contains(t, api.last(), "0 to 23")
	require.NoError(t, b.HandleCommand(ctx, command(5, "/notify 7")))
	assert.Equal(t, 7, learners.byChat[5].NotificationHour)

	require.NoError(t, b.SendReminder(5, 1, 2))
	last := api.sent[len(api.sent)-1]
	assert.Equal(t, int64(5), last.ChatID)
	assert.Equal(t, "You have 1 requirement due for review. 2 more within the next day. Use /review to see them.", last.Text)
	assert.NotNil(t, last.ReplyMarkup)
}

func TestCallbackMenu(t *testing.T) {
	ctx := context.Background()
	b, api, _, _ := setup(t)
	require.NoError(t, b.HandleCommand(ctx, command(3, "/start")))

	cb := &tgbotapi.CallbackQuery{ID: "cb", Data: callbackPlan, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}}}
	require.NoError(t, b.HandleCallback(ctx, cb))
	assert.Contains(t, api.last(), "Topic 1/6:")

	cb.Data = callbackExercise
	require.NoError(t, b.HandleCallback(ctx, cb))
	assert.True(t, b.hasPending(3))
}
