package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/fluentbuddy/internal/ai"
	"github.com/example/fluentbuddy/internal/coach"
	"github.com/example/fluentbuddy/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// Callback data of the main menu
const (
	callbackExercise = "exercise"
	callbackProgress = "progress"
	callbackPlan     = "plan"
	callbackReview   = "review"
)

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// MainMenuButtons returns the buttons for the main menu
func MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{
			{Text: "Practice", CallbackData: callbackExercise},
			{Text: "Progress", CallbackData: callbackProgress},
		},
		{
			{Text: "Topic plan", CallbackData: callbackPlan},
			{Text: "Reviews", CallbackData: callbackReview},
		},
	}
}

// sender is the part of the Telegram API the bot talks through
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// learnerStore persists chat to learner bindings
type learnerStore interface {
	GetByChatID(ctx context.Context, chatID int64) (*models.Learner, error)
	Upsert(ctx context.Context, l *models.Learner) error
	Delete(ctx context.Context, chatID int64) error
}

// coaches resolves the coach of a learner
type coaches interface {
	Get(ctx context.Context, learnerID string) (*coach.Coach, error)
}

// Chat turns kept per chat for proficiency assessment
const maxHistory = 300

// pendingExercise is an exercise shown to a chat and not answered yet
type pendingExercise struct {
	ID string
	// Options in the order shown, for numbered answers
	Options []string
	Shown   time.Time
}

// Bot represents the Telegram bot application
type Bot struct {
	api      sender
	client   *tgbotapi.BotAPI
	config   *BotConfig
	learners learnerStore
	coaches  coaches
	now      func() time.Time

	mu      sync.Mutex
	pending map[int64]pendingExercise
	history map[int64][]ai.Turn
}

// New creates a new bot instance and authorizes it with Telegram
func New(cfg *BotConfig, learners learnerStore, coaches coaches) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is not set")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	log.Printf("Authorized on account %s", botAPI.Self.UserName)

	b := newBot(botAPI, cfg, learners, coaches)
	b.client = botAPI
	return b, nil
}

func newBot(api sender, cfg *BotConfig, learners learnerStore, coaches coaches) *Bot {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Bot{
		api:      api,
		config:   cfg,
		learners: learners,
		coaches:  coaches,
		now:      time.Now,
		pending:  make(map[int64]pendingExercise),
		history:  make(map[int64][]ai.Turn),
	}
}

// Start receives updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("bot is not connected to Telegram")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout

	updates := b.client.GetUpdatesChan(updateConfig)
	defer b.client.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			log.Println("Bot stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// SendReminder implements the scheduler.Notifier interface
func (b *Bot) SendReminder(chatID int64, due, upcoming int) error {
	text := fmt.Sprintf("You have %d %s due for review.", due, plural(due, "requirement", "requirements"))
	if upcoming > 0 {
		text += fmt.Sprintf(" %d more within the next day.", upcoming)
	}
	text += " Use /review to see them."

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending reminder to chat %d: %v", chatID, err)
		return err
	}
	log.Printf("Successfully sent reminder to chat %d for %d items", chatID, due)
	return nil
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.Message != nil && update.Message.IsCommand():
		err = b.HandleCommand(ctx, update.Message)
	case update.Message != nil:
		err = b.HandleText(ctx, update.Message)
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	}
	if err != nil {
		log.Printf("Error handling update %d: %v", update.UpdateID, err)
	}
}

// HandleCallback handles main menu buttons
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.Message == nil || callback.Message.Chat == nil {
		return fmt.Errorf("callback without message")
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		log.Printf("Error answering callback: %v", err)
	}

	chatID := callback.Message.Chat.ID
	c, err := b.coachForChat(ctx, chatID)
	if err != nil {
		return err
	}
	if c == nil {
		return b.reply(chatID, notStartedText)
	}

	switch callback.Data {
	case callbackExercise:
		return b.reply(chatID, b.nextExercise(chatID, c))
	case callbackProgress:
		return b.reply(chatID, progressText(c))
	case callbackPlan:
		return b.reply(chatID, planText(c))
	case callbackReview:
		return b.reply(chatID, reviewText(c))
	default:
		return b.reply(chatID, "Unknown option.")
	}
}

func (b *Bot) coachForChat(ctx context.Context, chatID int64) (*coach.Coach, error) {
	l, err := b.learners.GetByChatID(ctx, chatID)
	if err != nil || l == nil {
		return nil, err
	}
	return b.coaches.Get(ctx, l.LearnerID)
}

func (b *Bot) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) replyWithMenu(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	_, err := b.api.Send(msg)
	return err
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
