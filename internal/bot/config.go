package bot

import (
	"time"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	Token string
	// Reminder hour assigned to new chats
	DefaultNotificationHour int
	// Pending exercises older than this are discarded instead of graded
	AnswerTimeout time.Duration
	// Long polling timeout in seconds
	UpdateTimeout int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		DefaultNotificationHour: 9,
		AnswerTimeout:           time.Hour * 1,
		UpdateTimeout:           60,
	}
}
