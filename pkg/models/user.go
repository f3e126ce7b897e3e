package models

import "time"

// Learner binds a Telegram chat to a learner identity
type Learner struct {
	ChatID           int64     `json:"chat_id" db:"chat_id"` // Telegram chat ID
	LearnerID        string    `json:"learner_id" db:"learner_id"`
	Username         string    `json:"username" db:"username"`
	NotificationHour int       `json:"notification_hour" db:"notification_hour"` // Hour of day for reminders (0-23)
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
