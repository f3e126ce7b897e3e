package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/fluentbuddy/pkg/models"
	"github.com/jmoiron/sqlx"
)

// LearnerRepository handles Telegram chats subscribed to a learner
type LearnerRepository struct {
	db *sqlx.DB
}

// NewLearnerRepository creates a new repository instance
func NewLearnerRepository(db *sqlx.DB) *LearnerRepository {
	return &LearnerRepository{db: db}
}

// Upsert registers a chat or updates its settings
func (r *LearnerRepository) Upsert(ctx context.Context, l *models.Learner) error {
	query := r.db.Rebind(`
		INSERT INTO learners (chat_id, learner_id, username, notification_hour)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			learner_id = excluded.learner_id,
			username = excluded.username,
			notification_hour = excluded.notification_hour
	`)
	_, err := r.db.ExecContext(ctx, query, l.ChatID, l.LearnerID, l.Username, l.NotificationHour)
	if err != nil {
		return fmt.Errorf("failed to save learner chat %d: %w", l.ChatID, err)
	}
	return nil
}

// GetByChatID returns the learner bound to a chat, or nil
func (r *LearnerRepository) GetByChatID(ctx context.Context, chatID int64) (*models.Learner, error) {
	var l models.Learner
	query := r.db.Rebind(`SELECT chat_id, learner_id, username, notification_hour, created_at FROM learners WHERE chat_id = ?`)
	err := r.db.GetContext(ctx, &l, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learner chat %d: %w", chatID, err)
	}
	return &l, nil
}

// GetForNotification returns chats that want reminders at the given hour
func (r *LearnerRepository) GetForNotification(ctx context.Context, hour int) ([]models.Learner, error) {
	var learners []models.Learner
	query := r.db.Rebind(`
		SELECT chat_id, learner_id, username, notification_hour, created_at
		FROM learners
		WHERE notification_hour = ?
		ORDER BY chat_id
	`)
	if err := r.db.SelectContext(ctx, &learners, query, hour); err != nil {
		return nil, fmt.Errorf("failed to get learners for notification: %w", err)
	}
	return learners, nil
}

// Delete unsubscribes a chat
func (r *LearnerRepository) Delete(ctx context.Context, chatID int64) error {
	query := r.db.Rebind(`DELETE FROM learners WHERE chat_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, chatID); err != nil {
		return fmt.Errorf("failed to delete learner chat %d: %w", chatID, err)
	}
	return nil
}
