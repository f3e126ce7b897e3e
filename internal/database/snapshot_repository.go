package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/fluentbuddy/internal/storage"
	"github.com/jmoiron/sqlx"
)

// SnapshotRepository stores JSON snapshots of one learner in the snapshots table
type SnapshotRepository struct {
	db        *sqlx.DB
	learnerID string
}

// NewSnapshotRepository creates a repository bound to a learner
func NewSnapshotRepository(db *sqlx.DB, learnerID string) *SnapshotRepository {
	return &SnapshotRepository{db: db, learnerID: learnerID}
}

type snapshotRow struct {
	Data      string    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Load implements storage.Store
func (r *SnapshotRepository) Load(ctx context.Context, key string, v interface{}) (bool, error) {
	var row snapshotRow
	query := r.db.Rebind(`SELECT data, updated_at FROM snapshots WHERE learner_id = ? AND key = ?`)
	err := r.db.GetContext(ctx, &row, query, r.learnerID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}
	if err := storage.Decode(key, []byte(row.Data), v); err != nil {
		return true, err
	}
	return true, nil
}

// Save implements storage.Store
func (r *SnapshotRepository) Save(ctx context.Context, key string, v interface{}) error {
	data, err := storage.Encode(key, v)
	if err != nil {
		return err
	}
	query := r.db.Rebind(`
		INSERT INTO snapshots (learner_id, key, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (learner_id, key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`)
	if _, err := r.db.ExecContext(ctx, query, r.learnerID, key, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when a snapshot was last written
func (r *SnapshotRepository) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	var ts time.Time
	query := r.db.Rebind(`SELECT updated_at FROM snapshots WHERE learner_id = ? AND key = ?`)
	err := r.db.GetContext(ctx, &ts, query, r.learnerID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read snapshot time %s: %w", key, err)
	}
	return ts, true, nil
}

var _ storage.Store = (*SnapshotRepository)(nil)
