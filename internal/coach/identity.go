package coach

import (
	"context"
	"fmt"

	"github.com/example/fluentbuddy/internal/storage"
	"github.com/google/uuid"
)

type identity struct {
	LearnerID string `json:"learnerId"`
}

// ResolveLearnerID returns configured when set. Otherwise it returns the id stored
// under learner_identity, generating and storing a new one on first run.
func ResolveLearnerID(ctx context.Context, store storage.Store, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	var id identity
	found, err := store.Load(ctx, storage.KeyLearnerIdentity, &id)
	if err != nil {
		return "", fmt.Errorf("failed to read learner identity: %w", err)
	}
	if found && id.LearnerID != "" {
		return id.LearnerID, nil
	}

	id.LearnerID = uuid.NewString()
	if err := store.Save(ctx, storage.KeyLearnerIdentity, id); err != nil {
		return "", fmt.Errorf("failed to store learner identity: %w", err)
	}
	return id.LearnerID, nil
}
