package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"forestlog/internal/domain"
	"forestlog/internal/engine/auth"
	"forestlog/internal/events"
)

// CreateAPIKey stores a new key for the user and returns its plaintext once.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	name = sanitizeText(name)
	if len(name) > 100 {
		return domain.APIKey{}, "", InputError{Field: "name", Message: "must be at most 100 characters"}
	}
	plain, err := auth.GenerateAPIKey()
	if err != nil {
		return domain.APIKey{}, "", err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetUser(ctx, tx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   auth.HashAPIKey(plain),
		CreatedAt: e.timestamp(e.now()),
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.TypeAPIKeyCreated, userID, "api_key", key.ID, userID, events.EventPayload{"name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, userID)
}

func (e Engine) DeleteAPIKey(ctx context.Context, userID, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, userID, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeAPIKeyDeleted, userID, "api_key", id, userID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
