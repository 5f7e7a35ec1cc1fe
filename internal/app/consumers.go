package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

// DirectoryPurger removes the directories of a user.
type DirectoryPurger interface {
	PurgeUserDirectories(ctx context.Context, userID int64) (int64, error)
}

// UserEventHandler handles user lifecycle events from RabbitMQ.
type UserEventHandler struct {
	purger DirectoryPurger
	logger zerolog.Logger
}

func NewUserEventHandler(purger DirectoryPurger, logger zerolog.Logger) *UserEventHandler {
	return &UserEventHandler{
		purger: purger,
		logger: logger.With().Str("component", "user_events").Logger(),
	}
}

// HandleUserDeleted purges the directories of a deleted user. Malformed messages
// are acknowledged so they are not redelivered; storage failures are retried.
func (h *UserEventHandler) HandleUserDeleted(ctx context.Context, body []byte) bool {
	var event domain.UserDeletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error().Err(err).Msg("failed to decode user.deleted event; acking")
		return true
	}
	if event.UserID <= 0 {
		h.logger.Warn().Msg("user.deleted event missing user_id; acking")
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := h.purger.PurgeUserDirectories(ctx, event.UserID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", event.UserID).Msg("failed to purge user directories; retrying")
		return false
	}
	h.logger.Info().Int64("user_id", event.UserID).Int64("deleted", deleted).Msg("purged directories of deleted user")
	return true
}
