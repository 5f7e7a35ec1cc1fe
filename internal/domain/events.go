/**
 * @description
 * This file defines the event contracts the banking-service exchanges over RabbitMQ:
 * directory lifecycle events it publishes, and the user deletion event it consumes.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	BankingEventsExchange = "banking_events"
	UserEventsExchange    = "user_events"

	DirectoryCreatedRoutingKey = "banking.directory.created"
	DirectoryDeletedRoutingKey = "banking.directory.deleted"
	UserDeletedRoutingKey      = "user.deleted"
)

// DirectoryEvent is published after a directory is created or deleted.
type DirectoryEvent struct {
	Type         string    `json:"type"`
	DirectoryID  uuid.UUID `json:"directory_id"`
	UserID       int64     `json:"user_id"`
	ProviderName string    `json:"provider_name"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// UserDeletedEvent is received when a user is removed from the platform.
type UserDeletedEvent struct {
	UserID int64 `json:"user_id"`
}
