/**
 * @description
 * This file defines the interfaces for the data access layer. Components depend on
 * these contracts, not on the PostgreSQL, in-memory or Redis implementations.
 *
 * @notes
 * - Every directory operation is scoped by the owning user id; a directory owned by
 *   someone else behaves exactly like a missing one.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

// ErrDirectoryNotFound is returned when no directory matches the id and owner.
var ErrDirectoryNotFound = errors.New("specified directory was not found")

// DirectoryRepository defines the contract for bank directory persistence.
type DirectoryRepository interface {
	CreateDirectory(ctx context.Context, directory *domain.Directory) (*domain.Directory, error)
	FindDirectory(ctx context.Context, userID int64, directoryID uuid.UUID) (*domain.Directory, error)
	ListDirectories(ctx context.Context, userID int64) ([]domain.Directory, error)
	CountDirectories(ctx context.Context, userID int64) (int, error)
	RenameDirectory(ctx context.Context, userID int64, directoryID uuid.UUID, name *string) (*domain.Directory, error)
	DeleteDirectory(ctx context.Context, userID int64, directoryID uuid.UUID) error
	DeleteDirectoriesByUser(ctx context.Context, userID int64) (int64, error)
}

// SessionCache stores upstream session keys per (user, directory).
type SessionCache interface {
	Get(ctx context.Context, userID int64, directoryID uuid.UUID) (string, bool)
	Put(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string, ttl time.Duration)
	Delete(ctx context.Context, userID int64, directoryID uuid.UUID)
}

// ProviderCache stores the detailed provider catalog.
type ProviderCache interface {
	GetProviders(ctx context.Context) ([]domain.Provider, bool)
	PutProviders(ctx context.Context, providers []domain.Provider, ttl time.Duration)
}
