/**
 * @description
 * This file implements the PostgreSQL directory repository over the
 * `banking_directories` table.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 * - The service's internal domain package for the Directory model.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

// PostgresDirectoryRepository is the PostgreSQL implementation of DirectoryRepository.
type PostgresDirectoryRepository struct {
	db *pgxpool.Pool
}

// NewPostgresDirectoryRepository creates a new instance of PostgresDirectoryRepository.
func NewPostgresDirectoryRepository(db *pgxpool.Pool) *PostgresDirectoryRepository {
	return &PostgresDirectoryRepository{db: db}
}

const directoryColumns = `id, user_id, name, provider_name, encrypted_credentials, created_at, updated_at`

// CreateDirectory inserts a directory. A zero ID is replaced by a new UUID.
func (r *PostgresDirectoryRepository) CreateDirectory(ctx context.Context, directory *domain.Directory) (*domain.Directory, error) {
	if directory.ID == uuid.Nil {
		directory.ID = uuid.New()
	}
	query := `
        INSERT INTO banking_directories (id, user_id, name, provider_name, encrypted_credentials)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		directory.ID,
		directory.UserID,
		directory.Name,
		directory.ProviderName,
		directory.EncryptedCredentials,
	).Scan(&directory.CreatedAt, &directory.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return directory, nil
}

// FindDirectory loads a directory including its encrypted credentials.
func (r *PostgresDirectoryRepository) FindDirectory(ctx context.Context, userID int64, directoryID uuid.UUID) (*domain.Directory, error) {
	query := `SELECT ` + directoryColumns + ` FROM banking_directories WHERE id = $1 AND user_id = $2`
	d, err := scanDirectory(r.db.QueryRow(ctx, query, directoryID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDirectoryNotFound
		}
		return nil, fmt.Errorf("failed to find directory: %w", err)
	}
	return d, nil
}

// ListDirectories returns the user's directories, newest first.
func (r *PostgresDirectoryRepository) ListDirectories(ctx context.Context, userID int64) ([]domain.Directory, error) {
	query := `SELECT ` + directoryColumns + ` FROM banking_directories WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query directories: %w", err)
	}
	defer rows.Close()

	directories := []domain.Directory{}
	for rows.Next() {
		d, err := scanDirectory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan directory row: %w", err)
		}
		directories = append(directories, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate directories: %w", err)
	}
	return directories, nil
}

// CountDirectories returns how many directories the user owns.
func (r *PostgresDirectoryRepository) CountDirectories(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM banking_directories WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count directories: %w", err)
	}
	return count, nil
}

// RenameDirectory sets or clears the directory name.
func (r *PostgresDirectoryRepository) RenameDirectory(ctx context.Context, userID int64, directoryID uuid.UUID, name *string) (*domain.Directory, error) {
	query := `
        UPDATE banking_directories
        SET name = $3, updated_at = NOW()
        WHERE id = $1 AND user_id = $2
        RETURNING ` + directoryColumns
	d, err := scanDirectory(r.db.QueryRow(ctx, query, directoryID, userID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDirectoryNotFound
		}
		return nil, fmt.Errorf("failed to rename directory: %w", err)
	}
	return d, nil
}

// DeleteDirectory removes a directory owned by the user.
func (r *PostgresDirectoryRepository) DeleteDirectory(ctx context.Context, userID int64, directoryID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM banking_directories WHERE id = $1 AND user_id = $2`, directoryID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDirectoryNotFound
	}
	return nil
}

// DeleteDirectoriesByUser removes every directory of the user.
func (r *PostgresDirectoryRepository) DeleteDirectoriesByUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM banking_directories WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user directories: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanDirectory(row pgx.Row) (*domain.Directory, error) {
	var d domain.Directory
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.ProviderName, &d.EncryptedCredentials, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
