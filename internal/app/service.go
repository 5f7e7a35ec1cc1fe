/**
 * @description
 * This file contains the core business logic for the banking-service, implemented as
 * a `BankingService`. It manages bank directories and coordinates the directory
 * store, the credential cipher, the session cache and the upstream banking API.
 *
 * @notes
 * - Every operation receives the id of the authenticated user explicitly; nothing
 *   is read from request-scoped globals.
 * - Plaintext credentials never leave this package.
 */
package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/domain"
	"github.com/Qompa-Fi/banking-service/internal/store"
)

// BankingAPI is the part of the upstream client used for banking data.
type BankingAPI interface {
	LoginAPI
	Logout(ctx context.Context, key string) (bool, error)
	SelectClient(ctx context.Context, key, client string) (string, error)
	ListAccounts(ctx context.Context, key string) ([]domain.Account, error)
	ListMovements(ctx context.Context, key string, q domain.MovementsQuery) ([]domain.Movement, error)
	ListInstitutions(ctx context.Context, key string) ([]domain.Institution, error)
	PreprocessTransfer(ctx context.Context, key string, in domain.PreprocessTransferInput) (*domain.TransferRequest, error)
	ConfirmTransfer(ctx context.Context, key string, in domain.ConfirmTransferInput) (*domain.TransferResult, error)
}

// UserDirectory confirms users exist before data is created for them.
type UserDirectory interface {
	ExistsByID(ctx context.Context, userID int64) (bool, error)
}

// ProviderLookup resolves provider descriptions.
type ProviderLookup interface {
	FindProvider(ctx context.Context, name string) (*domain.Provider, error)
	Providers(ctx context.Context) ([]domain.Provider, error)
}

// EventPublisher publishes directory lifecycle events.
type EventPublisher interface {
	PublishDirectoryEvent(ctx context.Context, event domain.DirectoryEvent) error
}

// CredentialSealer encrypts and decrypts stored credentials.
type CredentialSealer interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// Dependencies groups the collaborators of a BankingService.
type Dependencies struct {
	Directories store.DirectoryRepository
	Sessions    store.SessionCache
	API         BankingAPI
	Users       UserDirectory
	Providers   ProviderLookup
	Events      EventPublisher
	Credentials CredentialSealer
	SessionTTL  time.Duration
	Logger      zerolog.Logger
}

// BankingService provides the bank directory and banking data operations.
type BankingService struct {
	directories store.DirectoryRepository
	sessions    store.SessionCache
	api         BankingAPI
	users       UserDirectory
	providers   ProviderLookup
	events      EventPublisher
	credentials CredentialSealer
	sessionTTL  time.Duration
	login       *LoginOrchestrator
	validate    *structValidator
	logger      zerolog.Logger
	now         func() time.Time
}

// NewBankingService creates a new instance of BankingService.
func NewBankingService(deps Dependencies) *BankingService {
	logger := deps.Logger.With().Str("component", "banking_service").Logger()
	return &BankingService{
		directories: deps.Directories,
		sessions:    deps.Sessions,
		api:         deps.API,
		users:       deps.Users,
		providers:   deps.Providers,
		events:      deps.Events,
		credentials: deps.Credentials,
		sessionTTL:  deps.SessionTTL,
		login:       NewLoginOrchestrator(deps.API, deps.Logger),
		validate:    newStructValidator(),
		logger:      logger,
		now:         time.Now,
	}
}

// SetupDirectory validates and stores a new directory for userID.
func (s *BankingService) SetupDirectory(ctx context.Context, userID int64, input domain.SetupDirectoryInput) (*domain.Directory, error) {
	name, err := normalizeDirectoryName(input.Name)
	if err != nil {
		return nil, err
	}

	providerName := strings.TrimSpace(input.ProviderName)
	if err := validateProviderName(providerName); err != nil {
		return nil, err
	}
	provider, err := s.providers.FindProvider(ctx, providerName)
	if err != nil {
		return nil, translateUpstream(s.logger, "find_provider", err)
	}
	if err := validateCredentials(provider, input.Credentials); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to check user existence")
		return nil, ErrSomethingWentWrong
	}
	if !exists {
		return nil, ErrIssuerNotFound
	}

	plaintext, err := json.Marshal(input.Credentials)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode credentials")
		return nil, ErrSomethingWentWrong
	}
	sealed, err := s.credentials.Encrypt(plaintext)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encrypt credentials")
		return nil, ErrSomethingWentWrong
	}

	directory, err := s.directories.CreateDirectory(ctx, &domain.Directory{
		UserID:               userID,
		Name:                 name,
		ProviderName:         provider.Name,
		EncryptedCredentials: sealed,
	})
	if err != nil {
		return nil, translateUpstream(s.logger, "create_directory", err)
	}

	s.publish(ctx, domain.DirectoryCreatedRoutingKey, directory)
	return directory, nil
}

// RenameDirectory replaces the name of a directory. A nil or empty name clears it.
func (s *BankingService) RenameDirectory(ctx context.Context, userID int64, directoryID uuid.UUID, name *string) (*domain.Directory, error) {
	normalized, err := normalizeDirectoryName(name)
	if err != nil {
		return nil, err
	}
	directory, err := s.directories.RenameDirectory(ctx, userID, directoryID, normalized)
	if err != nil {
		return nil, translateUpstream(s.logger, "rename_directory", err)
	}
	return directory, nil
}

// DeleteDirectory removes a directory of userID and forgets its cached session.
func (s *BankingService) DeleteDirectory(ctx context.Context, userID int64, directoryID uuid.UUID) error {
	directory, err := s.directories.FindDirectory(ctx, userID, directoryID)
	if err != nil {
		return translateUpstream(s.logger, "find_directory", err)
	}
	if err := s.directories.DeleteDirectory(ctx, userID, directoryID); err != nil {
		return translateUpstream(s.logger, "delete_directory", err)
	}

	s.sessions.Delete(ctx, userID, directoryID)
	s.publish(ctx, domain.DirectoryDeletedRoutingKey, directory)
	return nil
}

// ListDirectories returns the directories of userID.
func (s *BankingService) ListDirectories(ctx context.Context, userID int64) ([]domain.Directory, error) {
	directories, err := s.directories.ListDirectories(ctx, userID)
	if err != nil {
		return nil, translateUpstream(s.logger, "list_directories", err)
	}
	return directories, nil
}

// CountDirectories returns how many directories userID owns.
func (s *BankingService) CountDirectories(ctx context.Context, userID int64) (int, error) {
	count, err := s.directories.CountDirectories(ctx, userID)
	if err != nil {
		return 0, translateUpstream(s.logger, "count_directories", err)
	}
	return count, nil
}

// PurgeUserDirectories removes every directory of a deleted user.
func (s *BankingService) PurgeUserDirectories(ctx context.Context, userID int64) (int64, error) {
	directories, err := s.directories.ListDirectories(ctx, userID)
	if err != nil {
		return 0, err
	}
	deleted, err := s.directories.DeleteDirectoriesByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, d := range directories {
		s.sessions.Delete(ctx, userID, d.ID)
	}
	return deleted, nil
}

// ListCatalog returns the providers directories can be created for.
func (s *BankingService) ListCatalog(ctx context.Context) ([]domain.Provider, error) {
	providers, err := s.providers.Providers(ctx)
	if err != nil {
		return nil, translateUpstream(s.logger, "list_catalog", err)
	}
	return providers, nil
}

func (s *BankingService) publish(ctx context.Context, eventType string, directory *domain.Directory) {
	if s.events == nil {
		return
	}
	event := domain.DirectoryEvent{
		Type:         eventType,
		DirectoryID:  directory.ID,
		UserID:       directory.UserID,
		ProviderName: directory.ProviderName,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.events.PublishDirectoryEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("directory_id", directory.ID.String()).Msg("failed to publish directory event")
	}
}

func (s *BankingService) decryptCredentials(directory *domain.Directory) (domain.Credentials, error) {
	var creds domain.Credentials
	plaintext, err := s.credentials.Decrypt(directory.EncryptedCredentials)
	if err != nil {
		s.logger.Error().Str("directory_id", directory.ID.String()).Msg("stored credentials could not be decrypted")
		return creds, ErrSomethingWentWrong
	}
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		s.logger.Error().Str("directory_id", directory.ID.String()).Msg("stored credentials are malformed")
		return creds, ErrSomethingWentWrong
	}
	return creds, nil
}
