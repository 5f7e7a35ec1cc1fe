package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

// acquireSession returns a usable upstream session key for a directory.
//
// A caller supplied key wins once the directory is confirmed to belong to
// userID. Otherwise the cached key is used, and on a miss the
// stored credentials are decrypted and a fresh login is performed. Only sessions
// that need nothing further are cached; any other outcome is reported as an
// *InteractionRequiredError.
func (s *BankingService) acquireSession(ctx context.Context, userID int64, directoryID uuid.UUID, suppliedKey string) (string, error) {
	if suppliedKey != "" {
		if err := validateSessionKey(suppliedKey); err != nil {
			return "", err
		}
		if _, err := s.directories.FindDirectory(ctx, userID, directoryID); err != nil {
			return "", translateUpstream(s.logger, "find_directory", err)
		}
		return suppliedKey, nil
	}

	if key, ok := s.sessions.Get(ctx, userID, directoryID); ok {
		return key, nil
	}

	session, err := s.loginDirectory(ctx, userID, directoryID, "")
	if err != nil {
		return "", err
	}
	if !session.Ready() {
		return "", &InteractionRequiredError{Requires: session.Requires, Clients: session.Clients}
	}
	return session.Key, nil
}

// withSession runs fn with a session key for the directory. A key that the
// upstream rejects is evicted from the cache so the next call logs in again.
func (s *BankingService) withSession(ctx context.Context, userID int64, directoryID uuid.UUID, suppliedKey, op string, fn func(key string) error) error {
	key, err := s.acquireSession(ctx, userID, directoryID, suppliedKey)
	if err != nil {
		return err
	}

	err = translateUpstream(s.logger, op, fn(key))
	if errors.Is(err, ErrSessionInvalid) && suppliedKey == "" {
		s.sessions.Delete(ctx, userID, directoryID)
	}
	return err
}

// loginDirectory performs a login with the stored credentials of a directory and
// caches the key when the session is ready.
func (s *BankingService) loginDirectory(ctx context.Context, userID int64, directoryID uuid.UUID, otp string) (*domain.Session, error) {
	directory, err := s.directories.FindDirectory(ctx, userID, directoryID)
	if err != nil {
		return nil, translateUpstream(s.logger, "find_directory", err)
	}
	creds, err := s.decryptCredentials(directory)
	if err != nil {
		return nil, err
	}

	session, err := s.login.Login(ctx, directory.ProviderName, creds, otp)
	if err != nil {
		return nil, err
	}
	if session.Ready() {
		s.sessions.Put(ctx, userID, directoryID, session.Key, s.sessionTTL)
	}
	return session, nil
}

// OpenSession logs into the bank of a directory and reports what the session
// still requires. otp answers a previous otp_code requirement.
func (s *BankingService) OpenSession(ctx context.Context, userID int64, directoryID uuid.UUID, otp string) (*domain.Session, error) {
	return s.loginDirectory(ctx, userID, directoryID, otp)
}

// SelectClient binds a session waiting on specify_client to one of its clients
// and caches the resulting key.
func (s *BankingService) SelectClient(ctx context.Context, userID int64, directoryID uuid.UUID, key, clientID string) (*domain.Session, error) {
	if err := validateSessionKey(key); err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, invalidArgument("client is required")
	}
	if _, err := s.directories.FindDirectory(ctx, userID, directoryID); err != nil {
		return nil, translateUpstream(s.logger, "find_directory", err)
	}

	clients, err := s.api.GetClients(ctx, key)
	if err != nil {
		return nil, translateUpstream(s.logger, "get_clients", err)
	}
	if !hasClient(clients, clientID) {
		return nil, ErrClientNotFound
	}

	newKey, err := s.api.SelectClient(ctx, key, clientID)
	if err != nil {
		return nil, translateUpstream(s.logger, "select_client", err)
	}
	s.sessions.Put(ctx, userID, directoryID, newKey, s.sessionTTL)
	return &domain.Session{Key: newKey, Requires: domain.RequiresNothing}, nil
}

// CloseSession logs the directory session out upstream and forgets it locally.
// Without a supplied key the cached one is used; having none is not an error.
func (s *BankingService) CloseSession(ctx context.Context, userID int64, directoryID uuid.UUID, suppliedKey string) error {
	if _, err := s.directories.FindDirectory(ctx, userID, directoryID); err != nil {
		return translateUpstream(s.logger, "find_directory", err)
	}

	key := suppliedKey
	if key != "" {
		if err := validateSessionKey(key); err != nil {
			return err
		}
	} else if cached, ok := s.sessions.Get(ctx, userID, directoryID); ok {
		key = cached
	}
	s.sessions.Delete(ctx, userID, directoryID)
	if key == "" {
		return nil
	}

	loggedOut, err := s.api.Logout(ctx, key)
	if err != nil {
		err = translateUpstream(s.logger, "logout", err)
		if errors.Is(err, ErrSessionInvalid) {
			return nil
		}
		return err
	}
	if !loggedOut {
		s.logger.Warn().Str("directory_id", directoryID.String()).Msg("upstream did not confirm logout")
	}
	return nil
}

func hasClient(clients []domain.Client, id string) bool {
	for _, c := range clients {
		if c.ID == id {
			return true
		}
	}
	return false
}
