package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

// ListAccounts returns the bank accounts reachable through a directory.
func (s *BankingService) ListAccounts(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string) ([]domain.Account, error) {
	var accounts []domain.Account
	err := s.withSession(ctx, userID, directoryID, sessionKey, "list_accounts", func(key string) error {
		var err error
		accounts, err = s.api.ListAccounts(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListMovements returns the movements of one account of a directory.
func (s *BankingService) ListMovements(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string, query domain.MovementsQuery) ([]domain.Movement, error) {
	if err := s.validate.Struct(query); err != nil {
		return nil, err
	}

	var movements []domain.Movement
	err := s.withSession(ctx, userID, directoryID, sessionKey, "list_movements", func(key string) error {
		var err error
		movements, err = s.api.ListMovements(ctx, key, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// ListInstitutions returns the destination banks available for transfers.
func (s *BankingService) ListInstitutions(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string) ([]domain.Institution, error) {
	var institutions []domain.Institution
	err := s.withSession(ctx, userID, directoryID, sessionKey, "list_institutions", func(key string) error {
		var err error
		institutions, err = s.api.ListInstitutions(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return institutions, nil
}

// RequestTransfer preprocesses a transfer and returns the request to confirm.
func (s *BankingService) RequestTransfer(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string, input domain.PreprocessTransferInput) (*domain.TransferRequest, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	var request *domain.TransferRequest
	err := s.withSession(ctx, userID, directoryID, sessionKey, "preprocess_transfer", func(key string) error {
		var err error
		request, err = s.api.PreprocessTransfer(ctx, key, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ConfirmTransfer authorizes a transfer created by RequestTransfer.
func (s *BankingService) ConfirmTransfer(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string, input domain.ConfirmTransferInput) (*domain.TransferResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	var result *domain.TransferResult
	err := s.withSession(ctx, userID, directoryID, sessionKey, "confirm_transfer", func(key string) error {
		var err error
		result, err = s.api.ConfirmTransfer(ctx, key, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
