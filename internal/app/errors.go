package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/domain"
	"github.com/Qompa-Fi/banking-service/internal/store"
	"github.com/Qompa-Fi/banking-service/pkg/prometeoclient"
)

// Kind classifies service errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindUnauthenticated
	KindPermissionDenied
	KindFailedPrecondition
	KindDeadlineExceeded
	KindUnimplemented
)

// Error is an error that is safe to show to callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrSomethingWentWrong           = &Error{Kind: KindInternal, Code: "internal", Message: "something went wrong"}
	ErrDirectoryNotFound            = &Error{Kind: KindNotFound, Code: "directory_not_found", Message: "specified directory was not found"}
	ErrClientNotFound               = &Error{Kind: KindNotFound, Code: "client_not_found", Message: "specified client was not found"}
	ErrIssuerNotFound               = &Error{Kind: KindFailedPrecondition, Code: "user_not_found", Message: "you should create your user first"}
	ErrWrongCredentials             = &Error{Kind: KindUnauthenticated, Code: "wrong_credentials", Message: "the banking credentials are wrong"}
	ErrSessionInvalid               = &Error{Kind: KindUnauthenticated, Code: "session_invalid", Message: "banking session is invalid or expired"}
	ErrUnauthorizedProvider         = &Error{Kind: KindPermissionDenied, Code: "unauthorized_provider", Message: "the provider is not authorized"}
	ErrDeadlineExceeded             = &Error{Kind: KindDeadlineExceeded, Code: "deadline_exceeded", Message: "the bank did not respond in time, please try again later"}
	ErrPersonalQuestionsUnsupported = &Error{Kind: KindUnimplemented, Code: "unimplemented", Message: "logins that require answering personal questions are not supported yet"}

	ErrNameTooShort = invalidArgument("name must be more than 4 characters long")
	ErrNameTooLong  = invalidArgument("name must be less or equal than 90 characters long")
)

func invalidArgument(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgument, Code: "invalid_argument", Message: fmt.Sprintf(format, args...)}
}

// InteractionRequiredError is returned when a session cannot be opened without
// further input from the user.
type InteractionRequiredError struct {
	Requires domain.SessionRequirement
	Clients  []domain.Client
}

func (e *InteractionRequiredError) Error() string {
	return fmt.Sprintf("banking session requires user interaction: %s", e.Requires)
}

// translateUpstream converts a client or store error into a service error.
// Errors that are already service errors pass through unchanged; anything
// unclassified is logged and hidden behind ErrSomethingWentWrong.
func translateUpstream(logger zerolog.Logger, op string, err error) error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	var interactionErr *InteractionRequiredError
	switch {
	case errors.As(err, &svcErr), errors.As(err, &interactionErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrDirectoryNotFound):
		return ErrDirectoryNotFound
	case errors.Is(err, prometeoclient.ErrInvalidSessionKey):
		return ErrSessionInvalid
	case errors.Is(err, prometeoclient.ErrDeadlineExceeded):
		return ErrDeadlineExceeded
	case errors.Is(err, prometeoclient.ErrUnauthorizedProvider):
		return ErrUnauthorizedProvider
	case errors.Is(err, prometeoclient.ErrWrongClient):
		return ErrClientNotFound
	}

	logger.Error().Err(err).Str("op", op).Msg("unclassified failure")
	return ErrSomethingWentWrong
}
