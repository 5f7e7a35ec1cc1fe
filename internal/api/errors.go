package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/app"
	"github.com/Qompa-Fi/banking-service/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code     string                    `json:"code"`
	Message  string                    `json:"message"`
	Requires domain.SessionRequirement `json:"requires,omitempty"`
	Clients  []domain.Client           `json:"clients,omitempty"`
}

var kindStatus = map[app.Kind]int{
	app.KindInternal:           http.StatusInternalServerError,
	app.KindInvalidArgument:    http.StatusBadRequest,
	app.KindNotFound:           http.StatusNotFound,
	app.KindUnauthenticated:    http.StatusUnauthorized,
	app.KindPermissionDenied:   http.StatusForbidden,
	app.KindFailedPrecondition: http.StatusConflict,
	app.KindDeadlineExceeded:   http.StatusGatewayTimeout,
	app.KindUnimplemented:      http.StatusNotImplemented,
}

// writeError maps a service error to its HTTP status and body. Errors the
// service did not classify are logged and reported as a generic failure.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var (
		svcErr         *app.Error
		interactionErr *app.InteractionRequiredError
	)

	switch {
	case errors.As(err, &interactionErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Code:     "interaction_required",
			Message:  interactionErr.Error(),
			Requires: interactionErr.Requires,
			Clients:  interactionErr.Clients,
		})
		return

	case errors.As(err, &svcErr):
		status, ok := kindStatus[svcErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, ErrorResponse{Code: svcErr.Code, Message: svcErr.Message})
		return

	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Code: app.ErrDeadlineExceeded.Code, Message: app.ErrDeadlineExceeded.Message})
		return
	}

	logger.Error().Err(err).Msg("unhandled error")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: app.ErrSomethingWentWrong.Code, Message: app.ErrSomethingWentWrong.Message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: "invalid_argument", Message: message})
}
