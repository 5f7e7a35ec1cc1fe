/**
 * @description
 * This file defines the HTTP handlers for the banking-service's API endpoints.
 * Handlers are responsible for parsing requests, calling the appropriate service
 * method, and writing the response.
 *
 * @dependencies
 * - Chi router for URL parameter handling.
 * - github.com/google/uuid for directory ids.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/domain"
	"github.com/Qompa-Fi/banking-service/pkg/middleware"
)

// SessionKeyHeader lets callers reuse an upstream session they already hold.
const SessionKeyHeader = "X-Prometeo-Session-Key"

const maxBodyBytes = 1 << 20

// BankingService is the application surface the handlers call.
type BankingService interface {
	SetupDirectory(ctx context.Context, userID int64, input domain.SetupDirectoryInput) (*domain.Directory, error)
	RenameDirectory(ctx context.Context, userID int64, directoryID uuid.UUID, name *string) (*domain.Directory, error)
	DeleteDirectory(ctx context.Context, userID int64, directoryID uuid.UUID) error
	ListDirectories(ctx context.Context, userID int64) ([]domain.Directory, error)
	CountDirectories(ctx context.Context, userID int64) (int, error)

	ListAccounts(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string) ([]domain.Account, error)
	ListMovements(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string, query domain.MovementsQuery) ([]domain.Movement, error)
	ListInstitutions(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string) ([]domain.Institution, error)
	RequestTransfer(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string, input domain.PreprocessTransferInput) (*domain.TransferRequest, error)
	ConfirmTransfer(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string, input domain.ConfirmTransferInput) (*domain.TransferResult, error)

	OpenSession(ctx context.Context, userID int64, directoryID uuid.UUID, otp string) (*domain.Session, error)
	SelectClient(ctx context.Context, userID int64, directoryID uuid.UUID, key, clientID string) (*domain.Session, error)
	CloseSession(ctx context.Context, userID int64, directoryID uuid.UUID, key string) error

	ListCatalog(ctx context.Context) ([]domain.Provider, error)
}

// Handler holds the dependencies for the banking handlers.
type Handler struct {
	service BankingService
	logger  zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(service BankingService, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// RenameDirectoryRequest is the body of PATCH /banking/directory/{id}.
type RenameDirectoryRequest struct {
	Name *string `json:"name"`
}

// OpenSessionRequest is the optional body of POST /banking/directory/{id}/session.
type OpenSessionRequest struct {
	OTP string `json:"otp"`
}

// SelectClientRequest is the body of POST /banking/directory/{id}/session/client.
type SelectClientRequest struct {
	Client string `json:"client"`
}

// CountResponse is the body of GET /banking/directory/count.
type CountResponse struct {
	Count int `json:"count"`
}

func (h *Handler) SetupDirectory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var input domain.SetupDirectoryInput
	if !decodeBody(w, r, &input, false) {
		return
	}

	directory, err := h.service.SetupDirectory(r.Context(), userID, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, directory)
}

func (h *Handler) ListDirectories(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	directories, err := h.service.ListDirectories(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, directories)
}

func (h *Handler) CountDirectories(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	count, err := h.service.CountDirectories(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: count})
}

func (h *Handler) RenameDirectory(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	var req RenameDirectoryRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	directory, err := h.service.RenameDirectory(r.Context(), userID, directoryID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, directory)
}

func (h *Handler) DeleteDirectory(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDirectory(r.Context(), userID, directoryID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), userID, directoryID, sessionKey(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	query := domain.MovementsQuery{
		AccountNumber: chi.URLParam(r, "account_number"),
		Currency:      q.Get("currency"),
		StartDate:     q.Get("start_date"),
		EndDate:       q.Get("end_date"),
	}

	movements, err := h.service.ListMovements(r.Context(), userID, directoryID, sessionKey(r), query)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

func (h *Handler) ListInstitutions(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	institutions, err := h.service.ListInstitutions(r.Context(), userID, directoryID, sessionKey(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, institutions)
}

func (h *Handler) RequestTransfer(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	var input domain.PreprocessTransferInput
	if !decodeBody(w, r, &input, false) {
		return
	}

	request, err := h.service.RequestTransfer(r.Context(), userID, directoryID, sessionKey(r), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *Handler) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	var input domain.ConfirmTransferInput
	if !decodeBody(w, r, &input, false) {
		return
	}

	result, err := h.service.ConfirmTransfer(r.Context(), userID, directoryID, sessionKey(r), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	var req OpenSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	session, err := h.service.OpenSession(r.Context(), userID, directoryID, strings.TrimSpace(req.OTP))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) SelectClient(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	var req SelectClientRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	session, err := h.service.SelectClient(r.Context(), userID, directoryID, sessionKey(r), strings.TrimSpace(req.Client))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	userID, directoryID, ok := h.directoryRequest(w, r)
	if !ok {
		return
	}
	if err := h.service.CloseSession(r.Context(), userID, directoryID, sessionKey(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.ListCatalog(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Code: "unauthenticated", Message: "Unauthorized"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) directoryRequest(w http.ResponseWriter, r *http.Request) (int64, uuid.UUID, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return 0, uuid.Nil, false
	}
	directoryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "directory id must be a valid uuid")
		return 0, uuid.Nil, false
	}
	return userID, directoryID, true
}

func sessionKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionKeyHeader))
}

// decodeBody decodes a JSON body into dst. An empty body is accepted only when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeBadRequest(w, "Invalid request body")
	return false
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}
