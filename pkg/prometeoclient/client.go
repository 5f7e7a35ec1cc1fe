/**
 * @description
 * This package provides a client for the Prometeo banking aggregation API. It wraps
 * every endpoint the banking-service needs behind typed methods and a single retry
 * wrapper.
 *
 * Key features:
 * - Authenticates every call with the X-API-Key header; session keys travel as the
 *   `key` query parameter.
 * - Repeats requests answered with 502 using exponential backoff and reports
 *   ErrDeadlineExceeded once the attempts run out. Other statuses are never retried.
 * - Converts status:"error" bodies into typed errors.
 *
 * @dependencies
 * - github.com/rs/zerolog: Structured logging of upstream failures.
 * - The service's internal domain package for the banking models.
 */
package prometeoclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

const maxResponseBytes = 4 << 20

// Login statuses reported by the upstream.
const (
	StatusLoggedIn            = "logged_in"
	StatusSelectClient        = "select_client"
	StatusInteractionRequired = "interaction_required"
	StatusWrongCredentials    = "wrong_credentials"
	StatusFailed              = "error"
	StatusSuccess             = "success"
	StatusLoggedOut           = "logged_out"

	FieldOTP               = "otp"
	FieldPersonalQuestions = "personal_questions"
)

// Client is a client for the Prometeo API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryPolicy
	sleep      Sleeper
	logger     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithSleeper replaces the wait between retries.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// NewClient creates a new Prometeo API client.
func NewClient(baseURL, apiKey string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:  DefaultRetryPolicy,
		sleep:  SleepContext,
		logger: logger.With().Str("component", "prometeo_client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoginRequest carries the credentials for a login attempt.
type LoginRequest struct {
	Provider       string
	Username       string
	Password       string
	Type           string
	DocumentNumber string
	OTP            string
}

// LoginResponse is the raw login outcome. Interpretation is left to the caller.
type LoginResponse struct {
	Status  string `json:"status"`
	Key     string `json:"key"`
	Field   string `json:"field"`
	Context string `json:"context"`
	Message string `json:"message"`
}

// Login opens a session. Non-2xx responses carrying a status are returned as is.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("provider", req.Provider)
	form.Set("username", req.Username)
	form.Set("password", req.Password)
	setIfPresent(form, "type", req.Type)
	setIfPresent(form, "otp", req.OTP)
	setIfPresent(form, "document_number", req.DocumentNumber)

	status, body, err := c.send(ctx, "login", c.retry, http.MethodPost, c.baseURL+"/login/", form)
	if err != nil {
		return nil, err
	}

	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Status == "" {
		return nil, c.undecodable("login", status, body)
	}
	// A session handed out with a failure status is not trusted.
	if !isSuccess(status) && (resp.Status == StatusLoggedIn || resp.Status == StatusSelectClient) {
		return nil, c.unexpectedStatus("login", status, body)
	}
	return &resp, nil
}

// Logout closes a session. It reports whether the upstream confirmed the logout.
func (c *Client) Logout(ctx context.Context, key string) (bool, error) {
	endpoint := c.baseURL + "/logout/?" + url.Values{"key": {key}}.Encode()
	var resp struct{}
	err := c.call(ctx, "logout", c.retry, http.MethodGet, endpoint, nil, StatusLoggedOut, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status != StatusFailed {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListAccounts returns the accounts visible to the session.
func (c *Client) ListAccounts(ctx context.Context, key string) ([]domain.Account, error) {
	endpoint := c.baseURL + "/account/?" + url.Values{"key": {key}}.Encode()
	var resp struct {
		Accounts []domain.Account `json:"accounts"`
	}
	if err := c.call(ctx, "list_accounts", c.retry, http.MethodGet, endpoint, nil, StatusSuccess, &resp); err != nil {
		return nil, err
	}
	if resp.Accounts == nil {
		return []domain.Account{}, nil
	}
	return resp.Accounts, nil
}

// ListMovements returns the movements of one account within a date range.
func (c *Client) ListMovements(ctx context.Context, key string, q domain.MovementsQuery) ([]domain.Movement, error) {
	params := url.Values{
		"key":        {key},
		"currency":   {q.Currency},
		"date_start": {q.StartDate},
		"date_end":   {q.EndDate},
	}
	endpoint := fmt.Sprintf("%s/account/%s/movement/?%s", c.baseURL, url.PathEscape(q.AccountNumber), params.Encode())
	var resp struct {
		Movements []domain.Movement `json:"movements"`
	}
	if err := c.call(ctx, "list_movements", c.retry, http.MethodGet, endpoint, nil, StatusSuccess, &resp); err != nil {
		return nil, err
	}
	if resp.Movements == nil {
		return []domain.Movement{}, nil
	}
	return resp.Movements, nil
}

// GetClients lists the clients a corporate session may select, ordered by id.
func (c *Client) GetClients(ctx context.Context, key string) ([]domain.Client, error) {
	endpoint := c.baseURL + "/client/?" + url.Values{"key": {key}}.Encode()
	var resp struct {
		Clients map[string]string `json:"clients"`
	}
	if err := c.call(ctx, "get_clients", c.retry, http.MethodGet, endpoint, nil, StatusSuccess, &resp); err != nil {
		return nil, err
	}

	clients := make([]domain.Client, 0, len(resp.Clients))
	for id, name := range resp.Clients {
		clients = append(clients, domain.Client{ID: id, Name: name})
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

// SelectClient binds the session to client. Some providers rotate the key; the
// returned key is the one to keep using (the input key when none is returned).
func (c *Client) SelectClient(ctx context.Context, key, client string) (string, error) {
	endpoint := fmt.Sprintf("%s/client/%s/?%s", c.baseURL, url.PathEscape(client), url.Values{"key": {key}}.Encode())
	var resp struct {
		Key string `json:"key"`
	}
	policy := c.retry.WithInitialBackoff(2 * c.retry.InitialBackoff)
	if err := c.call(ctx, "select_client", policy, http.MethodGet, endpoint, nil, StatusSuccess, &resp); err != nil {
		return "", err
	}
	if resp.Key != "" {
		return resp.Key, nil
	}
	return key, nil
}

// ListInstitutions lists the destination banks available for transfers.
func (c *Client) ListInstitutions(ctx context.Context, key string) ([]domain.Institution, error) {
	endpoint := c.baseURL + "/transfer/destinations?" + url.Values{"key": {key}}.Encode()
	var resp struct {
		Destinations []domain.Institution `json:"destinations"`
	}
	if err := c.call(ctx, "list_institutions", c.retry, http.MethodGet, endpoint, nil, StatusSuccess, &resp); err != nil {
		return nil, err
	}
	if resp.Destinations == nil {
		return []domain.Institution{}, nil
	}
	return resp.Destinations, nil
}

// PreprocessTransfer creates a transfer request that must then be confirmed.
func (c *Client) PreprocessTransfer(ctx context.Context, key string, in domain.PreprocessTransferInput) (*domain.TransferRequest, error) {
	form := url.Values{}
	form.Set("origin_account", in.OriginAccount)
	form.Set("destination_institution", strconv.Itoa(in.DestinationInstitution))
	form.Set("destination_account", in.DestinationAccount)
	form.Set("currency", in.Currency)
	form.Set("amount", strconv.FormatFloat(in.Amount, 'f', -1, 64))
	form.Set("concept", in.Concept)
	setIfPresent(form, "destination_owner_name", in.DestinationOwnerName)
	setIfPresent(form, "destination_account_type", in.DestinationAccountType)
	branch := ""
	if in.Branch != nil {
		branch = strconv.Itoa(*in.Branch)
	}
	form.Set("branch", branch)

	endpoint := c.baseURL + "/transfer/preprocess?" + url.Values{"key": {key}}.Encode()
	var resp struct {
		Result *domain.TransferRequest `json:"result"`
	}
	if err := c.call(ctx, "preprocess_transfer", c.retry, http.MethodPost, endpoint, form, StatusSuccess, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("preprocess_transfer: %w", ErrMalformedResponse)
	}
	return resp.Result, nil
}

// ConfirmTransfer authorizes a preprocessed transfer.
func (c *Client) ConfirmTransfer(ctx context.Context, key string, in domain.ConfirmTransferInput) (*domain.TransferResult, error) {
	form := url.Values{}
	form.Set("request_id", in.RequestID)
	form.Set("authorization_type", in.AuthorizationType)
	form.Set("authorization_data", in.AuthorizationData)
	setIfPresent(form, "authorization_device_number", in.AuthorizationDeviceNumber)

	endpoint := c.baseURL + "/transfer/confirm?" + url.Values{"key": {key}}.Encode()
	var resp struct {
		Transfer *domain.TransferResult `json:"transfer"`
	}
	if err := c.call(ctx, "confirm_transfer", c.retry, http.MethodPost, endpoint, form, StatusSuccess, &resp); err != nil {
		return nil, err
	}
	if resp.Transfer == nil {
		return nil, fmt.Errorf("confirm_transfer: %w", ErrMalformedResponse)
	}
	return resp.Transfer, nil
}

// ListProviders lists every provider the API key can see.
func (c *Client) ListProviders(ctx context.Context) ([]domain.ProviderSummary, error) {
	var resp struct {
		Providers []domain.ProviderSummary `json:"providers"`
	}
	if err := c.call(ctx, "list_providers", c.retry, http.MethodGet, c.baseURL+"/provider/", nil, StatusSuccess, &resp); err != nil {
		return nil, err
	}
	return resp.Providers, nil
}

// GetProvider returns the detailed description of one provider.
func (c *Client) GetProvider(ctx context.Context, code string) (*domain.Provider, error) {
	endpoint := fmt.Sprintf("%s/provider/%s/", c.baseURL, url.PathEscape(code))
	var resp struct {
		Provider *domain.Provider `json:"provider"`
	}
	if err := c.call(ctx, "get_provider", c.retry, http.MethodGet, endpoint, nil, StatusSuccess, &resp); err != nil {
		return nil, err
	}
	if resp.Provider == nil {
		return nil, fmt.Errorf("get_provider: %w", ErrMalformedResponse)
	}
	return resp.Provider, nil
}

// call sends a request and decodes a body whose status equals want into target.
func (c *Client) call(ctx context.Context, op string, policy RetryPolicy, method, endpoint string, form url.Values, want string, target interface{}) error {
	status, body, err := c.send(ctx, op, policy, method, endpoint, form)
	if err != nil {
		return err
	}

	var env struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Status == "" {
		return c.undecodable(op, status, body)
	}

	switch {
	case env.Status == want && !isSuccess(status):
		return c.unexpectedStatus(op, status, body)
	case env.Status == want:
		if err := json.Unmarshal(body, target); err != nil {
			c.logger.Error().Str("op", op).Err(err).Msg("failed to decode upstream payload")
			return fmt.Errorf("%s: %w", op, ErrMalformedResponse)
		}
		return nil
	case env.Status == StatusFailed:
		return classifyMessage(op, env.Message)
	default:
		return &APIError{Op: op, Status: env.Status, Message: env.Message}
	}
}

// send is the retry wrapper shared by every endpoint. It returns the status code
// and body of the first response that is not a 502.
func (c *Client) send(ctx context.Context, op string, policy RetryPolicy, method, endpoint string, form url.Values) (int, []byte, error) {
	attempts := policy.attempts()

	for attempt := 1; ; attempt++ {
		req, err := c.newRequest(ctx, method, endpoint, form)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: failed to create http request: %w", op, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, nil, ctxErr
			}
			c.logger.Error().Str("op", op).Err(err).Msg("upstream request failed")
			return 0, nil, fmt.Errorf("%s: http request failed: %w", op, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()

		if resp.StatusCode == http.StatusBadGateway {
			if attempt >= attempts {
				c.logger.Error().Str("op", op).Int("attempts", attempt).Msg("upstream kept answering 502; giving up")
				return 0, nil, fmt.Errorf("%s: %w", op, ErrDeadlineExceeded)
			}
			wait := policy.Delay(attempt)
			c.logger.Warn().Str("op", op).Int("attempt", attempt).Dur("backoff", wait).Msg("upstream answered 502; retrying")
			if err := c.sleep(ctx, wait); err != nil {
				return 0, nil, err
			}
			continue
		}

		if readErr != nil {
			return 0, nil, fmt.Errorf("%s: failed to read response body: %w", op, readErr)
		}
		if !isSuccess(resp.StatusCode) {
			c.logger.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("upstream returned non-success status")
		}
		return resp.StatusCode, body, nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, form url.Values) (*http.Request, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

// undecodable reports a body without a status discriminator.
func (c *Client) undecodable(op string, status int, body []byte) error {
	if !isSuccess(status) {
		return &StatusError{Op: op, StatusCode: status, Body: truncate(string(body), 512)}
	}
	c.logger.Error().Str("op", op).Int("status", status).Msg("upstream body has no status")
	return fmt.Errorf("%s: %w", op, ErrMalformedResponse)
}

// unexpectedStatus reports a non-2xx response whose body claims success.
func (c *Client) unexpectedStatus(op string, status int, body []byte) error {
	c.logger.Error().Str("op", op).Int("status", status).Msg("upstream reported success with a failure status")
	return &StatusError{Op: op, StatusCode: status, Body: truncate(string(body), 512)}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func setIfPresent(form url.Values, key, value string) {
	if value != "" {
		form.Set(key, value)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
