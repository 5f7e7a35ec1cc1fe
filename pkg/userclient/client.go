/**
 * @description
 * This file provides a client for the users-service, used to confirm that the
 * issuer of a request has a user record before any directory is created for them.
 */
package userclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client checks user existence against the users-service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new users-service client.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "user_client").Logger(),
	}
}

// ExistsByID reports whether the users-service knows userID.
func (c *Client) ExistsByID(ctx context.Context, userID int64) (bool, error) {
	url := fmt.Sprintf("%s/internal/users/%d", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to call users-service")
		return false, fmt.Errorf("failed to call users-service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		c.logger.Warn().Int("status", resp.StatusCode).Int64("user_id", userID).Msg("users-service returned unexpected status")
		return false, fmt.Errorf("users-service returned status %d", resp.StatusCode)
	}
}
