package prometeoclient

import (
	"errors"
	"fmt"
)

var (
	// ErrDeadlineExceeded is returned once every allowed attempt answered 502.
	ErrDeadlineExceeded = errors.New("upstream did not respond successfully before the retry limit")
	// ErrInvalidSessionKey means the session key is unknown or expired upstream.
	ErrInvalidSessionKey = errors.New("upstream session key is invalid or expired")
	// ErrAPIKeyRejected means the configured API key is missing or unknown.
	ErrAPIKeyRejected = errors.New("upstream rejected the configured api key")
	// ErrWrongClient means the selected client does not belong to the session.
	ErrWrongClient = errors.New("upstream rejected the selected client")
	// ErrUnauthorizedProvider means the API key may not use the requested provider.
	ErrUnauthorizedProvider = errors.New("upstream provider is not authorized")
	// ErrMalformedResponse means a response body could not be decoded.
	ErrMalformedResponse = errors.New("upstream returned a malformed response")
)

// StatusError is a non-2xx response whose body carries no business outcome.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream returned status %d", e.Op, e.StatusCode)
}

// APIError is a business error reported by the upstream that has no dedicated sentinel.
type APIError struct {
	Op      string
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: upstream status %q", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: upstream status %q: %s", e.Op, e.Status, e.Message)
}

// classifyMessage maps a status:"error" message to a typed error.
func classifyMessage(op, message string) error {
	switch message {
	case "Invalid key":
		return fmt.Errorf("%s: %w", op, ErrInvalidSessionKey)
	case "Missing API key", "Key not Found":
		return fmt.Errorf("%s: %w", op, ErrAPIKeyRejected)
	case "wrong_client":
		return fmt.Errorf("%s: %w", op, ErrWrongClient)
	case "Unauthorized provider":
		return fmt.Errorf("%s: %w", op, ErrUnauthorizedProvider)
	}
	return &APIError{Op: op, Status: "error", Message: message}
}
