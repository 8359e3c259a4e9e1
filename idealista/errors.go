package idealista

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrNoCredentials is returned by Token when no key/secret pair was loaded.
	ErrNoCredentials = errors.New("idealista: no credentials")
	// ErrTokenDecode indicates the OAuth response body was not valid JSON.
	ErrTokenDecode = errors.New("idealista: error decoding token response")
	// ErrTokenMissing indicates the OAuth response carried no access_token.
	ErrTokenMissing = errors.New("idealista: token response has no access_token")
	// ErrListingsDecode indicates a search page body was not valid JSON.
	ErrListingsDecode = errors.New("idealista: error decoding search response")
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrStatus records a non-2xx status. It only feeds diagnostics and metric
// labels; response bodies are still decoded.
type ErrStatus struct {
	StatusCode int
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	if errors.Is(err, ErrTokenDecode) || errors.Is(err, ErrListingsDecode) {
		return "decode"
	}
	if errors.Is(err, ErrTokenMissing) {
		return "token_missing"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusUnauthorized:
			return "unauthorized"
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		if status.StatusCode >= http.StatusInternalServerError {
			return "server_error"
		}
		return "client_error"
	}
	return "other"
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if err == nil && statusCode >= http.StatusBadRequest {
		return ErrStatus{StatusCode: statusCode}
	}
	return err
}
