package gmail

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
)

var (
	ErrAuth     = errors.New("gmail: authentication failed")
	ErrQuota    = errors.New("gmail: quota exceeded")
	ErrNotFound = errors.New("gmail: not found")
	ErrServer   = errors.New("gmail: server error")
)

// ProviderError is returned by every Client call that reached the provider.
type ProviderError struct {
	Op        string
	Kind      error
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsFatal reports whether err must abort the current harvest run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrQuota)
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return err
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &ProviderError{Op: op, Kind: ErrServer, Err: err, Retryable: true}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return &ProviderError{Op: op, Kind: ErrAuth, Err: err}
		case 403:
			if isRateLimit(apiErr) {
				return &ProviderError{Op: op, Kind: ErrQuota, Err: err, Retryable: true}
			}
			return &ProviderError{Op: op, Kind: ErrAuth, Err: err}
		case 404:
			return &ProviderError{Op: op, Kind: ErrNotFound, Err: err}
		case 429:
			return &ProviderError{Op: op, Kind: ErrQuota, Err: err, Retryable: true}
		case 500, 502, 503, 504:
			return &ProviderError{Op: op, Kind: ErrServer, Err: err, Retryable: true}
		}
	}

	return &ProviderError{Op: op, Kind: ErrServer, Err: err, Retryable: true}
}

func isRateLimit(apiErr *googleapi.Error) bool {
	if strings.Contains(strings.ToLower(apiErr.Message), "rate limit") {
		return true
	}
	for _, item := range apiErr.Errors {
		reason := strings.ToLower(item.Reason)
		if strings.Contains(reason, "ratelimit") || strings.Contains(reason, "quota") {
			return true
		}
	}
	return false
}

// nonCircuitError carries client-side failures through the breaker without counting them.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}
