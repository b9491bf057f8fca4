package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

// classifyHTTPStatus maps a provider's HTTP response status to the shared
// error taxonomy. retryAfter is the provider's advised delay, if any (0 if
// none was given).
func classifyHTTPStatus(provider string, status int, retryAfter time.Duration, cause error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &ocrerrors.RateLimitError{Provider: provider, RetryAfter: retryAfter, Err: cause}
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		return errJoin(ocrerrors.ErrProviderOverloaded, cause)
	case status >= 500:
		return errJoin(ocrerrors.ErrProviderTransient, cause)
	case status == http.StatusRequestTimeout:
		return errJoin(ocrerrors.ErrProviderTransient, cause)
	case status >= 400:
		return errJoin(ocrerrors.ErrProviderFatal, cause)
	default:
		return cause
	}
}

// classifyTransportError maps a non-HTTP failure (network error, context
// deadline) to the taxonomy. Timeouts and cancellations surface as
// Transient so the Unified Processor retries them like any other
// transient fault.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errJoin(ocrerrors.ErrProviderTransient, err)
	}
	return errJoin(ocrerrors.ErrProviderTransient, err)
}

func errJoin(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}
