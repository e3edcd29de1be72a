package ai

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure mode of an AI call. Callers
// match them with errors.Is; the messages are the user-facing descriptions.
var (
	// ErrNotConfigured means no usable credential or endpoint is set up.
	// Never retried.
	ErrNotConfigured = errors.New("ai features are not configured")

	// ErrRateLimited means the provider throttled the request and backoff
	// retries were exhausted. Batch callers halt on it instead of burning
	// through remaining items.
	ErrRateLimited = errors.New("rate limited by the ai service, try again later")

	// ErrNetwork covers timeouts, connection failures, and provider 5xx
	// responses after retries were exhausted.
	ErrNetwork = errors.New("network problem talking to the ai service")

	// ErrMalformedResponse means the model's output could not be parsed
	// into the expected shape. Never retried: the prompt, not the
	// transport, is at fault.
	ErrMalformedResponse = errors.New("couldn't understand the ai response")
)

// Retryable reports whether err is worth another attempt. Configuration
// and parse failures are terminal; everything else (network, provider
// errors, rate limits) may clear up.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return true
}

// MalformedResponse wraps a parse failure with ErrMalformedResponse so the
// taxonomy survives error wrapping.
func MalformedResponse(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
