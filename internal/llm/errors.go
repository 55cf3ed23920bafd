package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProviderUnavailable marks a missing credential, unknown provider or
	// rejected API key. Never retried.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrRequestFailed marks a network or provider-side failure.
	ErrRequestFailed = errors.New("request failed")
	// ErrMalformedResponse marks a response that is not valid JSON.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrSchemaViolation marks JSON that parsed but does not satisfy the
	// requested schema.
	ErrSchemaViolation = errors.New("schema violation")
)

// Wrap builds an error that carries the provider and operation context while
// staying matchable against marker with errors.Is.
func Wrap(marker error, provider, operation, message string, err error) error {
	detail := buildDetail(provider, operation, message)
	if marker == nil {
		marker = ErrRequestFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the error class, for logs and CLI output.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrRequestFailed):
		return "request_failed"
	default:
		return "error"
	}
}

func buildDetail(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "llm failure"
	}
	return strings.Join(kept, ": ")
}
