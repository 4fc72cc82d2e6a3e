package llm

import (
	"context"
	"errors"

	"github.com/taskpilot/taskpilot/types"
)

// Failure taxonomy for provider calls. Transient failures are worth retrying
// with backoff; ErrUnauthorized is permanent and must fail fast.
var (
	ErrRateLimited  = errors.New("llm: rate limited")
	ErrUnavailable  = errors.New("llm: provider unavailable")
	ErrTimeout      = errors.New("llm: request timed out")
	ErrConnection   = errors.New("llm: connection failed")
	ErrUnauthorized = errors.New("llm: invalid credentials")
)

type Capabilities struct {
	Tools            bool
	Streaming        bool
	StructuredOutput bool
}

type Provider interface {
	Name() string
	Capabilities() Capabilities
	Generate(ctx context.Context, req types.Request) (types.Response, error)
}

// Transient reports whether err is a provider failure that may resolve on
// retry: rate limiting, generic unavailability, timeouts, and connection
// errors. Context cancellation is not transient; the caller is going away.
func Transient(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrConnection):
		return true
	}
	return false
}

// Unauthorized reports whether err is a permanent credential failure.
func Unauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
