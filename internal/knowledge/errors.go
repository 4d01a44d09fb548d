package knowledge

import (
	"context"
	"errors"
	"fmt"
)

// Pipeline errors. Adapters wrap the underlying cause together with one of
// these so callers can branch with errors.Is.
var (
	ErrQueryValidation = errors.New("invalid query")
	ErrEmptyQuery      = fmt.Errorf("%w: query is empty", ErrQueryValidation)
	ErrQueryTooLong    = fmt.Errorf("%w: query is too long", ErrQueryValidation)

	ErrIndexUnavailable = errors.New("vector index unavailable")
	ErrEmbedding        = errors.New("query embedding failed")

	ErrLLMTimeout     = errors.New("llm request timed out")
	ErrLLMRateLimited = errors.New("llm rate limited")
	ErrLLMAuth        = errors.New("llm authentication failed")
	ErrLLMService     = errors.New("llm service error")

	ErrConfiguration = errors.New("invalid configuration")
)

// ErrorKind returns a short stable label for err, used in logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQueryValidation):
		return "query_validation"
	case errors.Is(err, ErrIndexUnavailable):
		return "index_unavailable"
	case errors.Is(err, ErrEmbedding):
		return "embedding"
	case errors.Is(err, ErrLLMTimeout):
		return "llm_timeout"
	case errors.Is(err, ErrLLMRateLimited):
		return "llm_rate_limited"
	case errors.Is(err, ErrLLMAuth):
		return "llm_auth"
	case errors.Is(err, ErrLLMService):
		return "llm_service"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "internal"
	}
}
