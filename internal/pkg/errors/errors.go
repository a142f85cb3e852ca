package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")

	// request pipeline taxonomy
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrCacheUnavailable     = errors.New("cache unavailable")
	ErrDeadlineExceeded     = errors.New("request deadline exceeded")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable reports whether the caller may usefully retry the whole
// request. Exhausted generation retries and unavailable retrieval both
// qualify; invalid input does not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetrievalUnavailable) || errors.Is(err, ErrGenerationFailed)
}
