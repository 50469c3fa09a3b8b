package backend

import (
	"errors"
	"fmt"

	"github.com/examind/examind-cli/internal/api"
)

// Sentinel errors for platform failure modes the session controller reacts to.
var (
	ErrTestNotFound     = errors.New("test not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptCompleted = errors.New("attempt already completed")
	ErrAttemptExpired   = errors.New("attempt time window elapsed")
	ErrUnauthorized     = errors.New("authentication rejected")
)

// APIError wraps a structured platform error so callers can still reach the
// raw code and message after sentinel matching via errors.Is.
type APIError struct {
	Code    api.ErrCode
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform error %s (http %d): %s", e.Code, e.Status, e.Message)
}

// Is maps platform error codes onto the sentinel errors above.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTestNotFound:
		return e.Code == api.ErrTestNotFound
	case ErrAttemptNotFound:
		return e.Code == api.ErrAttemptNotFound
	case ErrAttemptCompleted:
		return e.Code == api.ErrAttemptCompleted
	case ErrAttemptExpired:
		return e.Code == api.ErrAttemptExpired
	case ErrUnauthorized:
		return e.Code == api.ErrTokenRequired || e.Code == api.ErrTokenInvalid || e.Code == api.ErrTokenExpired
	}
	return false
}
