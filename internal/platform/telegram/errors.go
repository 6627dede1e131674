package telegram

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoJoinRequest means there is no pending join request to approve. The
// grant cannot succeed on retry; callers fall back to the invite-link path.
var ErrNoJoinRequest = errors.New("telegram: no pending join request")

// ForbiddenError covers revoked permissions: the user blocked the bot or the
// bot lost its admin rights. Fatal for the current operation.
type ForbiddenError struct {
	Description string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("telegram: forbidden: %s", e.Description)
}

// RetryAfterError is the platform's rate-limit response. After carries the
// server-mandated wait.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("telegram: retry after %s", e.After)
}

// APIError is any other Bot API rejection.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: api error %d: %s", e.Code, e.Description)
}

// Retryable classifies an error for backoff purposes: rate limits, transient
// transport failures and server-side 5xx are retryable; permission and
// missing-request failures are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return true
	}
	var fe *ForbiddenError
	if errors.As(err, &fe) {
		return false
	}
	if errors.Is(err, ErrNoJoinRequest) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code >= 500
	}
	// Network-level failures are transient.
	return true
}
