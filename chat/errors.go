package chat

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrForbidden means the bot lacks the platform permission for the call.
	ErrForbidden = errors.New("chat: forbidden")
	// ErrResourceLimit means the platform refused a create because a hard
	// resource cap (channel/category count) was reached.
	ErrResourceLimit = errors.New("chat: resource limit reached")
)

// RateLimitedError is returned when the platform signals a rate limit.
// RetryAfter carries the platform-advised backoff.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("chat: rate limited, retry after %s", e.RetryAfter)
}

// RetryAfter extracts the advised backoff from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
