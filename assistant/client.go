// Package assistant is the conversational-assistant capability: one
// stateless prompt in, one text response out. The shipped implementation
// shells out to a local CLI; each invocation is independent, so there is no
// conversation state to manage.
package assistant

import (
	"context"
	"errors"
)

// ErrTimeout is returned when an invocation exceeds its hard timeout. The
// underlying process is killed on expiry.
var ErrTimeout = errors.New("assistant: invocation timed out")

// Options scopes one invocation.
type Options struct {
	// WorkingDir is the directory the assistant runs in, typically a local
	// checkout of the repository under discussion. Empty means the process
	// working directory.
	WorkingDir string
}

// Client is the capability interface consumed by the router.
type Client interface {
	Invoke(ctx context.Context, prompt string, opts Options) (string, error)
}
