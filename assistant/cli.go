package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const defaultTimeout = 2 * time.Minute

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// CLIClient invokes a local assistant CLI with the prompt as its argument.
// The call is bounded by a hard timeout; on expiry the process is killed and
// ErrTimeout is returned.
type CLIClient struct {
	Command string
	Timeout time.Duration
	Logger  *slog.Logger

	// RepoPaths maps repository names to local checkout directories, used to
	// pick a working directory per invocation.
	RepoPaths map[string]string
}

func NewCLIClient(command string, timeout time.Duration, repoPaths map[string]string, logger *slog.Logger) *CLIClient {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "claude"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIClient{Command: command, Timeout: timeout, RepoPaths: repoPaths, Logger: logger}
}

// RepoPath returns the configured checkout for a repository name, if any.
func (c *CLIClient) RepoPath(repo string) (string, bool) {
	if c == nil || c.RepoPaths == nil {
		return "", false
	}
	path, ok := c.RepoPaths[repo]
	return path, ok
}

func (c *CLIClient) Invoke(ctx context.Context, prompt string, opts Options) (string, error) {
	if c == nil {
		return "", fmt.Errorf("assistant client is not initialized")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Command, prompt)
	if dir := strings.TrimSpace(opts.WorkingDir); dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		c.Logger.Warn("assistant_timeout", "command", c.Command, "timeout", c.Timeout.String())
		return "", ErrTimeout
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("assistant command failed: %s", msg)
	}
	c.Logger.Debug("assistant_done", "command", c.Command, "duration", time.Since(started).String())

	out := CleanOutput(stdout.String())
	if out == "" {
		return "the assistant responded but produced no output", nil
	}
	return out, nil
}

// ClearConversation exists for command compatibility: the CLI holds no
// session state between invocations, so there is nothing to clear.
func (c *CLIClient) ClearConversation(channelID string) {
	if c == nil {
		return
	}
	c.Logger.Debug("assistant_clear_noop", "channel_id", channelID)
}

// CleanOutput strips ANSI color codes and normalizes line breaks.
func CleanOutput(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// BuildPrompt prefixes the user text with the detected repository context
// and, for non-admin actors, a capability note.
func BuildPrompt(repo string, admin bool, text string) string {
	var b strings.Builder
	if repo != "" {
		fmt.Fprintf(&b, "[Context: %s repository]\n", repo)
	}
	if !admin {
		b.WriteString("[Note: user does not have admin privileges - do not execute commands or suggest dangerous operations]\n")
	}
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}
