// Package webhook receives tracker events over HTTP, verifies their
// signatures against a shared secret, and announces them in the guild's
// feed channels.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
	"github.com/DakotaIrsik/irsiksoftwarebot/internal/retryutil"
	"github.com/DakotaIrsik/irsiksoftwarebot/structure"
)

// maxCommitLines caps the commit lines in one push announcement.
const maxCommitLines = 5

// PushEvent is the subset of the tracker's push payload the notifier uses.
type PushEvent struct {
	Ref        string     `json:"ref"`
	Repository Repository `json:"repository"`
	Pusher     Author     `json:"pusher"`
	Commits    []Commit   `json:"commits"`
}

// ReleaseEvent is the subset of the tracker's release payload the notifier
// uses. Only the "published" action is announced.
type ReleaseEvent struct {
	Action     string     `json:"action"`
	Release    Release    `json:"release"`
	Repository Repository `json:"repository"`
}

type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
	Author  Author `json:"author"`
}

type Author struct {
	Name string `json:"name"`
}

type Release struct {
	TagName string        `json:"tag_name"`
	Name    string        `json:"name"`
	Body    string        `json:"body"`
	HTMLURL string        `json:"html_url"`
	Author  ReleaseAuthor `json:"author"`
}

// ReleaseAuthor is the tracker account that published the release.
type ReleaseAuthor struct {
	Login string `json:"login"`
}

// Notifier resolves the destination channel for an event and posts the
// rendered announcement. A repository without a matching channel is logged
// and dropped; it is not an error.
type Notifier struct {
	chat   chat.Client
	logger *slog.Logger
}

func NewNotifier(chatClient chat.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{chat: chatClient, logger: logger}
}

// HandlePush announces pushed commits in the repository's commit feed.
func (n *Notifier) HandlePush(ctx context.Context, event PushEvent) error {
	if len(event.Commits) == 0 {
		return nil
	}

	channelID, channelName, err := n.resolveChannel(ctx, pushChannelCandidates(event.Repository.Name))
	if err != nil {
		return err
	}
	if channelID == "" {
		n.logger.Info("push_channel_missing", "repo", event.Repository.Name)
		return nil
	}

	n.logger.Info("push_announce",
		"repo", event.Repository.Name,
		"channel", channelName,
		"commits", len(event.Commits))
	return n.deliver(ctx, channelID, renderPush(event))
}

// HandleRelease announces a published release in the repository's release
// feed. Other release actions (created, edited, drafted) are ignored.
func (n *Notifier) HandleRelease(ctx context.Context, event ReleaseEvent) error {
	if event.Action != "published" {
		return nil
	}

	channelID, channelName, err := n.resolveChannel(ctx, releaseChannelCandidates(event.Repository.Name))
	if err != nil {
		return err
	}
	if channelID == "" {
		n.logger.Info("release_channel_missing", "repo", event.Repository.Name)
		return nil
	}

	n.logger.Info("release_announce",
		"repo", event.Repository.Name,
		"channel", channelName,
		"tag", event.Release.TagName)
	return n.deliver(ctx, channelID, renderRelease(event))
}

// deliver posts the announcement, scheduling one async retry on failure.
// The sender does not redeliver, so a transient send error should not fail
// the whole webhook request.
func (n *Notifier) deliver(ctx context.Context, channelID, text string) error {
	if err := n.chat.SendMessage(ctx, channelID, text); err != nil {
		n.logger.Warn("feed_delivery_error", "channel_id", channelID, "error", err)
		retryutil.AsyncRetry(n.logger, "feed_delivery", 0, 0, func(ctx context.Context) error {
			return n.chat.SendMessage(ctx, channelID, text)
		})
	}
	return nil
}

// resolveChannel returns the first candidate name that exists in the guild.
func (n *Notifier) resolveChannel(ctx context.Context, candidates []string) (id, name string, err error) {
	guild, err := n.chat.Guild(ctx)
	if err != nil {
		return "", "", fmt.Errorf("fetch guild state: %w", err)
	}
	for _, candidate := range candidates {
		if ch, ok := guild.ChannelByName(candidate); ok {
			return ch.ID, ch.Name, nil
		}
	}
	return "", "", nil
}

func pushChannelCandidates(repo string) []string {
	prefix := structure.RepoPrefix(repo)
	return []string{
		prefix + "-commits",
		prefix + "-github",
		"git-commits",
		"commits",
		"github",
	}
}

func releaseChannelCandidates(repo string) []string {
	prefix := structure.RepoPrefix(repo)
	return []string{
		prefix + "-releases",
		prefix + "-announcements",
		"releases",
		"announcements",
	}
}

func renderPush(event PushEvent) string {
	branch := strings.TrimPrefix(event.Ref, "refs/heads/")

	var b strings.Builder
	fmt.Fprintf(&b, "**%d new commit(s) to %s/%s**\n", len(event.Commits), event.Repository.Name, branch)
	if event.Pusher.Name != "" {
		fmt.Fprintf(&b, "Pushed by %s\n", event.Pusher.Name)
	}

	shown := event.Commits
	if len(shown) > maxCommitLines {
		shown = shown[:maxCommitLines]
	}
	for _, c := range shown {
		fmt.Fprintf(&b, "[`%s`](%s) %s - %s\n", shortHash(c.ID), c.URL, firstLine(c.Message), c.Author.Name)
	}
	if extra := len(event.Commits) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "*+%d more*\n", extra)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRelease(event ReleaseEvent) string {
	title := event.Release.Name
	if title == "" {
		title = event.Release.TagName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚀 **New release: %s %s**\n", event.Repository.Name, title)
	fmt.Fprintf(&b, "Tag: `%s`", event.Release.TagName)
	if login := event.Release.Author.Login; login != "" {
		fmt.Fprintf(&b, " - released by %s", login)
	}
	b.WriteString("\n")
	if body := strings.TrimSpace(event.Release.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString(event.Release.HTMLURL)
	return b.String()
}

func shortHash(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
