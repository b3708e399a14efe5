// Package tracker is the issue-tracker capability surface: creating issues
// from chat drafts and fetching repository documentation.
package tracker

import "context"

// Issue is a created tracker issue.
type Issue struct {
	Number int
	Title  string
	URL    string
}

// Client is the capability interface consumed by the router.
type Client interface {
	CreateIssue(ctx context.Context, repo, title, body string, labels []string) (Issue, error)
	// FetchReadme returns the repository README as decoded markdown.
	FetchReadme(ctx context.Context, repo string) (string, error)
}
