// Package router classifies inbound guild messages into a closed set of
// intents and dispatches them to the tracker, the assistant, the structure
// reconciler, or direct replies. Every intent is permission-checked under
// its stable name before execution.
package router

import "github.com/DakotaIrsik/irsiksoftwarebot/structure"

// Intent is one classified action. Name is the stable key the permission
// document uses for the command.
type Intent interface {
	Name() string
}

// FetchDocs requests a repository README.
type FetchDocs struct {
	Repo string
}

func (FetchDocs) Name() string { return "readme" }

// CreateIssue is a validated issue draft from a feature/bug channel.
type CreateIssue struct {
	Repo      string
	IssueType string // "feature" or "bug"
	Title     string
	Body      string
}

func (CreateIssue) Name() string { return "issue" }

// AssistantChat forwards a direct mention to the assistant.
type AssistantChat struct {
	Repo string
	Text string
}

func (AssistantChat) Name() string { return "chat" }

// AdminSetup reconciles the guild against the desired-state document.
type AdminSetup struct{}

func (AdminSetup) Name() string { return "setup" }

// AdminAddRepo appends a repository category to the document.
type AdminAddRepo struct {
	RepoName string
	Private  bool
}

func (AdminAddRepo) Name() string { return "addrepo" }

// AdminRemoveRepo removes a repository category by prefix.
type AdminRemoveRepo struct {
	Prefix string
}

func (AdminRemoveRepo) Name() string { return "removerepo" }

// AdminAddRole appends a role spec to the document.
type AdminAddRole struct {
	Role structure.RoleSpec
}

func (AdminAddRole) Name() string { return "addrole" }

// ListRepos lists the configured repository categories.
type ListRepos struct{}

func (ListRepos) Name() string { return "listrepos" }

// Purge deletes a user's messages in the current channel.
type Purge struct {
	// Target is a username; empty means the bot's own messages.
	Target string
}

func (Purge) Name() string { return "purge" }

// Clear acknowledges a conversation reset. The assistant is stateless per
// invocation, so this is an explicit no-op.
type Clear struct{}

func (Clear) Name() string { return "clear" }

// Ping is a liveness check.
type Ping struct{}

func (Ping) Name() string { return "ping" }

// Help prints usage.
type Help struct{}

func (Help) Name() string { return "help" }
