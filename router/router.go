package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DakotaIrsik/irsiksoftwarebot/assistant"
	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
	"github.com/DakotaIrsik/irsiksoftwarebot/perms"
	"github.com/DakotaIrsik/irsiksoftwarebot/structure"
	"github.com/DakotaIrsik/irsiksoftwarebot/tracker"
)

const (
	emojiWorking = "⏳"
	emojiDone    = "✅"
	emojiFailed  = "❌"

	// purgePageSize is the message page fetched per deletion sweep.
	purgePageSize = 100
	// purgeMaxPages bounds a single purge run.
	purgeMaxPages = 10
)

// Config tunes dispatch behavior. Zero values pick the defaults.
type Config struct {
	// ChunkSize is the maximum reply length per message.
	ChunkSize int
	// MaxChunks caps how many messages one README or assistant reply may
	// span before truncation.
	MaxChunks int
	// SendDelay spaces consecutive chunk sends.
	SendDelay time.Duration
	// PurgeDelay spaces consecutive message deletions.
	PurgeDelay time.Duration
	// TrackerOwner is the tracker account owning the repositories, used in
	// truncation notices.
	TrackerOwner string
	// RepoPaths maps lowercase repository names to local checkouts the
	// assistant may run in.
	RepoPaths map[string]string
	// AfterSetup runs after a setup pass completes, successfully or not.
	// Used to invalidate cached guild snapshots.
	AfterSetup func()
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1900
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = 5
	}
	if c.SendDelay <= 0 {
		c.SendDelay = 500 * time.Millisecond
	}
	if c.PurgeDelay <= 0 {
		c.PurgeDelay = 200 * time.Millisecond
	}
	return c
}

// Router wires classification, permission evaluation and intent dispatch.
type Router struct {
	chat       chat.Client
	tracker    tracker.Client
	assistant  assistant.Client
	evaluator  *perms.Evaluator
	structure  *structure.Store
	reconciler *structure.Reconciler
	logger     *slog.Logger
	cfg        Config
}

func New(chatClient chat.Client, trackerClient tracker.Client, assistantClient assistant.Client,
	evaluator *perms.Evaluator, store *structure.Store, reconciler *structure.Reconciler,
	logger *slog.Logger, cfg Config) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		chat:       chatClient,
		tracker:    trackerClient,
		assistant:  assistantClient,
		evaluator:  evaluator,
		structure:  store,
		reconciler: reconciler,
		logger:     logger,
		cfg:        cfg.withDefaults(),
	}
}

// HandleMessage classifies one inbound message, enforces permissions under
// the intent's stable name, and dispatches. Classification rejections and
// permission denials are replied to the actor; only dispatch failures
// surface as errors.
func (r *Router) HandleMessage(ctx context.Context, msg chat.Message) error {
	prefixes, err := r.structure.RepoPrefixes()
	if err != nil {
		r.logger.Warn("repo_prefixes_unavailable", "error", err)
	}

	intent, err := Classify(msg, prefixes)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return r.reply(ctx, msg, verr.Reason)
		}
		return err
	}
	if intent == nil {
		return nil
	}

	decision := r.evaluator.Evaluate(msg.Actor, msg.ChannelName, msg.GuildID, intent.Name())
	if !decision.Allowed {
		r.logger.Info("intent_denied",
			"intent", intent.Name(),
			"actor", msg.Actor.Name,
			"channel", msg.ChannelName,
			"reason", decision.Reason)
		return r.reply(ctx, msg, decision.Reason)
	}

	r.logger.Info("intent_dispatch",
		"intent", intent.Name(),
		"actor", msg.Actor.Name,
		"channel", msg.ChannelName)

	switch in := intent.(type) {
	case FetchDocs:
		return r.handleFetchDocs(ctx, msg, in)
	case CreateIssue:
		return r.handleCreateIssue(ctx, msg, in)
	case AssistantChat:
		return r.handleAssistantChat(ctx, msg, in)
	case AdminSetup:
		return r.handleSetup(ctx, msg)
	case AdminAddRepo:
		return r.handleAddRepo(ctx, msg, in)
	case AdminRemoveRepo:
		return r.handleRemoveRepo(ctx, msg, in)
	case AdminAddRole:
		return r.handleAddRole(ctx, msg, in)
	case ListRepos:
		return r.handleListRepos(ctx, msg)
	case Purge:
		return r.handlePurge(ctx, msg, in)
	case Clear:
		return r.reply(ctx, msg, "Conversation context cleared. The next message starts fresh.")
	case Ping:
		return r.reply(ctx, msg, "🏓 Pong!")
	case Help:
		return r.reply(ctx, msg, helpText)
	default:
		return fmt.Errorf("unhandled intent %q", intent.Name())
	}
}

func (r *Router) handleFetchDocs(ctx context.Context, msg chat.Message, in FetchDocs) error {
	if in.Repo == "" {
		return r.reply(ctx, msg, "please name a repository, e.g. `@bot readme qiflow`")
	}

	r.react(ctx, msg, emojiWorking)
	readme, err := r.tracker.FetchReadme(ctx, in.Repo)
	r.clearReactions(ctx, msg)
	if err != nil {
		r.react(ctx, msg, emojiFailed)
		r.logger.Warn("readme_fetch_failed", "repo", in.Repo, "error", err)
		return r.reply(ctx, msg, fmt.Sprintf("❌ could not fetch the README for %s", in.Repo))
	}
	r.react(ctx, msg, emojiDone)

	parts, truncated := Chunk(ConvertMarkdown(readme), r.cfg.ChunkSize, r.cfg.MaxChunks)
	if err := r.sendChunks(ctx, msg.ChannelID, parts); err != nil {
		return err
	}
	if truncated {
		notice := fmt.Sprintf("*README truncated. Full version: https://github.com/%s/%s#readme*",
			r.cfg.TrackerOwner, in.Repo)
		return r.chat.SendMessage(ctx, msg.ChannelID, notice)
	}
	return nil
}

func (r *Router) handleCreateIssue(ctx context.Context, msg chat.Message, in CreateIssue) error {
	if in.Repo == "" {
		return r.reply(ctx, msg, "could not work out which repository this channel belongs to")
	}

	body := IssueFooter(in.Body, msg.Actor.Name)
	issue, err := r.tracker.CreateIssue(ctx, in.Repo, in.Title, body, IssueLabels(in.IssueType))
	if err != nil {
		r.logger.Warn("issue_create_failed", "repo", in.Repo, "error", err)
		return r.reply(ctx, msg, "❌ failed to create the issue, please try again later")
	}

	r.logger.Info("issue_created", "repo", in.Repo, "number", issue.Number, "type", in.IssueType)
	return r.reply(ctx, msg, fmt.Sprintf("✅ Created issue #%d: %s", issue.Number, issue.URL))
}

func (r *Router) handleAssistantChat(ctx context.Context, msg chat.Message, in AssistantChat) error {
	r.react(ctx, msg, emojiWorking)
	defer r.clearReactions(ctx, msg)

	prompt := assistant.BuildPrompt(in.Repo, r.evaluator.IsAdmin(msg.Actor), in.Text)
	opts := assistant.Options{}
	if in.Repo != "" {
		opts.WorkingDir = r.cfg.RepoPaths[strings.ToLower(in.Repo)]
	}

	out, err := r.assistant.Invoke(ctx, prompt, opts)
	if err != nil {
		if errors.Is(err, assistant.ErrTimeout) {
			return r.reply(ctx, msg, "⌛ the assistant took too long to respond, please try a shorter question")
		}
		r.logger.Warn("assistant_invoke_failed", "repo", in.Repo, "error", err)
		return r.reply(ctx, msg, "❌ the assistant is unavailable right now")
	}
	if strings.TrimSpace(out) == "" {
		return r.reply(ctx, msg, "the assistant returned an empty response")
	}

	parts, truncated := Chunk(out, r.cfg.ChunkSize, r.cfg.MaxChunks)
	for i, part := range parts {
		var err error
		if i == 0 {
			err = r.chat.Reply(ctx, msg.ChannelID, msg.ID, part)
		} else {
			err = r.chat.SendMessage(ctx, msg.ChannelID, part)
		}
		if err != nil {
			return err
		}
		if i < len(parts)-1 {
			if err := sleepWithContext(ctx, r.cfg.SendDelay); err != nil {
				return err
			}
		}
	}
	if truncated {
		return r.chat.SendMessage(ctx, msg.ChannelID, "*response truncated*")
	}
	return nil
}

func (r *Router) handleSetup(ctx context.Context, msg chat.Message) error {
	if err := r.reply(ctx, msg, "🔧 Starting server setup, this can take a minute..."); err != nil {
		return err
	}

	doc, err := r.structure.Load()
	if err != nil {
		r.logger.Error("setup_load_failed", "error", err)
		return r.reply(ctx, msg, "❌ could not load the server structure document")
	}

	report, err := r.reconciler.Reconcile(ctx, doc)
	if r.cfg.AfterSetup != nil {
		r.cfg.AfterSetup()
	}
	if err != nil {
		if errors.Is(err, structure.ErrSetupInProgress) {
			return r.reply(ctx, msg, "⚠️ a setup run is already in progress")
		}
		r.logger.Error("setup_failed", "error", err)
		return r.reply(ctx, msg, fmt.Sprintf("❌ setup aborted: %v\n%s", err, report.Summary()))
	}
	return r.reply(ctx, msg, report.Summary())
}

func (r *Router) handleAddRepo(ctx context.Context, msg chat.Message, in AdminAddRepo) error {
	cat, err := r.structure.AddRepo(in.RepoName, in.Private)
	if err != nil {
		return r.reply(ctx, msg, fmt.Sprintf("❌ %v", err))
	}
	visibility := "public"
	if in.Private {
		visibility = "private"
	}
	return r.reply(ctx, msg, fmt.Sprintf(
		"✅ Added %s category %q with %d channels. Run `!setup` to create them.",
		visibility, cat.Name, len(cat.Channels)))
}

func (r *Router) handleRemoveRepo(ctx context.Context, msg chat.Message, in AdminRemoveRepo) error {
	cat, err := r.structure.RemoveRepo(in.Prefix)
	if err != nil {
		return r.reply(ctx, msg, fmt.Sprintf("❌ %v", err))
	}
	return r.reply(ctx, msg, fmt.Sprintf(
		"✅ Removed category %q from the structure document. Existing channels are left in place.", cat.Name))
}

func (r *Router) handleAddRole(ctx context.Context, msg chat.Message, in AdminAddRole) error {
	if err := r.structure.AddRole(in.Role); err != nil {
		return r.reply(ctx, msg, fmt.Sprintf("❌ %v", err))
	}
	return r.reply(ctx, msg, fmt.Sprintf(
		"✅ Added role %q to the structure document. Run `!setup` to create it.", in.Role.Name))
}

func (r *Router) handleListRepos(ctx context.Context, msg chat.Message) error {
	repos, err := r.structure.ListRepos()
	if err != nil {
		r.logger.Warn("list_repos_failed", "error", err)
		return r.reply(ctx, msg, "❌ could not read the structure document")
	}
	if len(repos) == 0 {
		return r.reply(ctx, msg, "no repository categories are configured, add one with `!addrepo`")
	}

	var b strings.Builder
	b.WriteString("**Configured repositories:**\n")
	for _, repo := range repos {
		visibility := "public"
		if repo.Private {
			visibility = "private"
		}
		fmt.Fprintf(&b, "• %s (`%s*`, %s)\n", repo.Name, repo.Prefix, visibility)
	}
	return r.reply(ctx, msg, strings.TrimRight(b.String(), "\n"))
}

// handlePurge sweeps the channel backwards, deleting the target user's
// messages. An empty target deletes the bot's own messages.
func (r *Router) handlePurge(ctx context.Context, msg chat.Message, in Purge) error {
	target := strings.TrimSpace(in.Target)
	deleted := 0
	beforeID := ""

	for page := 0; page < purgeMaxPages; page++ {
		messages, err := r.chat.ListMessages(ctx, msg.ChannelID, beforeID, purgePageSize)
		if err != nil {
			r.logger.Warn("purge_list_failed", "channel", msg.ChannelName, "error", err)
			break
		}
		if len(messages) == 0 {
			break
		}
		beforeID = messages[len(messages)-1].ID

		for _, m := range messages {
			if m.ID == msg.ID || !purgeMatches(m, target) {
				continue
			}
			if err := r.chat.DeleteMessage(ctx, msg.ChannelID, m.ID); err != nil {
				r.logger.Warn("purge_delete_failed", "message", m.ID, "error", err)
				continue
			}
			deleted++
			if err := sleepWithContext(ctx, r.cfg.PurgeDelay); err != nil {
				return err
			}
		}
		if len(messages) < purgePageSize {
			break
		}
	}

	return r.reply(ctx, msg, fmt.Sprintf("🧹 Deleted %d messages.", deleted))
}

func purgeMatches(m chat.Message, target string) bool {
	if target == "" {
		return m.FromBot
	}
	return strings.EqualFold(m.Actor.Name, target)
}

func (r *Router) sendChunks(ctx context.Context, channelID string, parts []string) error {
	for i, part := range parts {
		if err := r.chat.SendMessage(ctx, channelID, part); err != nil {
			return err
		}
		if i < len(parts)-1 {
			if err := sleepWithContext(ctx, r.cfg.SendDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Router) reply(ctx context.Context, msg chat.Message, text string) error {
	return r.chat.Reply(ctx, msg.ChannelID, msg.ID, text)
}

// react and clearReactions are best effort; a failed reaction never fails
// the intent.
func (r *Router) react(ctx context.Context, msg chat.Message, emoji string) {
	if err := r.chat.React(ctx, msg.ChannelID, msg.ID, emoji); err != nil {
		r.logger.Debug("react_failed", "emoji", emoji, "error", err)
	}
}

func (r *Router) clearReactions(ctx context.Context, msg chat.Message) {
	if err := r.chat.ClearReactions(ctx, msg.ChannelID, msg.ID); err != nil {
		r.logger.Debug("clear_reactions_failed", "error", err)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const helpText = "**Commands**\n" +
	"`@bot readme <repo>` fetch a repository README\n" +
	"`@bot <text>` in a feature/bug channel: file an issue\n" +
	"`@bot <text>` elsewhere: ask the assistant\n" +
	"`!setup` reconcile the server against the structure document\n" +
	"`!addrepo <name> [public|private]` add a repository category\n" +
	"`!removerepo <prefix>` remove a repository category\n" +
	"`!addrole <name> <color> [mentionable] [hoisted]` add a role\n" +
	"`!listrepos` list configured repositories\n" +
	"`!purge [user]` delete recent messages\n" +
	"`!clear` reset the conversation\n" +
	"`!ping` liveness check"
