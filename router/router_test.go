package router_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DakotaIrsik/irsiksoftwarebot/assistant"
	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
	"github.com/DakotaIrsik/irsiksoftwarebot/perms"
	"github.com/DakotaIrsik/irsiksoftwarebot/router"
	"github.com/DakotaIrsik/irsiksoftwarebot/structure"
	"github.com/DakotaIrsik/irsiksoftwarebot/tracker"
)

type sentMessage struct {
	channelID string
	messageID string // set for replies
	text      string
}

type fakeChat struct {
	guild   chat.Guild
	sent    []sentMessage
	reacted []string
	cleared int
	deleted []string
	history []chat.Message
}

func (f *fakeChat) Guild(context.Context) (chat.Guild, error) { return f.guild, nil }

func (f *fakeChat) CreateRole(context.Context, chat.NewRole) (chat.Role, error) {
	return chat.Role{}, nil
}

func (f *fakeChat) CreateCategory(context.Context, chat.NewCategory) (chat.Channel, error) {
	return chat.Channel{}, nil
}

func (f *fakeChat) CreateChannel(context.Context, chat.NewChannel) (chat.Channel, error) {
	return chat.Channel{}, nil
}

func (f *fakeChat) SetOverwrites(context.Context, string, []chat.Overwrite) error { return nil }

func (f *fakeChat) SendMessage(_ context.Context, channelID, text string) error {
	f.sent = append(f.sent, sentMessage{channelID: channelID, text: text})
	return nil
}

func (f *fakeChat) Reply(_ context.Context, channelID, messageID, text string) error {
	f.sent = append(f.sent, sentMessage{channelID: channelID, messageID: messageID, text: text})
	return nil
}

func (f *fakeChat) React(_ context.Context, _, _, emoji string) error {
	f.reacted = append(f.reacted, emoji)
	return nil
}

func (f *fakeChat) ClearReactions(context.Context, string, string) error {
	f.cleared++
	return nil
}

func (f *fakeChat) DeleteMessage(_ context.Context, _, messageID string) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeChat) ListMessages(_ context.Context, _, beforeID string, limit int) ([]chat.Message, error) {
	if beforeID != "" {
		return nil, nil
	}
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

type fakeTracker struct {
	readme    string
	readmeErr error

	createdRepo   string
	createdTitle  string
	createdBody   string
	createdLabels []string
	createErr     error
}

func (f *fakeTracker) CreateIssue(_ context.Context, repo, title, body string, labels []string) (tracker.Issue, error) {
	f.createdRepo, f.createdTitle, f.createdBody, f.createdLabels = repo, title, body, labels
	if f.createErr != nil {
		return tracker.Issue{}, f.createErr
	}
	return tracker.Issue{Number: 7, Title: title, URL: "https://github.com/dakota/qiflow/issues/7"}, nil
}

func (f *fakeTracker) FetchReadme(context.Context, string) (string, error) {
	return f.readme, f.readmeErr
}

type fakeAssistant struct {
	prompt string
	opts   assistant.Options
	out    string
	err    error
}

func (f *fakeAssistant) Invoke(_ context.Context, prompt string, opts assistant.Options) (string, error) {
	f.prompt, f.opts = prompt, opts
	return f.out, f.err
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// allowAll grants every command to everyone; individual tests override
// specific policies.
func testEvaluator(t *testing.T, overrides map[string]perms.CommandPolicy) *perms.Evaluator {
	t.Helper()
	commands := map[string]perms.CommandPolicy{}
	for _, name := range []string{"readme", "issue", "chat", "setup", "addrepo", "removerepo",
		"addrole", "listrepos", "purge", "clear", "ping", "help"} {
		commands[name] = perms.CommandPolicy{Enabled: true}
	}
	for name, policy := range overrides {
		commands[name] = policy
	}
	path := filepath.Join(t.TempDir(), "permissions.json")
	writeJSON(t, path, perms.Config{
		Servers: map[string]perms.ServerPolicy{
			perms.DefaultServerKey: {Enabled: true, Commands: commands},
		},
	})
	store := perms.NewStore(path)
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	return perms.NewEvaluator(store)
}

func testStructureStore(t *testing.T) *structure.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "structure.json")
	writeJSON(t, path, structure.Document{
		Roles: []structure.RoleSpec{{Name: "Founder", Color: "#ff0000"}},
		Categories: []structure.CategorySpec{{
			Name: "📦 QiFlow",
			Channels: []structure.ChannelSpec{
				{Name: "qiflow-general"},
				{Name: "qiflow-bug-reports"},
			},
		}},
	})
	return structure.NewStore(path)
}

func testRouter(t *testing.T, fc *fakeChat, ft *fakeTracker, fa *fakeAssistant,
	overrides map[string]perms.CommandPolicy) *router.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := testStructureStore(t)
	reconciler := structure.NewReconciler(fc, logger, structure.Options{
		CategoryDelay: time.Nanosecond,
		ChannelDelay:  time.Nanosecond,
	})
	return router.New(fc, ft, fa, testEvaluator(t, overrides), store, reconciler, logger, router.Config{
		SendDelay:    time.Nanosecond,
		PurgeDelay:   time.Nanosecond,
		TrackerOwner: "dakota",
		RepoPaths:    map[string]string{"qiflow": "/srv/repos/qiflow"},
	})
}

func TestHandlePing(t *testing.T) {
	fc := &fakeChat{}
	r := testRouter(t, fc, &fakeTracker{}, &fakeAssistant{}, nil)
	err := r.HandleMessage(context.Background(), chat.Message{
		ID: "m1", GuildID: "g1", ChannelID: "c1", ChannelName: "general", Text: "!ping",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.sent) != 1 || !strings.Contains(fc.sent[0].text, "Pong") {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestHandleDeniedIntentReplies(t *testing.T) {
	fc := &fakeChat{}
	r := testRouter(t, fc, &fakeTracker{}, &fakeAssistant{}, map[string]perms.CommandPolicy{
		"setup": {Enabled: true, RequireAdmin: true},
	})
	err := r.HandleMessage(context.Background(), chat.Message{
		ID: "m1", GuildID: "g1", ChannelID: "c1", ChannelName: "general", Text: "!setup",
		Actor: chat.Actor{Name: "visitor"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.sent) != 1 || !strings.Contains(fc.sent[0].text, "administrator") {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestHandleValidationErrorReplies(t *testing.T) {
	fc := &fakeChat{}
	r := testRouter(t, fc, &fakeTracker{}, &fakeAssistant{}, nil)
	err := r.HandleMessage(context.Background(), chat.Message{
		ID: "m1", GuildID: "g1", ChannelID: "c1", ChannelName: "general", Text: "!addrepo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.sent) != 1 || !strings.HasPrefix(fc.sent[0].text, "usage:") {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestHandleCreateIssue(t *testing.T) {
	fc := &fakeChat{}
	ft := &fakeTracker{}
	r := testRouter(t, fc, ft, &fakeAssistant{}, nil)

	msg := mention("the scheduler drops jobs under load")
	msg.ChannelName = "qiflow-bug-reports"
	if err := r.HandleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	if ft.createdRepo != "QiFlow" {
		t.Fatalf("repo = %q", ft.createdRepo)
	}
	if len(ft.createdLabels) != 1 || ft.createdLabels[0] != "bug" {
		t.Fatalf("labels = %v", ft.createdLabels)
	}
	if !strings.Contains(ft.createdBody, "*Reported by dakota via chat*") {
		t.Fatalf("body = %q", ft.createdBody)
	}
	if len(fc.sent) != 1 || !strings.Contains(fc.sent[0].text, "#7") {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestHandleFetchDocsChunksAndTruncates(t *testing.T) {
	fc := &fakeChat{}
	ft := &fakeTracker{readme: strings.Repeat("a", 12000)}
	r := testRouter(t, fc, ft, &fakeAssistant{}, nil)

	if err := r.HandleMessage(context.Background(), mention("readme qiflow")); err != nil {
		t.Fatal(err)
	}

	// 5 chunks plus the truncation notice.
	if len(fc.sent) != 6 {
		t.Fatalf("sent %d messages, want 6", len(fc.sent))
	}
	last := fc.sent[len(fc.sent)-1].text
	if !strings.Contains(last, "https://github.com/dakota/qiflow#readme") {
		t.Fatalf("truncation notice = %q", last)
	}
	if len(fc.reacted) == 0 || fc.reacted[0] != "⏳" {
		t.Fatalf("reactions = %v", fc.reacted)
	}
	if fc.reacted[len(fc.reacted)-1] != "✅" {
		t.Fatalf("reactions = %v", fc.reacted)
	}
}

func TestHandleFetchDocsShortReadmeNoNotice(t *testing.T) {
	fc := &fakeChat{}
	ft := &fakeTracker{readme: strings.Repeat("a", 5000)}
	r := testRouter(t, fc, ft, &fakeAssistant{}, nil)

	if err := r.HandleMessage(context.Background(), mention("readme qiflow")); err != nil {
		t.Fatal(err)
	}
	if len(fc.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(fc.sent))
	}
}

func TestHandleFetchDocsFailureReacts(t *testing.T) {
	fc := &fakeChat{}
	ft := &fakeTracker{readmeErr: fmt.Errorf("404")}
	r := testRouter(t, fc, ft, &fakeAssistant{}, nil)

	if err := r.HandleMessage(context.Background(), mention("readme qiflow")); err != nil {
		t.Fatal(err)
	}
	if fc.reacted[len(fc.reacted)-1] != "❌" {
		t.Fatalf("reactions = %v", fc.reacted)
	}
	if len(fc.sent) != 1 || !strings.Contains(fc.sent[0].text, "could not fetch") {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestHandleAssistantChatPromptAndWorkingDir(t *testing.T) {
	fc := &fakeChat{}
	fa := &fakeAssistant{out: "use the config file"}
	r := testRouter(t, fc, &fakeTracker{}, fa, nil)

	msg := mention("how do I configure retries?")
	if err := r.HandleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(fa.prompt, "[Context: QiFlow repository]") {
		t.Fatalf("prompt = %q", fa.prompt)
	}
	if fa.opts.WorkingDir != "/srv/repos/qiflow" {
		t.Fatalf("working dir = %q", fa.opts.WorkingDir)
	}
	if len(fc.sent) != 1 || fc.sent[0].messageID != "m1" {
		t.Fatalf("sent = %v", fc.sent)
	}
	if fc.cleared == 0 {
		t.Fatal("working reaction should be cleared")
	}
}

func TestHandleAssistantTimeout(t *testing.T) {
	fc := &fakeChat{}
	fa := &fakeAssistant{err: assistant.ErrTimeout}
	r := testRouter(t, fc, &fakeTracker{}, fa, nil)

	if err := r.HandleMessage(context.Background(), mention("long question")); err != nil {
		t.Fatal(err)
	}
	if len(fc.sent) != 1 || !strings.Contains(fc.sent[0].text, "too long") {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestHandleSetupReportsSummary(t *testing.T) {
	fc := &fakeChat{guild: chat.Guild{ID: "g1", Name: "Irsik Software"}}
	r := testRouter(t, fc, &fakeTracker{}, &fakeAssistant{}, nil)

	err := r.HandleMessage(context.Background(), chat.Message{
		ID: "m1", GuildID: "g1", ChannelID: "c1", ChannelName: "general", Text: "!setup",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Announcement plus summary.
	if len(fc.sent) != 2 {
		t.Fatalf("sent = %v", fc.sent)
	}
	if !strings.Contains(fc.sent[1].text, "roles: 1 created") {
		t.Fatalf("summary = %q", fc.sent[1].text)
	}
	if !strings.Contains(fc.sent[1].text, "channels: 2 created") {
		t.Fatalf("summary = %q", fc.sent[1].text)
	}
}

func TestHandleListRepos(t *testing.T) {
	fc := &fakeChat{}
	r := testRouter(t, fc, &fakeTracker{}, &fakeAssistant{}, nil)

	err := r.HandleMessage(context.Background(), chat.Message{
		ID: "m1", GuildID: "g1", ChannelID: "c1", ChannelName: "general", Text: "!listrepos",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.sent) != 1 || !strings.Contains(fc.sent[0].text, "QiFlow") {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestHandlePurgeBotMessages(t *testing.T) {
	fc := &fakeChat{history: []chat.Message{
		{ID: "h1", FromBot: true},
		{ID: "h2", Actor: chat.Actor{Name: "dakota"}},
		{ID: "h3", FromBot: true},
	}}
	r := testRouter(t, fc, &fakeTracker{}, &fakeAssistant{}, nil)

	err := r.HandleMessage(context.Background(), chat.Message{
		ID: "m1", GuildID: "g1", ChannelID: "c1", ChannelName: "general", Text: "!purge",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.deleted) != 2 || fc.deleted[0] != "h1" || fc.deleted[1] != "h3" {
		t.Fatalf("deleted = %v", fc.deleted)
	}
	if !strings.Contains(fc.sent[len(fc.sent)-1].text, "Deleted 2 messages") {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestHandlePurgeByUser(t *testing.T) {
	fc := &fakeChat{history: []chat.Message{
		{ID: "h1", Actor: chat.Actor{Name: "Dakota"}},
		{ID: "h2", Actor: chat.Actor{Name: "other"}},
	}}
	r := testRouter(t, fc, &fakeTracker{}, &fakeAssistant{}, nil)

	err := r.HandleMessage(context.Background(), chat.Message{
		ID: "m1", GuildID: "g1", ChannelID: "c1", ChannelName: "general", Text: "!purge dakota",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.deleted) != 1 || fc.deleted[0] != "h1" {
		t.Fatalf("deleted = %v", fc.deleted)
	}
}
