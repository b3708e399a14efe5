package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
)

type fakeChat struct {
	guild chat.Guild
	sent  []string
	to    []string
}

func (f *fakeChat) Guild(context.Context) (chat.Guild, error) { return f.guild, nil }

func (f *fakeChat) SendMessage(_ context.Context, channelID, text string) error {
	f.to = append(f.to, channelID)
	f.sent = append(f.sent, text)
	return nil
}

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
func (f *fakeChat) Reply(context.Context, string, string, string) error           { return nil }
func (f *fakeChat) React(context.Context, string, string, string) error           { return nil }
func (f *fakeChat) ClearReactions(context.Context, string, string) error          { return nil }
func (f *fakeChat) DeleteMessage(context.Context, string, string) error           { return nil }
func (f *fakeChat) ListMessages(context.Context, string, string, int) ([]chat.Message, error) {
	return nil, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feedGuild() chat.Guild {
	return chat.Guild{
		ID: "g1",
		Channels: []chat.Channel{
			{ID: "c-commits", Name: "qiflow-commits"},
			{ID: "c-releases", Name: "qiflow-releases"},
			{ID: "c-fallback", Name: "github"},
		},
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func pushBody(t *testing.T, commits int) []byte {
	t.Helper()
	event := PushEvent{
		Ref:        "refs/heads/main",
		Repository: Repository{Name: "QiFlow"},
		Pusher:     Author{Name: "dakota"},
	}
	for i := 0; i < commits; i++ {
		event.Commits = append(event.Commits, Commit{
			ID:      fmt.Sprintf("%040d", i),
			Message: fmt.Sprintf("commit %d\n\nlonger description", i),
			URL:     fmt.Sprintf("https://github.com/d/qiflow/commit/%d", i),
			Author:  Author{Name: "dakota"},
		})
	}
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func postEvent(t *testing.T, handler http.Handler, event, signature string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set(eventHeader, event)
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPushDeliveredToCommitChannel(t *testing.T) {
	fc := &fakeChat{guild: feedGuild()}
	srv := NewServer("s3cret", NewNotifier(fc, quietLogger()), quietLogger())
	body := pushBody(t, 2)

	rec := postEvent(t, srv.Handler(), "push", sign("s3cret", body), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fc.to) != 1 || fc.to[0] != "c-commits" {
		t.Fatalf("delivered to %v", fc.to)
	}
	msg := fc.sent[0]
	if !strings.Contains(msg, "**2 new commit(s) to QiFlow/main**") {
		t.Fatalf("message = %q", msg)
	}
	if !strings.Contains(msg, "Pushed by dakota") {
		t.Fatalf("pusher missing: %q", msg)
	}
	if !strings.Contains(msg, "`0000000`") {
		t.Fatalf("short hash missing: %q", msg)
	}
	if !strings.Contains(msg, "commit 0 - dakota") {
		t.Fatalf("first line or author missing: %q", msg)
	}
	if strings.Contains(msg, "longer description") {
		t.Fatalf("only the first commit line should appear: %q", msg)
	}
}

func TestPushCapsCommitLines(t *testing.T) {
	fc := &fakeChat{guild: feedGuild()}
	srv := NewServer("s3cret", NewNotifier(fc, quietLogger()), quietLogger())
	body := pushBody(t, 7)

	rec := postEvent(t, srv.Handler(), "push", sign("s3cret", body), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	msg := fc.sent[0]
	if got := strings.Count(msg, "](https://github.com"); got != 5 {
		t.Fatalf("commit lines = %d, want 5", got)
	}
	if !strings.Contains(msg, "*+2 more*") {
		t.Fatalf("overflow marker missing: %q", msg)
	}
}

func TestSignatureMutationRejected(t *testing.T) {
	fc := &fakeChat{guild: feedGuild()}
	srv := NewServer("s3cret", NewNotifier(fc, quietLogger()), quietLogger())
	body := pushBody(t, 1)
	signature := sign("s3cret", body)

	// Flip one byte of the body after signing.
	body[0] ^= 0x01
	rec := postEvent(t, srv.Handler(), "push", signature, body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(fc.sent) != 0 {
		t.Fatal("tampered payload must not be delivered")
	}
}

func TestMissingSignatureRejected(t *testing.T) {
	srv := NewServer("s3cret", NewNotifier(&fakeChat{}, quietLogger()), quietLogger())
	rec := postEvent(t, srv.Handler(), "push", "", pushBody(t, 1))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestNoSecretSkipsVerification(t *testing.T) {
	fc := &fakeChat{guild: feedGuild()}
	srv := NewServer("", NewNotifier(fc, quietLogger()), quietLogger())
	rec := postEvent(t, srv.Handler(), "push", "", pushBody(t, 1))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fc.sent) != 1 {
		t.Fatal("unsigned delivery should pass without a configured secret")
	}
}

func TestPushFallbackChannel(t *testing.T) {
	fc := &fakeChat{guild: chat.Guild{Channels: []chat.Channel{{ID: "c-fallback", Name: "github"}}}}
	srv := NewServer("", NewNotifier(fc, quietLogger()), quietLogger())
	rec := postEvent(t, srv.Handler(), "push", "", pushBody(t, 1))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fc.to) != 1 || fc.to[0] != "c-fallback" {
		t.Fatalf("delivered to %v", fc.to)
	}
}

func TestPushWithoutMatchingChannelDropped(t *testing.T) {
	fc := &fakeChat{guild: chat.Guild{}}
	srv := NewServer("", NewNotifier(fc, quietLogger()), quietLogger())
	rec := postEvent(t, srv.Handler(), "push", "", pushBody(t, 1))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fc.sent) != 0 {
		t.Fatal("no channel means no delivery")
	}
}

func releaseBody(t *testing.T, action string) []byte {
	t.Helper()
	body, err := json.Marshal(ReleaseEvent{
		Action:     action,
		Repository: Repository{Name: "QiFlow"},
		Release: Release{
			TagName: "v1.2.0",
			Name:    "Aurora",
			Body:    "bug fixes",
			HTMLURL: "https://github.com/d/qiflow/releases/v1.2.0",
			Author:  ReleaseAuthor{Login: "dakota"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestReleasePublishedAnnounced(t *testing.T) {
	fc := &fakeChat{guild: feedGuild()}
	srv := NewServer("", NewNotifier(fc, quietLogger()), quietLogger())
	rec := postEvent(t, srv.Handler(), "release", "", releaseBody(t, "published"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fc.to) != 1 || fc.to[0] != "c-releases" {
		t.Fatalf("delivered to %v", fc.to)
	}
	msg := fc.sent[0]
	if !strings.Contains(msg, "New release: QiFlow Aurora") {
		t.Fatalf("message = %q", msg)
	}
	if !strings.Contains(msg, "Tag: `v1.2.0`") {
		t.Fatalf("tag missing: %q", msg)
	}
	if !strings.Contains(msg, "released by dakota") {
		t.Fatalf("author missing: %q", msg)
	}
	if !strings.Contains(msg, "bug fixes") {
		t.Fatalf("notes body missing: %q", msg)
	}
}

func TestReleaseOtherActionsIgnored(t *testing.T) {
	fc := &fakeChat{guild: feedGuild()}
	srv := NewServer("", NewNotifier(fc, quietLogger()), quietLogger())
	for _, action := range []string{"created", "edited", "deleted", "prereleased"} {
		rec := postEvent(t, srv.Handler(), "release", "", releaseBody(t, action))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", action, rec.Code)
		}
	}
	if len(fc.sent) != 0 {
		t.Fatalf("non-published actions delivered: %v", fc.sent)
	}
}

func TestUnknownEventAccepted(t *testing.T) {
	srv := NewServer("", NewNotifier(&fakeChat{}, quietLogger()), quietLogger())
	rec := postEvent(t, srv.Handler(), "workflow_run", "", []byte("{}"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPingAccepted(t *testing.T) {
	srv := NewServer("s3cret", NewNotifier(&fakeChat{}, quietLogger()), quietLogger())
	body := []byte(`{"zen":"Keep it logically awesome."}`)
	rec := postEvent(t, srv.Handler(), "ping", sign("s3cret", body), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
