package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	eventHeader     = "X-GitHub-Event"
	deliveryHeader  = "X-GitHub-Delivery"

	// maxBodySize bounds a webhook payload read.
	maxBodySize = 1 << 20
)

// Server is the inbound webhook endpoint. With a secret configured, every
// request must carry a valid HMAC-SHA256 signature over the raw body;
// without one, requests are accepted with a warning.
type Server struct {
	secret   string
	notifier *Notifier
	logger   *slog.Logger
}

func NewServer(secret string, notifier *Notifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{secret: secret, notifier: notifier, logger: logger}
}

// Handler returns the HTTP mux for the webhook endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/github", s.handleEvent)
	return mux
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	delivery := r.Header.Get(deliveryHeader)
	if delivery == "" {
		delivery = uuid.NewString()
	}

	if !s.verifySignature(body, r.Header.Get(signatureHeader)) {
		s.logger.Warn("webhook_signature_rejected", "event", r.Header.Get(eventHeader), "delivery", delivery)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event := r.Header.Get(eventHeader)
	s.logger.Debug("webhook_received", "event", event, "delivery", delivery)
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	switch event {
	case "push":
		var push PushEvent
		if err := json.Unmarshal(body, &push); err != nil {
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		if err := s.notifier.HandlePush(ctx, push); err != nil {
			s.logger.Error("push_handle_failed", "repo", push.Repository.Name, "error", err)
			http.Error(w, "delivery failed", http.StatusInternalServerError)
			return
		}
	case "release":
		var release ReleaseEvent
		if err := json.Unmarshal(body, &release); err != nil {
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		if err := s.notifier.HandleRelease(ctx, release); err != nil {
			s.logger.Error("release_handle_failed", "repo", release.Repository.Name, "error", err)
			http.Error(w, "delivery failed", http.StatusInternalServerError)
			return
		}
	case "ping":
		// Delivery test from the tracker, acknowledged without action.
	default:
		s.logger.Debug("webhook_event_ignored", "event", event)
	}

	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the sha256= signature over the raw body. An empty
// configured secret disables verification.
func (s *Server) verifySignature(body []byte, header string) bool {
	if s.secret == "" {
		s.logger.Warn("webhook_secret_unset")
		return true
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
