package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
)

const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opHello        = 10
	opHeartbeatAck = 11

	// intentGuilds + guild messages + message content.
	gatewayIntents = (1 << 0) | (1 << 9) | (1 << 15)

	snapshotTTL = time.Minute
)

// MessageHandler consumes one inbound guild message. Errors are logged,
// never fatal to the gateway session.
type MessageHandler func(ctx context.Context, msg chat.Message) error

// Gateway holds one bot's event-stream session against the platform. Run
// serves a single connection; the caller owns the reconnect loop.
type Gateway struct {
	rest   *Client
	logger *slog.Logger

	botUserID string

	mu         sync.Mutex
	snapshot   chat.Guild
	snapshotAt time.Time
}

func NewGateway(rest *Client, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{rest: rest, logger: logger}
}

// BotUserID returns the bot's user ID once the session is ready.
func (g *Gateway) BotUserID() string { return g.botUserID }

type gatewayEnvelope struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type readyData struct {
	User wireUser `json:"user"`
}

type messageCreateData struct {
	ID        string   `json:"id"`
	GuildID   string   `json:"guild_id"`
	ChannelID string   `json:"channel_id"`
	Content   string   `json:"content"`
	Author    wireUser `json:"author"`
	Member    struct {
		Roles []string `json:"roles"`
	} `json:"member"`
	Mentions []wireUser `json:"mentions"`
}

// Run connects, identifies, and pumps events until the connection drops or
// the context is canceled. A non-nil return is the session's terminal error.
func (g *Gateway) Run(ctx context.Context, handler MessageHandler) error {
	if g == nil || g.rest == nil {
		return fmt.Errorf("gateway is not initialized")
	}

	socketURL, err := g.socketURL(ctx)
	if err != nil {
		return fmt.Errorf("resolve gateway url: %w", err)
	}

	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var (
		writeMu sync.Mutex
		lastSeq int64
		haveSeq bool
	)
	send := func(envelope gatewayEnvelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(envelope)
	}
	// recordSeq and sendHeartbeat share writeMu so the heartbeat always
	// reads a consistent sequence number.
	recordSeq := func(seq int64) {
		writeMu.Lock()
		lastSeq, haveSeq = seq, true
		writeMu.Unlock()
	}
	sendHeartbeat := func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		var seqRaw json.RawMessage = []byte("null")
		if haveSeq {
			seqRaw = []byte(fmt.Sprintf("%d", lastSeq))
		}
		return conn.WriteJSON(gatewayEnvelope{Op: opHeartbeat, Data: seqRaw})
	}

	// First frame must be hello.
	var hello gatewayEnvelope
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello frame, got op %d", hello.Op)
	}
	var helloPayload helloData
	if err := json.Unmarshal(hello.Data, &helloPayload); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	interval := time.Duration(helloPayload.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		interval = 41 * time.Second
	}

	identify := map[string]any{
		"token":   g.rest.botToken,
		"intents": gatewayIntents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "irsikbot",
			"device":  "irsikbot",
		},
	}
	identifyRaw, err := json.Marshal(identify)
	if err != nil {
		return err
	}
	if err := send(gatewayEnvelope{Op: opIdentify, Data: identifyRaw}); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := sendHeartbeat(); err != nil {
					g.logger.Warn("gateway_heartbeat_error", "error", err)
					return
				}
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var envelope gatewayEnvelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if envelope.Seq != nil {
			recordSeq(*envelope.Seq)
		}

		switch envelope.Op {
		case opHeartbeat:
			if err := sendHeartbeat(); err != nil {
				return fmt.Errorf("answer heartbeat: %w", err)
			}
		case opHeartbeatAck:
			// Liveness acknowledged.
		case opDispatch:
			g.handleDispatch(ctx, envelope, handler)
		}
	}
}

func (g *Gateway) handleDispatch(ctx context.Context, envelope gatewayEnvelope, handler MessageHandler) {
	switch envelope.Type {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(envelope.Data, &ready); err != nil {
			g.logger.Warn("gateway_ready_decode_error", "error", err)
			return
		}
		g.botUserID = ready.User.ID
		g.logger.Info("gateway_ready", "bot_user_id", g.botUserID)
	case "MESSAGE_CREATE":
		var data messageCreateData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			g.logger.Warn("gateway_message_decode_error", "error", err)
			return
		}
		msg, err := g.enrich(ctx, data)
		if err != nil {
			g.logger.Warn("gateway_message_enrich_error", "message_id", data.ID, "error", err)
			return
		}
		if handler == nil {
			return
		}
		if err := handler(ctx, msg); err != nil {
			g.logger.Warn("gateway_handler_error", "message_id", data.ID, "error", err)
		}
	}
}

// enrich resolves channel, category, and role names from the cached guild
// snapshot so downstream consumers work with names, not IDs.
func (g *Gateway) enrich(ctx context.Context, data messageCreateData) (chat.Message, error) {
	guild, err := g.guildSnapshot(ctx)
	if err != nil {
		return chat.Message{}, err
	}

	msg := chat.Message{
		ID:        data.ID,
		GuildID:   data.GuildID,
		ChannelID: data.ChannelID,
		Text:      data.Content,
		Actor: chat.Actor{
			ID:   data.Author.ID,
			Name: data.Author.Username,
		},
		FromBot: data.Author.Bot,
	}

	for _, ch := range guild.Channels {
		if ch.ID != data.ChannelID {
			continue
		}
		msg.ChannelName = ch.Name
		if ch.ParentID != "" {
			for _, parent := range guild.Channels {
				if parent.ID == ch.ParentID {
					msg.CategoryName = parent.Name
					break
				}
			}
		}
		break
	}

	roleNames := make(map[string]chat.Role, len(guild.Roles))
	for _, r := range guild.Roles {
		roleNames[r.ID] = r
	}
	for _, roleID := range data.Member.Roles {
		role, ok := roleNames[roleID]
		if !ok {
			continue
		}
		msg.Actor.RoleNames = append(msg.Actor.RoleNames, role.Name)
		if role.Administrator {
			msg.Actor.Administrator = true
		}
	}

	for _, mention := range data.Mentions {
		if mention.ID == g.botUserID {
			msg.MentionsBot = true
			break
		}
	}
	if !msg.MentionsBot && g.botUserID != "" {
		msg.MentionsBot = strings.Contains(data.Content, "<@"+g.botUserID+">") ||
			strings.Contains(data.Content, "<@!"+g.botUserID+">")
	}

	return msg, nil
}

func (g *Gateway) guildSnapshot(ctx context.Context) (chat.Guild, error) {
	g.mu.Lock()
	if time.Since(g.snapshotAt) < snapshotTTL && g.snapshot.ID != "" {
		snapshot := g.snapshot
		g.mu.Unlock()
		return snapshot, nil
	}
	g.mu.Unlock()

	guild, err := g.rest.Guild(ctx)
	if err != nil {
		return chat.Guild{}, err
	}
	g.mu.Lock()
	g.snapshot, g.snapshotAt = guild, time.Now()
	g.mu.Unlock()
	return guild, nil
}

// InvalidateSnapshot drops the cached guild snapshot, forcing a refetch on
// the next event. Called after setup changes the guild.
func (g *Gateway) InvalidateSnapshot() {
	g.mu.Lock()
	g.snapshotAt = time.Time{}
	g.mu.Unlock()
}

type gatewayURLResponse struct {
	URL string `json:"url"`
}

func (g *Gateway) socketURL(ctx context.Context) (string, error) {
	var out gatewayURLResponse
	if err := g.rest.do(ctx, "GET", "/gateway/bot", nil, &out); err != nil {
		return "", err
	}
	socketURL := strings.TrimSpace(out.URL)
	if socketURL == "" {
		return "", fmt.Errorf("gateway returned empty url")
	}
	return socketURL + "?v=10&encoding=json", nil
}
