// Package chatclient implements the chat capability interface against the
// platform's REST and gateway APIs.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
)

const defaultBaseURL = "https://discord.com/api/v10"

// maxChannelsCode is the platform error code for the per-guild channel cap.
const maxChannelsCode = 30013

const (
	channelTypeText     = 0
	channelTypeCategory = 4
	overwriteTypeRole   = 0
)

// Client talks to the platform REST API for one guild.
type Client struct {
	http     *http.Client
	baseURL  string
	botToken string
	guildID  string
}

func New(httpClient *http.Client, baseURL, botToken, guildID string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(botToken),
		guildID:  strings.TrimSpace(guildID),
	}
}

// GuildID returns the guild this client is bound to.
func (c *Client) GuildID() string { return c.guildID }

type wireRole struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Permissions string `json:"permissions"`
	Mentionable bool   `json:"mentionable"`
	Hoist       bool   `json:"hoist"`
}

type wireOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

type wireChannel struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	Name     string `json:"name"`
	Topic    string `json:"topic,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

type wireGuild struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Roles []wireRole `json:"roles"`
}

type wireUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type wireMessage struct {
	ID        string   `json:"id"`
	ChannelID string   `json:"channel_id"`
	Content   string   `json:"content"`
	Author    wireUser `json:"author"`
}

// Guild fetches a snapshot of roles and channels. The everyone role shares
// the guild's ID.
func (c *Client) Guild(ctx context.Context) (chat.Guild, error) {
	if c == nil || c.http == nil {
		return chat.Guild{}, fmt.Errorf("chat client is not initialized")
	}

	var g wireGuild
	if err := c.do(ctx, http.MethodGet, "/guilds/"+c.guildID, nil, &g); err != nil {
		return chat.Guild{}, fmt.Errorf("fetch guild: %w", err)
	}
	var channels []wireChannel
	if err := c.do(ctx, http.MethodGet, "/guilds/"+c.guildID+"/channels", nil, &channels); err != nil {
		return chat.Guild{}, fmt.Errorf("fetch channels: %w", err)
	}

	out := chat.Guild{
		ID:             g.ID,
		Name:           g.Name,
		EveryoneRoleID: g.ID,
	}
	for _, r := range g.Roles {
		out.Roles = append(out.Roles, roleFromWire(r))
	}
	for _, ch := range channels {
		if ch.Type != channelTypeText && ch.Type != channelTypeCategory {
			continue
		}
		out.Channels = append(out.Channels, chat.Channel{
			ID:       ch.ID,
			Name:     ch.Name,
			Topic:    ch.Topic,
			ParentID: ch.ParentID,
			Category: ch.Type == channelTypeCategory,
		})
	}
	return out, nil
}

func (c *Client) CreateRole(ctx context.Context, role chat.NewRole) (chat.Role, error) {
	payload := map[string]any{
		"name":        role.Name,
		"color":       colorToInt(role.Color),
		"permissions": encodePermissions(role.Permissions),
		"mentionable": role.Mentionable,
		"hoist":       role.Hoist,
	}
	var out wireRole
	if err := c.do(ctx, http.MethodPost, "/guilds/"+c.guildID+"/roles", payload, &out); err != nil {
		return chat.Role{}, fmt.Errorf("create role %q: %w", role.Name, err)
	}
	return roleFromWire(out), nil
}

func (c *Client) CreateCategory(ctx context.Context, category chat.NewCategory) (chat.Channel, error) {
	payload := map[string]any{
		"name":                  category.Name,
		"type":                  channelTypeCategory,
		"permission_overwrites": overwritesToWire(category.Overwrites),
	}
	var out wireChannel
	if err := c.do(ctx, http.MethodPost, "/guilds/"+c.guildID+"/channels", payload, &out); err != nil {
		return chat.Channel{}, fmt.Errorf("create category %q: %w", category.Name, err)
	}
	return chat.Channel{ID: out.ID, Name: out.Name, Category: true}, nil
}

func (c *Client) CreateChannel(ctx context.Context, channel chat.NewChannel) (chat.Channel, error) {
	payload := map[string]any{
		"name":                  channel.Name,
		"type":                  channelTypeText,
		"parent_id":             channel.ParentID,
		"topic":                 channel.Topic,
		"permission_overwrites": overwritesToWire(channel.Overwrites),
	}
	var out wireChannel
	if err := c.do(ctx, http.MethodPost, "/guilds/"+c.guildID+"/channels", payload, &out); err != nil {
		return chat.Channel{}, fmt.Errorf("create channel %q: %w", channel.Name, err)
	}
	return chat.Channel{ID: out.ID, Name: out.Name, Topic: out.Topic, ParentID: out.ParentID}, nil
}

func (c *Client) SetOverwrites(ctx context.Context, channelID string, overwrites []chat.Overwrite) error {
	payload := map[string]any{
		"permission_overwrites": overwritesToWire(overwrites),
	}
	if err := c.do(ctx, http.MethodPatch, "/channels/"+channelID, payload, nil); err != nil {
		return fmt.Errorf("set overwrites on %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, channelID, text string) error {
	payload := map[string]any{"content": text}
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", payload, nil); err != nil {
		return fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) Reply(ctx context.Context, channelID, messageID, text string) error {
	payload := map[string]any{
		"content":           text,
		"message_reference": map[string]any{"message_id": messageID},
	}
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", payload, nil); err != nil {
		return fmt.Errorf("reply in %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) React(ctx context.Context, channelID, messageID, emoji string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions/%s/@me",
		channelID, messageID, url.PathEscape(emoji))
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("react to %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) ClearReactions(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions", channelID, messageID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("clear reactions on %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) ListMessages(ctx context.Context, channelID, beforeID string, limit int) ([]chat.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", channelID, limit)
	if beforeID != "" {
		path += "&before=" + url.QueryEscape(beforeID)
	}
	var wire []wireMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, fmt.Errorf("list messages in %s: %w", channelID, err)
	}
	out := make([]chat.Message, 0, len(wire))
	for _, m := range wire {
		out = append(out, chat.Message{
			ID:        m.ID,
			ChannelID: m.ChannelID,
			Text:      m.Content,
			Actor:     chat.Actor{ID: m.Author.ID, Name: m.Author.Username},
			FromBot:   m.Author.Bot,
		})
	}
	return out, nil
}

type apiError struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

// do issues one request and maps platform failures onto the chat package's
// typed errors. Callers own retry policy.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if strings.TrimSpace(c.botToken) == "" {
		return fmt.Errorf("bot token is required")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &chat.RateLimitedError{RetryAfter: retryAfterDuration(resp.Header, apiErr.RetryAfter)}
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, chat.ErrForbidden)
	case apiErr.Code == maxChannelsCode:
		return fmt.Errorf("%s %s: %w", method, path, chat.ErrResourceLimit)
	case apiErr.Message != "":
		return fmt.Errorf("%s %s: http %d: %s (code %d)", method, path, resp.StatusCode, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("%s %s: http %d", method, path, resp.StatusCode)
	}
}

func retryAfterDuration(headers http.Header, bodySeconds float64) time.Duration {
	if bodySeconds > 0 {
		return time.Duration(bodySeconds * float64(time.Second))
	}
	header := strings.TrimSpace(headers.Get("Retry-After"))
	if header != "" {
		if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}

func roleFromWire(r wireRole) chat.Role {
	return chat.Role{
		ID:            r.ID,
		Name:          r.Name,
		Color:         colorToHex(r.Color),
		Permissions:   decodePermissions(r.Permissions),
		Administrator: hasAdministratorBit(r.Permissions),
		Mentionable:   r.Mentionable,
		Hoist:         r.Hoist,
	}
}

func overwritesToWire(overwrites []chat.Overwrite) []wireOverwrite {
	out := make([]wireOverwrite, 0, len(overwrites))
	for _, ow := range overwrites {
		out = append(out, wireOverwrite{
			ID:    ow.RoleID,
			Type:  overwriteTypeRole,
			Allow: encodePermissions(ow.Allow),
			Deny:  encodePermissions(ow.Deny),
		})
	}
	return out
}

// colorToInt parses "#rrggbb" (or "rrggbb") into the platform's integer
// color. Unparseable values fall back to 0, the platform default.
func colorToInt(hex string) int {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if hex == "" {
		return 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

func colorToHex(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("#%06x", v)
}
