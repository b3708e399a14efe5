package chat

import "context"

// Client is the mutating capability interface against the chat platform.
// All calls are blocking and may return RateLimitedError, ErrForbidden or
// ErrResourceLimit; callers own backoff policy.
type Client interface {
	// Guild returns a snapshot of live guild state.
	Guild(ctx context.Context) (Guild, error)

	CreateRole(ctx context.Context, role NewRole) (Role, error)
	CreateCategory(ctx context.Context, category NewCategory) (Channel, error)
	CreateChannel(ctx context.Context, channel NewChannel) (Channel, error)

	// SetOverwrites replaces the full permission overlay of a category or
	// channel.
	SetOverwrites(ctx context.Context, channelID string, overwrites []Overwrite) error

	SendMessage(ctx context.Context, channelID, text string) error
	Reply(ctx context.Context, channelID, messageID, text string) error
	React(ctx context.Context, channelID, messageID, emoji string) error
	ClearReactions(ctx context.Context, channelID, messageID string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// ListMessages pages backwards through a channel. beforeID may be empty
	// for the newest page.
	ListMessages(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error)
}
