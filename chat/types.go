// Package chat defines the capability surface this bot needs from a chat
// platform: a read-only guild snapshot, role/category/channel creation,
// permission overwrites, and message delivery. Implementations live in
// internal/chatclient; tests use in-memory fakes.
package chat

import "strings"

// Role is a guild role as reported by the platform. Administrator reflects
// the platform's admin bit, which grants every permission implicitly and so
// never appears as an overlay entry.
type Role struct {
	ID            string
	Name          string
	Color         string
	Permissions   []string
	Administrator bool
	Mentionable   bool
	Hoist         bool
}

// Channel is a text channel or a category. Categories have Category set and
// an empty ParentID; text channels carry the ID of their parent category.
type Channel struct {
	ID       string
	Name     string
	Topic    string
	ParentID string
	Category bool
}

// Overwrite is one entry of a permission overlay: per-role allow/deny
// adjustments. The platform takes the full list as a replacement set.
type Overwrite struct {
	RoleID string
	Allow  []string
	Deny   []string
}

// Guild is a snapshot of live server state. EveryoneRoleID is the implicit
// role every member holds.
type Guild struct {
	ID             string
	Name           string
	EveryoneRoleID string
	Roles          []Role
	Channels       []Channel
}

// RoleByName returns the role with the exact given name.
func (g Guild) RoleByName(name string) (Role, bool) {
	for _, r := range g.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// ChannelByName returns the first non-category channel with the exact given
// name, anywhere in the guild.
func (g Guild) ChannelByName(name string) (Channel, bool) {
	for _, c := range g.Channels {
		if !c.Category && c.Name == name {
			return c, true
		}
	}
	return Channel{}, false
}

// ChannelIn returns the channel with the exact given name under the given
// parent category.
func (g Guild) ChannelIn(parentID, name string) (Channel, bool) {
	for _, c := range g.Channels {
		if !c.Category && c.ParentID == parentID && c.Name == name {
			return c, true
		}
	}
	return Channel{}, false
}

// Categories returns the guild's category channels.
func (g Guild) Categories() []Channel {
	var out []Channel
	for _, c := range g.Channels {
		if c.Category {
			out = append(out, c)
		}
	}
	return out
}

// Actor is the author of an inbound message together with the permission
// facts the evaluator needs.
type Actor struct {
	ID            string
	Name          string
	RoleNames     []string
	Administrator bool
}

// HasRole reports whether the actor holds a role with the given name.
func (a Actor) HasRole(name string) bool {
	for _, r := range a.RoleNames {
		if r == name {
			return true
		}
	}
	return false
}

// Message is an inbound guild message. CategoryName is the name of the
// channel's parent category, when the channel has one.
type Message struct {
	ID           string
	GuildID      string
	ChannelID    string
	ChannelName  string
	CategoryName string
	Text         string
	Actor        Actor
	MentionsBot  bool
	FromBot      bool
}

// NewRole describes a role to create.
type NewRole struct {
	Name        string
	Color       string
	Permissions []string
	Mentionable bool
	Hoist       bool
}

// NewCategory describes a category to create.
type NewCategory struct {
	Name       string
	Overwrites []Overwrite
}

// NewChannel describes a text channel to create under a category.
type NewChannel struct {
	Name       string
	Topic      string
	ParentID   string
	Overwrites []Overwrite
}

// EveryoneRef is the sentinel used in desired-state documents to reference
// the guild's implicit everyone role.
const EveryoneRef = "@everyone"

// IsEveryoneRef reports whether a document role reference names the implicit
// everyone role.
func IsEveryoneRef(ref string) bool {
	return strings.EqualFold(strings.TrimSpace(ref), EveryoneRef)
}
