// Package structure holds the desired-state document for a guild (roles,
// categories, channels, permission overlays), its on-disk store, and the
// reconciler that converges live guild state toward the document with
// create-if-missing semantics.
package structure

import (
	"fmt"
	"strings"
)

// RoleSpec declares a guild role. Reconciliation only ever creates missing
// roles; it never edits an existing role's fields.
type RoleSpec struct {
	Name        string   `json:"name" yaml:"name"`
	Color       string   `json:"color" yaml:"color"`
	Permissions []string `json:"permissions" yaml:"permissions"`
	Mentionable bool     `json:"mentionable" yaml:"mentionable"`
	Hoist       bool     `json:"hoist" yaml:"hoist"`
}

// OverlayEntry is one allow/deny adjustment for a role reference. Role is
// either a RoleSpec name from the same document or the "@everyone" sentinel.
type OverlayEntry struct {
	Role  string   `json:"role" yaml:"role"`
	Allow []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty" yaml:"deny,omitempty"`
}

// ChannelSpec declares a text channel inside a category.
type ChannelSpec struct {
	Name        string         `json:"name" yaml:"name"`
	Topic       string         `json:"topic,omitempty" yaml:"topic,omitempty"`
	Permissions []OverlayEntry `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// CategorySpec declares a category. Name doubles as the fuzzy-match key
// against live categories, so decorative prefixes in either place still
// resolve.
type CategorySpec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []OverlayEntry `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Channels    []ChannelSpec  `json:"channels" yaml:"channels"`
}

// Document is the full desired-state document.
type Document struct {
	Roles      []RoleSpec     `json:"roles" yaml:"roles"`
	Categories []CategorySpec `json:"categories" yaml:"categories"`
}

// Validate enforces the document invariants: unique role and category names,
// unique channel names within a category, and disjoint allow/deny sets per
// overlay entry. Unresolved overlay role references are not fatal here; the
// reconciler drops them with a warning.
func (d Document) Validate() error {
	roleNames := map[string]bool{}
	for _, r := range d.Roles {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return fmt.Errorf("role name is required")
		}
		if roleNames[name] {
			return fmt.Errorf("duplicate role name %q", name)
		}
		roleNames[name] = true
	}

	catNames := map[string]bool{}
	for _, cat := range d.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return fmt.Errorf("category name is required")
		}
		if catNames[name] {
			return fmt.Errorf("duplicate category name %q", name)
		}
		catNames[name] = true

		if err := validateOverlay(cat.Permissions, "category "+name); err != nil {
			return err
		}

		chNames := map[string]bool{}
		for _, ch := range cat.Channels {
			chName := strings.TrimSpace(ch.Name)
			if chName == "" {
				return fmt.Errorf("channel name is required in category %q", name)
			}
			if chNames[chName] {
				return fmt.Errorf("duplicate channel name %q in category %q", chName, name)
			}
			chNames[chName] = true
			if err := validateOverlay(ch.Permissions, "channel "+chName); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateOverlay(entries []OverlayEntry, where string) error {
	for _, entry := range entries {
		if strings.TrimSpace(entry.Role) == "" {
			return fmt.Errorf("%s: overlay entry role is required", where)
		}
		for _, allow := range entry.Allow {
			for _, deny := range entry.Deny {
				if allow == deny {
					return fmt.Errorf("%s: permission %q is both allowed and denied for %q", where, allow, entry.Role)
				}
			}
		}
	}
	return nil
}

// RoleNames returns the document's role names in declaration order.
func (d Document) RoleNames() []string {
	out := make([]string, 0, len(d.Roles))
	for _, r := range d.Roles {
		out = append(out, r.Name)
	}
	return out
}
