// Package perms decides whether an actor may invoke a command in a channel,
// against a per-guild policy document loaded at startup and swapped
// atomically on reload.
package perms

import (
	"fmt"
	"strings"
	"sync"

	"github.com/DakotaIrsik/irsiksoftwarebot/internal/fsstore"
)

// DefaultServerKey is the fallback entry used for guilds without their own
// policy block.
const DefaultServerKey = "default"

// CommandPolicy gates a single command. Empty Channels/Roles default to the
// wildcard list ["*"].
type CommandPolicy struct {
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Channels     []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	Roles        []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	RequireAdmin bool     `json:"require_admin,omitempty" yaml:"require_admin,omitempty"`
}

// ServerPolicy is the policy block for one guild.
type ServerPolicy struct {
	Enabled  bool                     `json:"enabled" yaml:"enabled"`
	Commands map[string]CommandPolicy `json:"commands,omitempty" yaml:"commands,omitempty"`
}

// Config is the whole permissions document.
type Config struct {
	Servers          map[string]ServerPolicy `json:"servers" yaml:"servers"`
	GlobalAdminRoles []string                `json:"global_admin_roles,omitempty" yaml:"global_admin_roles,omitempty"`
}

// ServerFor resolves the policy block for a guild, falling back to the
// default entry.
func (c Config) ServerFor(guildID string) (ServerPolicy, bool) {
	if sp, ok := c.Servers[guildID]; ok {
		return sp, true
	}
	sp, ok := c.Servers[DefaultServerKey]
	return sp, ok
}

// Store holds the loaded permissions document. Reload swaps the in-memory
// config atomically; readers always see one consistent document.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg Config
}

func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

// Load reads the document from disk and swaps it in. Admins edit the
// underlying file out of band; this is the explicit reload entrypoint.
func (s *Store) Load() error {
	if s == nil || s.path == "" {
		return fmt.Errorf("permissions path is required")
	}
	var cfg Config
	var found bool
	var err error
	if hasYAMLExt(s.path) {
		found, err = fsstore.ReadYAML(s.path, &cfg)
	} else {
		found, err = fsstore.ReadJSON(s.path, &cfg)
	}
	if err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}
	if !found {
		return fmt.Errorf("load permissions: %s does not exist", s.path)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current document by value.
func (s *Store) Snapshot() Config {
	if s == nil {
		return Config{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func hasYAMLExt(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
