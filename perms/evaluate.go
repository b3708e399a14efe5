package perms

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
)

// Decision is the evaluator's structured answer. Reason is user-facing and
// only set when Allowed is false.
type Decision struct {
	Allowed bool
	Reason  string
}

func deny(reason string) Decision { return Decision{Reason: reason} }

// Evaluator resolves command invocations against the permissions document.
// It performs no I/O; the only state is the store snapshot it reads.
type Evaluator struct {
	store *Store
}

func NewEvaluator(store *Store) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate runs the checks in order, short-circuiting on the first failure:
// guild context, guild enabled, command configured, command enabled, channel
// pattern, role allowlist, admin requirement. Unknown commands are denied.
func (e *Evaluator) Evaluate(actor chat.Actor, channelName, guildID, command string) Decision {
	if e == nil || e.store == nil {
		return deny("permissions are not configured")
	}
	if strings.TrimSpace(guildID) == "" {
		return deny("commands cannot be used outside a server")
	}

	cfg := e.store.Snapshot()
	server, ok := cfg.ServerFor(guildID)
	if !ok || !server.Enabled {
		return deny("bot is not enabled for this server, contact a server admin")
	}

	policy, ok := server.Commands[command]
	if !ok {
		return deny(fmt.Sprintf("command %q is not configured for this server", command))
	}
	if !policy.Enabled {
		return deny(fmt.Sprintf("command %q is disabled", command))
	}

	channels := policy.Channels
	if len(channels) == 0 {
		channels = []string{"*"}
	}
	channelAllowed := false
	for _, pattern := range channels {
		if ChannelMatchesPattern(channelName, pattern) {
			channelAllowed = true
			break
		}
	}
	if !channelAllowed {
		return deny(fmt.Sprintf("command %q can only be used in these channels: %s", command, strings.Join(channels, ", ")))
	}

	roles := policy.Roles
	if len(roles) == 0 {
		roles = []string{"*"}
	}
	if !containsString(roles, "*") {
		hasRole := false
		for _, name := range roles {
			if actor.HasRole(name) {
				hasRole = true
				break
			}
		}
		if !hasRole {
			return deny(fmt.Sprintf("command %q requires one of these roles: %s", command, strings.Join(roles, ", ")))
		}
	}

	if policy.RequireAdmin && !e.IsAdmin(actor) {
		return deny(fmt.Sprintf("command %q requires administrator privileges", command))
	}

	return Decision{Allowed: true}
}

// IsAdmin reports whether the actor holds the platform administrator
// capability or any configured global admin role.
func (e *Evaluator) IsAdmin(actor chat.Actor) bool {
	if actor.Administrator {
		return true
	}
	if e == nil || e.store == nil {
		return false
	}
	for _, name := range e.store.Snapshot().GlobalAdminRoles {
		if actor.HasRole(name) {
			return true
		}
	}
	return false
}

// ChannelMatchesPattern matches a channel name against a wildcard pattern:
// '*' matches any run of characters, '?' exactly one. Matching is
// case-insensitive and anchored to the full string.
func ChannelMatchesPattern(channelName, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "*" {
		return true
	}
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(channelName)
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
