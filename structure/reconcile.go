package structure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
)

// ErrSetupInProgress is returned when a reconciliation is requested while
// another run against the same guild is still in flight.
var ErrSetupInProgress = errors.New("structure: reconciliation already in progress")

// Options carries the reconciler's rate-limit pacing. Delays are inserted
// after each create; the platform advises its own backoff on 429s.
type Options struct {
	CategoryDelay time.Duration
	ChannelDelay  time.Duration
}

// Reconciler converges live guild state toward a desired-state document.
// Each run is a stateless pass; re-running an unchanged document performs
// zero creates.
type Reconciler struct {
	client   chat.Client
	logger   *slog.Logger
	opts     Options
	inflight atomic.Bool
}

func NewReconciler(client chat.Client, logger *slog.Logger, opts Options) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CategoryDelay <= 0 {
		opts.CategoryDelay = 500 * time.Millisecond
	}
	if opts.ChannelDelay <= 0 {
		opts.ChannelDelay = 300 * time.Millisecond
	}
	return &Reconciler{client: client, logger: logger, opts: opts}
}

// ChannelFailure records one channel that could not be created.
type ChannelFailure struct {
	Channel string
	Reason  string
}

// Report counts what a reconciliation run did.
type Report struct {
	RunID              string
	RolesCreated       int
	RolesExisting      int
	CategoriesCreated  int
	CategoriesExisting int
	ChannelsCreated    int
	ChannelsSkipped    int
	ChannelsFailed     []ChannelFailure
}

// Summary renders the report for a chat reply.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "roles: %d created, %d existing\n", r.RolesCreated, r.RolesExisting)
	fmt.Fprintf(&b, "categories: %d created, %d existing\n", r.CategoriesCreated, r.CategoriesExisting)
	fmt.Fprintf(&b, "channels: %d created, %d skipped, %d failed", r.ChannelsCreated, r.ChannelsSkipped, len(r.ChannelsFailed))
	for _, f := range r.ChannelsFailed {
		fmt.Fprintf(&b, "\n  #%s: %s", f.Channel, f.Reason)
	}
	return b.String()
}

// Reconcile runs the three phases in order: roles, categories, channels.
// Role and category failures abort the run (partial role sets would corrupt
// overlay resolution downstream); channel failures are recorded and the run
// continues. The returned report is valid even when err is non-nil.
func (r *Reconciler) Reconcile(ctx context.Context, doc Document) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	if r == nil || r.client == nil {
		return report, fmt.Errorf("reconciler is not initialized")
	}
	if !r.inflight.CompareAndSwap(false, true) {
		return report, ErrSetupInProgress
	}
	defer r.inflight.Store(false)

	if err := doc.Validate(); err != nil {
		return report, err
	}

	guild, err := r.client.Guild(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch guild state: %w", err)
	}
	r.logger.Info("setup_start",
		"run_id", report.RunID,
		"guild", guild.Name,
		"roles", doc.RoleNames(),
		"categories", len(doc.Categories),
	)

	roleIDs, err := r.reconcileRoles(ctx, doc, guild, &report)
	if err != nil {
		return report, err
	}

	if err := r.reconcileCategories(ctx, doc, guild, roleIDs, &report); err != nil {
		return report, err
	}

	r.logger.Info("setup_done",
		"run_id", report.RunID,
		"channels_created", report.ChannelsCreated,
		"channels_skipped", report.ChannelsSkipped,
		"channels_failed", len(report.ChannelsFailed),
	)
	return report, nil
}

func (r *Reconciler) reconcileRoles(ctx context.Context, doc Document, guild chat.Guild, report *Report) (map[string]string, error) {
	roleIDs := make(map[string]string, len(doc.Roles))
	for _, spec := range doc.Roles {
		if existing, ok := guild.RoleByName(spec.Name); ok {
			roleIDs[spec.Name] = existing.ID
			report.RolesExisting++
			r.logger.Debug("role_exists", "name", spec.Name, "id", existing.ID)
			continue
		}
		created, err := r.client.CreateRole(ctx, chat.NewRole{
			Name:        spec.Name,
			Color:       spec.Color,
			Permissions: spec.Permissions,
			Mentionable: spec.Mentionable,
			Hoist:       spec.Hoist,
		})
		if err != nil {
			// Roles are a prerequisite for every overlay below; a partial
			// role set would resolve overlays incorrectly.
			if wait, ok := chat.RetryAfter(err); ok {
				_ = sleepWithContext(ctx, wait)
			}
			return nil, fmt.Errorf("create role %q: %w", spec.Name, err)
		}
		roleIDs[spec.Name] = created.ID
		report.RolesCreated++
		r.logger.Info("role_created", "name", spec.Name, "id", created.ID)
	}
	return roleIDs, nil
}

func (r *Reconciler) reconcileCategories(ctx context.Context, doc Document, guild chat.Guild, roleIDs map[string]string, report *Report) error {
	for _, spec := range doc.Categories {
		category, existed, err := r.ensureCategory(ctx, spec, guild, roleIDs, report)
		if err != nil {
			return err
		}
		if err := r.reconcileChannels(ctx, spec, category, existed, guild, roleIDs, report); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) ensureCategory(ctx context.Context, spec CategorySpec, guild chat.Guild, roleIDs map[string]string, report *Report) (chat.Channel, bool, error) {
	for _, live := range guild.Categories() {
		if NamesMatch(live.Name, spec.Name) {
			report.CategoriesExisting++
			r.logger.Debug("category_exists", "name", spec.Name, "id", live.ID)
			if len(spec.Permissions) > 0 {
				// Best effort only: overlay drift on an existing category is
				// corrected when possible but never aborts the run.
				overwrites := r.resolveOverlay(spec.Permissions, roleIDs, guild.EveryoneRoleID, "category "+spec.Name)
				if err := r.client.SetOverwrites(ctx, live.ID, overwrites); err != nil {
					r.logger.Warn("category_overlay_update_failed", "name", spec.Name, "error", err.Error())
				} else if err := sleepWithContext(ctx, r.opts.ChannelDelay); err != nil {
					return chat.Channel{}, false, err
				}
			}
			return live, true, nil
		}
	}

	overwrites := r.resolveOverlay(spec.Permissions, roleIDs, guild.EveryoneRoleID, "category "+spec.Name)
	created, err := r.client.CreateCategory(ctx, chat.NewCategory{Name: spec.Name, Overwrites: overwrites})
	if err != nil {
		if wait, ok := chat.RetryAfter(err); ok {
			// Honor the advised backoff, but category creation is not
			// retried automatically; manual re-run is acceptable here.
			_ = sleepWithContext(ctx, wait)
		}
		if errors.Is(err, chat.ErrResourceLimit) {
			return chat.Channel{}, false, fmt.Errorf("create category %q: guild channel limit reached: %w", spec.Name, err)
		}
		return chat.Channel{}, false, fmt.Errorf("create category %q: %w", spec.Name, err)
	}
	report.CategoriesCreated++
	r.logger.Info("category_created", "name", spec.Name, "id", created.ID)
	if err := sleepWithContext(ctx, r.opts.CategoryDelay); err != nil {
		return chat.Channel{}, false, err
	}
	return created, false, nil
}

func (r *Reconciler) reconcileChannels(ctx context.Context, spec CategorySpec, category chat.Channel, categoryExisted bool, guild chat.Guild, roleIDs map[string]string, report *Report) error {
	for _, chSpec := range spec.Channels {
		if categoryExisted {
			if live, ok := guild.ChannelIn(category.ID, chSpec.Name); ok {
				report.ChannelsSkipped++
				r.logger.Debug("channel_exists", "name", chSpec.Name, "id", live.ID)
				continue
			}
		}

		overwrites := r.resolveOverlay(chSpec.Permissions, roleIDs, guild.EveryoneRoleID, "channel "+chSpec.Name)
		create := chat.NewChannel{
			Name:       chSpec.Name,
			Topic:      chSpec.Topic,
			ParentID:   category.ID,
			Overwrites: overwrites,
		}
		_, err := r.client.CreateChannel(ctx, create)
		if wait, ok := chat.RetryAfter(err); ok {
			if slErr := sleepWithContext(ctx, wait); slErr != nil {
				return slErr
			}
			r.logger.Warn("channel_create_retry", "name", chSpec.Name, "wait", wait.String())
			_, err = r.client.CreateChannel(ctx, create)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Channels are plentiful and independent; keep going.
			report.ChannelsFailed = append(report.ChannelsFailed, ChannelFailure{Channel: chSpec.Name, Reason: err.Error()})
			r.logger.Warn("channel_create_failed", "name", chSpec.Name, "error", err.Error())
			continue
		}
		report.ChannelsCreated++
		r.logger.Info("channel_created", "name", chSpec.Name, "category", spec.Name)
		if err := sleepWithContext(ctx, r.opts.ChannelDelay); err != nil {
			return err
		}
	}
	return nil
}

// resolveOverlay maps document overlay entries to platform overwrites.
// Unresolved role references are dropped with a warning; the platform takes
// the list as a full replacement set, in declaration order.
func (r *Reconciler) resolveOverlay(entries []OverlayEntry, roleIDs map[string]string, everyoneID, where string) []chat.Overwrite {
	var out []chat.Overwrite
	for _, entry := range entries {
		var roleID string
		if chat.IsEveryoneRef(entry.Role) {
			roleID = everyoneID
		} else {
			roleID = roleIDs[entry.Role]
		}
		if roleID == "" {
			r.logger.Warn("overlay_role_unresolved", "where", where, "role", entry.Role)
			continue
		}
		out = append(out, chat.Overwrite{RoleID: roleID, Allow: entry.Allow, Deny: entry.Deny})
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
