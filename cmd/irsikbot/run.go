package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DakotaIrsik/irsiksoftwarebot/assistant"
	"github.com/DakotaIrsik/irsiksoftwarebot/chat"
	"github.com/DakotaIrsik/irsiksoftwarebot/internal/chatclient"
	"github.com/DakotaIrsik/irsiksoftwarebot/internal/configutil"
	"github.com/DakotaIrsik/irsiksoftwarebot/internal/logutil"
	"github.com/DakotaIrsik/irsiksoftwarebot/perms"
	"github.com/DakotaIrsik/irsiksoftwarebot/router"
	"github.com/DakotaIrsik/irsiksoftwarebot/structure"
	"github.com/DakotaIrsik/irsiksoftwarebot/tracker"
	"github.com/DakotaIrsik/irsiksoftwarebot/webhook"
)

// botDeps is the wired component set shared by the run and setup commands.
type botDeps struct {
	logger     *slog.Logger
	chat       *chatclient.Client
	gateway    *chatclient.Gateway
	tracker    *tracker.GitHub
	assistant  *assistant.CLIClient
	perms      *perms.Store
	structure  *structure.Store
	reconciler *structure.Reconciler
	router     *router.Router
}

func buildDeps(cmd *cobra.Command) (*botDeps, error) {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "chat-bot-token", "chat.bot_token"))
	if botToken == "" {
		return nil, fmt.Errorf("missing chat.bot_token (set via --chat-bot-token or %s_CHAT_BOT_TOKEN)", envPrefix)
	}
	guildID := strings.TrimSpace(configutil.FlagOrViperString(cmd, "chat-guild-id", "chat.guild_id"))
	if guildID == "" {
		return nil, fmt.Errorf("missing chat.guild_id (set via --chat-guild-id or %s_CHAT_GUILD_ID)", envPrefix)
	}

	chatAPI := chatclient.New(nil, viper.GetString("chat.api_base"), botToken, guildID)
	gateway := chatclient.NewGateway(chatAPI, logger)

	trackerToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "tracker-token", "tracker.token"))
	trackerOwner := strings.TrimSpace(configutil.FlagOrViperString(cmd, "tracker-owner", "tracker.owner"))
	if trackerOwner == "" {
		return nil, fmt.Errorf("missing tracker.owner (set via --tracker-owner or %s_TRACKER_OWNER)", envPrefix)
	}
	github := tracker.NewGitHub(nil, viper.GetString("tracker.api_base"), trackerToken, trackerOwner)

	repoPaths := normalizeRepoPaths(viper.GetStringMapString("assistant.repo_paths"))
	cli := assistant.NewCLIClient(
		viper.GetString("assistant.command"),
		configutil.FlagOrViperDuration(cmd, "assistant-timeout", "assistant.timeout"),
		repoPaths,
		logger,
	)

	permStore := perms.NewStore(viper.GetString("permissions.path"))
	if err := permStore.Load(); err != nil {
		return nil, err
	}
	structStore := structure.NewStore(viper.GetString("structure.path"))
	if _, err := structStore.Load(); err != nil {
		return nil, err
	}

	reconciler := structure.NewReconciler(chatAPI, logger, structure.Options{
		CategoryDelay: viper.GetDuration("setup.category_delay"),
		ChannelDelay:  viper.GetDuration("setup.channel_delay"),
	})

	rt := router.New(chatAPI, github, cli, perms.NewEvaluator(permStore), structStore, reconciler, logger, router.Config{
		TrackerOwner: trackerOwner,
		RepoPaths:    repoPaths,
		AfterSetup:   gateway.InvalidateSnapshot,
	})

	return &botDeps{
		logger:     logger,
		chat:       chatAPI,
		gateway:    gateway,
		tracker:    github,
		assistant:  cli,
		perms:      permStore,
		structure:  structStore,
		reconciler: reconciler,
		router:     rt,
	}, nil
}

// normalizeRepoPaths lowercases repo keys so lookups are case-insensitive.
func normalizeRepoPaths(paths map[string]string) map[string]string {
	out := make(map[string]string, len(paths))
	for repo, path := range paths {
		out[strings.ToLower(strings.TrimSpace(repo))] = strings.TrimSpace(path)
	}
	return out
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot: gateway listener and webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDeps(cmd)
			if err != nil {
				return err
			}
			logger := deps.logger

			webhookSecret := strings.TrimSpace(configutil.FlagOrViperString(cmd, "webhook-secret", "webhook.secret"))
			webhookListen := strings.TrimSpace(configutil.FlagOrViperString(cmd, "webhook-listen", "webhook.listen"))

			notifier := webhook.NewNotifier(deps.chat, logger)
			webhookServer := webhook.NewServer(webhookSecret, notifier, logger)

			httpServer := &http.Server{
				Addr:              webhookListen,
				Handler:           webhookServer.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				logger.Info("webhook_listen", "addr", webhookListen)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("webhook_server_error", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = httpServer.Shutdown(shutdownCtx)
				cancel()
			}()

			handler := func(ctx context.Context, msg chat.Message) error {
				return deps.router.HandleMessage(ctx, msg)
			}

			logger.Info("bot_start",
				"guild_id", deps.chat.GuildID(),
				"webhook_listen", webhookListen,
				"tracker_owner", deps.tracker.Owner(),
			)

			for {
				if cmd.Context().Err() != nil {
					logger.Info("bot_stop", "reason", "context_canceled")
					return nil
				}
				err := deps.gateway.Run(cmd.Context(), handler)
				if cmd.Context().Err() != nil {
					logger.Info("bot_stop", "reason", "context_canceled")
					return nil
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("gateway_session_error", "error", err)
				}
				if err := sleepWithContext(cmd.Context(), 2*time.Second); err != nil {
					return nil
				}
			}
		},
	}

	cmd.Flags().String("chat-bot-token", "", "Chat platform bot token.")
	cmd.Flags().String("chat-guild-id", "", "Guild (server) ID the bot manages.")
	cmd.Flags().String("tracker-token", "", "GitHub API token.")
	cmd.Flags().String("tracker-owner", "", "GitHub account owning the repositories.")
	cmd.Flags().String("webhook-secret", "", "Shared secret for webhook signature verification.")
	cmd.Flags().String("webhook-listen", "", "Webhook listen address (default :3000).")
	cmd.Flags().Duration("assistant-timeout", 0, "Assistant call timeout (default 2m).")

	return cmd
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
