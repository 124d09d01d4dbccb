package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mickaelvieira/realtime/client"
	"github.com/mickaelvieira/realtime/internal/config"
	"github.com/mickaelvieira/realtime/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the settings shared by the subcommands once flags are applied
type app struct {
	configPath string
	logLevel   string
	origin     string

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "realtime",
		Short: "Real-time channels for the library app",
		Long: `realtime connects to the library websocket endpoints.

It follows the processing progress feed, talks to a chat session
and runs a development server speaking the same protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default ~/.config/realtime/config.toml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&a.origin, "origin", "", "Origin of the library app (default from config)")

	rootCmd.AddCommand(
		listenCmd(a),
		chatCmd(a),
		serveCmd(a),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	// Apply command-line overrides
	if a.origin != "" {
		cfg.Origin = a.origin
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	a.cfg = cfg
	a.logger = logging.New(os.Stderr, cfg.LogLevel)

	return nil
}

func (a *app) channelOptions(extra ...client.OptionModifier) []client.OptionModifier {
	opts := []client.OptionModifier{
		client.WithLogger(a.logger),
		client.WithMaxRetryAttempts(a.cfg.MaxReconnectAttempts),
		client.WithBackoffUnit(a.cfg.BackoffUnit),
	}
	if a.cfg.PingInterval > 0 {
		opts = append(opts, client.WithPingInterval(a.cfg.PingInterval))
	}
	return append(opts, extra...)
}

// watchStatuses logs the status updates of a channel until ctx is done
func (a *app) watchStatuses(ctx context.Context, statuses <-chan client.Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-statuses:
			switch s {
			case client.StatusExhausted:
				a.logger.Warn("gave up reconnecting", "status", s)
			default:
				a.logger.Info("channel status", "status", s)
			}
		}
	}
}
