// Package cmd wires the seatwatch commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/config"
	"github.com/finnappt/seatwatch/internal/logging"
	"github.com/finnappt/seatwatch/internal/metrics"
	"github.com/finnappt/seatwatch/internal/subscribers"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seatwatch",
		Short: "Watches a visa appointment site and announces open dates.",
		Long: `seatwatch keeps an eye on the Finland visa appointment calendar.
It registers throwaway accounts, logs in through the captcha, polls the
booking calendar, and tells Telegram subscribers the moment seats open up.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./seatwatch.yaml)")

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newBotCmd())
	cmd.AddCommand(newRegisterCmd())

	return cmd
}

// setup loads configuration and builds the logger every subcommand starts
// from.
func setup() (config.Config, *zap.Logger, error) {
	metrics.Init()
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("seatwatch.yaml"); err == nil {
			path = "seatwatch.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// signalContext derives a context canceled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newStore builds the configured subscriber store backend.
func newStore(ctx context.Context, cfg config.Config) (subscribers.Store, error) {
	switch cfg.Subscribers.Backend {
	case "redis":
		return subscribers.NewRedisStore(ctx, cfg.Subscribers.RedisAddr, "", cfg.Subscribers.RedisDB)
	default:
		return subscribers.NewFileStore(cfg.Subscribers.FilePath)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
