package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finnappt/seatwatch/internal/bot"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram subscription bot.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			store, err := newStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build subscriber store: %w", err)
			}

			b, err := bot.New(cfg.Telegram.Token, store, logger)
			if err != nil {
				return err
			}

			logger.Info("subscription bot starting")
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("subscription bot stopped")
			return nil
		},
	}
}
