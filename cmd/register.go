package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finnappt/seatwatch/internal/automator"
	"github.com/finnappt/seatwatch/internal/browser"
	"github.com/finnappt/seatwatch/internal/identity"
	"github.com/finnappt/seatwatch/internal/notify"
)

// newRegisterCmd registers a single account and prints its credentials, for
// manual booking when the watcher has announced open dates.
func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register one account on the booking site and print its credentials.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			solver, err := newSolver(cfg, logger)
			if err != nil {
				return err
			}

			var proxyAddr string
			if len(cfg.Proxies.Addrs) > 0 {
				proxyAddr = cfg.Proxies.Addrs[0]
			}
			sess, err := browser.New(ctx, browser.Config{
				Headless:    cfg.Browser.Headless,
				ProxyAddr:   proxyAddr,
				UserAgent:   cfg.Browser.UserAgent,
				NavTimeout:  time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
				StepTimeout: time.Duration(cfg.Browser.StepTimeoutSc) * time.Second,
			}, logger)
			if err != nil {
				return fmt.Errorf("open browser: %w", err)
			}
			defer sess.Close()

			id, err := identity.New()
			if err != nil {
				return fmt.Errorf("generate identity: %w", err)
			}

			auto := automator.New(sess, solver, notify.Discard{}, logger, automator.Config{
				LoginURL:        cfg.Provider.LoginURL,
				RegisterURL:     cfg.Provider.RegisterURL,
				HomeURL:         cfg.Provider.HomeURL,
				CalendarURL:     cfg.Provider.CalendarURL,
				MaxFormAttempts: cfg.Watch.MaxFormAttempts,
				CaptchaDir:      cfg.Watch.CaptchaImageDir,
				ScreenshotDir:   cfg.Watch.ScreenshotDir,
			})
			if err := auto.CreateAccount(ctx, id); err != nil {
				return fmt.Errorf("register account: %w", err)
			}

			fmt.Printf("email:    %s\npassword: %s\n", id.Email, id.Password)
			return nil
		},
	}
}
