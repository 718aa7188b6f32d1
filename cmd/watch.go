package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/finnappt/seatwatch/internal/automator"
	"github.com/finnappt/seatwatch/internal/browser"
	"github.com/finnappt/seatwatch/internal/captcha"
	"github.com/finnappt/seatwatch/internal/config"
	"github.com/finnappt/seatwatch/internal/identity"
	"github.com/finnappt/seatwatch/internal/logging"
	"github.com/finnappt/seatwatch/internal/metrics"
	"github.com/finnappt/seatwatch/internal/notify"
	"github.com/finnappt/seatwatch/internal/proxy"
	"github.com/finnappt/seatwatch/internal/tracker"
	"github.com/finnappt/seatwatch/internal/watch"
)

// directConnection is the pool placeholder used when no proxies are
// configured.
const directConnection = "direct"

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the availability watcher for the configured categories.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return runWatch(ctx, cfg, logger)
		},
	}
}

func runWatch(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build subscriber store: %w", err)
	}

	notifier, err := notify.NewTelegram(notify.TelegramConfig{
		Token:          cfg.Telegram.Token,
		OperatorChatID: cfg.Telegram.OperatorChatID,
		ChatID:         cfg.Telegram.ChatID,
		LogChatID:      cfg.Telegram.LogChatID,
		Disabled:       cfg.Telegram.Disabled || cfg.Watch.NotificationsOff,
	}, store, logger)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	if cfg.Telegram.LogChatID != 0 {
		// Mirror warnings and errors to the Telegram log channel. The
		// send runs off the logging path, and failures go to the
		// unmirrored root so they cannot loop back into the channel.
		root := logger
		logger = logging.WithMirror(logger, zapcore.WarnLevel, func(line string) {
			go func() {
				sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				if err := notifier.SendLog(sendCtx, line); err != nil {
					root.Debug("log channel mirror failed", zap.Error(err))
				}
			}()
		})
	}

	solver, err := newSolver(cfg, logger)
	if err != nil {
		return err
	}

	categories, err := parseCategories(cfg.Watch.Categories)
	if err != nil {
		return err
	}

	trackerOpts := []tracker.Option{
		tracker.WithStateStore(tracker.NewFileStateStore(cfg.Watch.StateFile)),
	}
	if cfg.Watch.RearmOnChange {
		trackerOpts = append(trackerOpts, tracker.WithRearmOnChange())
	}
	track := tracker.New(logger, trackerOpts...)

	addrs := cfg.Proxies.Addrs
	if len(addrs) == 0 {
		logger.Info("no proxies configured, sessions will connect directly")
		addrs = []string{directConnection}
	}
	pool := proxy.NewPool(addrs)

	automatorCfg := automator.Config{
		LoginURL:        cfg.Provider.LoginURL,
		RegisterURL:     cfg.Provider.RegisterURL,
		HomeURL:         cfg.Provider.HomeURL,
		CalendarURL:     cfg.Provider.CalendarURL,
		LocationID:      cfg.Provider.LocationID,
		ExtraMonthViews: cfg.Watch.ExtraMonthViews,
		MaxFormAttempts: cfg.Watch.MaxFormAttempts,
		CaptchaDir:      cfg.Watch.CaptchaImageDir,
		ScreenshotDir:   cfg.Watch.ScreenshotDir,
	}
	browserCfg := browser.Config{
		Headless:    cfg.Browser.Headless,
		UserAgent:   cfg.Browser.UserAgent,
		NavTimeout:  time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
		StepTimeout: time.Duration(cfg.Browser.StepTimeoutSc) * time.Second,
	}

	factory := func(ctx context.Context, proxyAddr string) (watch.Session, error) {
		bcfg := browserCfg
		if proxyAddr != directConnection {
			bcfg.ProxyAddr = proxyAddr
		}
		sess, err := browser.New(ctx, bcfg, logger)
		if err != nil {
			return nil, err
		}
		return &liveSession{
			Automator: automator.New(sess, solver, notifier, logger, automatorCfg),
			browser:   sess,
		}, nil
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Port, logger)
	}

	sup := watch.New(factory, pool, track, notifier, logger, watch.Config{
		Categories:           categories,
		Applicant:            applicantFromConfig(cfg.Applicant),
		LoginURL:             cfg.Provider.LoginURL,
		PollInterval:         cfg.PollInterval(),
		SessionRetryDelay:    cfg.SessionRetryDelay(),
		MaxTransientFailures: cfg.Watch.MaxTransientFails,
	})

	logger.Info("watcher starting", zap.Int("categories", len(categories)))
	sup.Run(ctx)
	logger.Info("watcher stopped")
	return nil
}

// liveSession pairs an automator with the browser it drives so the
// supervisor can close both as one unit.
type liveSession struct {
	*automator.Automator
	browser *browser.Session
}

func (s *liveSession) Close() { s.browser.Close() }

func newSolver(cfg config.Config, logger *zap.Logger) (captcha.Solver, error) {
	switch cfg.Captcha.Provider {
	case "anticaptcha":
		return captcha.NewAntiCaptcha(captcha.AntiCaptchaConfig{
			APIKey:        cfg.Captcha.APIKey,
			BadCaptchaDir: cfg.Watch.BadCaptchaImgDir,
		}, logger)
	default:
		return captcha.NewTwoCaptcha(captcha.TwoCaptchaConfig{
			APIKey:        cfg.Captcha.APIKey,
			BadCaptchaDir: cfg.Watch.BadCaptchaImgDir,
		}, logger)
	}
}

func parseCategories(names []string) ([]identity.SeatCategory, error) {
	out := make([]identity.SeatCategory, 0, len(names))
	for _, name := range names {
		cat, err := identity.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

func applicantFromConfig(a config.ApplicantConfig) identity.ApplicantInfo {
	return identity.ApplicantInfo{
		PassportNumber: a.PassportNumber,
		DateOfBirth:    a.DateOfBirth,
		PassportExpiry: a.PassportExpiry,
		Nationality:    a.Nationality,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Gender:         identity.Gender(a.Gender),
		DialCode:       a.DialCode,
		ContactNumber:  a.ContactNumber,
		Email:          a.Email,
	}
}

func serveMetrics(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint failed", zap.Error(err))
	}
}
