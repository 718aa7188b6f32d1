// Package watch runs one polling loop per seat category, keeping a browser
// session alive against the booking site and announcing availability
// transitions.
package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/automator"
	"github.com/finnappt/seatwatch/internal/identity"
	"github.com/finnappt/seatwatch/internal/metrics"
	"github.com/finnappt/seatwatch/internal/notify"
	"github.com/finnappt/seatwatch/internal/proxy"
	"github.com/finnappt/seatwatch/internal/tracker"
)

// Session is one registered, logged-in browser sitting on the calendar page.
// The supervisor owns its lifecycle; automator.Automator plus browser.Session
// is the production implementation.
type Session interface {
	CreateAccount(ctx context.Context, id identity.Identity) error
	Login(ctx context.Context, id identity.Identity) (string, error)
	NavigateToCalendar(ctx context.Context, cat identity.SeatCategory, applicant identity.ApplicantInfo) error
	PollCalendarDates(ctx context.Context) ([]string, error)
	Close()
}

// SessionFactory opens a fresh browser session through the given proxy.
type SessionFactory func(ctx context.Context, proxyAddr string) (Session, error)

// Config tunes the supervisor.
type Config struct {
	Categories []identity.SeatCategory
	Applicant  identity.ApplicantInfo
	// LoginURL is included in availability announcements so subscribers
	// can jump straight to booking.
	LoginURL string
	// PollInterval is the pause between calendar polls within a session.
	PollInterval time.Duration
	// SessionRetryDelay is the pause before a replacement session starts.
	SessionRetryDelay time.Duration
	// MaxTransientFailures ends a session after this many consecutive
	// transient poll errors.
	MaxTransientFailures int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 20 * time.Second
	}
	if c.SessionRetryDelay <= 0 {
		c.SessionRetryDelay = time.Minute
	}
	if c.MaxTransientFailures <= 0 {
		c.MaxTransientFailures = 3
	}
	return c
}

// Supervisor runs one watcher goroutine per category and replaces sessions
// as they expire.
type Supervisor struct {
	factory  SessionFactory
	proxies  *proxy.Pool
	track    *tracker.Tracker
	notifier notify.Notifier
	logger   *zap.Logger
	cfg      Config
}

// New builds a supervisor.
func New(factory SessionFactory, proxies *proxy.Pool, track *tracker.Tracker,
	notifier notify.Notifier, logger *zap.Logger, cfg Config) *Supervisor {
	return &Supervisor{
		factory:  factory,
		proxies:  proxies,
		track:    track,
		notifier: notifier,
		logger:   logger.Named("watch"),
		cfg:      cfg.withDefaults(),
	}
}

// Run watches every configured category until ctx ends.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, cat := range s.cfg.Categories {
		wg.Add(1)
		go func(cat identity.SeatCategory) {
			defer wg.Done()
			s.watchCategory(ctx, cat)
		}(cat)
	}
	wg.Wait()
}

// watchCategory opens sessions back to back, one at a time, for a single
// category.
func (s *Supervisor) watchCategory(ctx context.Context, cat identity.SeatCategory) {
	logger := s.logger.With(zap.String("category", cat.Name()))
	for {
		outcome := s.runSession(ctx, cat, logger)
		metrics.ObserveSession(cat.Name(), outcome)
		if ctx.Err() != nil {
			return
		}
		logger.Info("session ended, scheduling replacement",
			zap.String("outcome", outcome),
			zap.Duration("delay", s.cfg.SessionRetryDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.SessionRetryDelay):
		}
	}
}

// runSession takes one session from registration through polling until it
// dies, and returns the outcome label for metrics.
func (s *Supervisor) runSession(ctx context.Context, cat identity.SeatCategory, logger *zap.Logger) string {
	waitStart := time.Now()
	proxyAddr, err := s.proxies.Checkout(ctx)
	if err != nil {
		return "no_proxy"
	}
	metrics.ObserveProxyCheckoutWait(time.Since(waitStart))
	defer s.proxies.Return(proxyAddr)

	sess, err := s.factory(ctx, proxyAddr)
	if err != nil {
		logger.Error("opening browser session failed", zap.Error(err))
		return "browser_failed"
	}
	metrics.IncActiveSessions()
	defer metrics.DecActiveSessions()
	defer sess.Close()

	id, err := identity.New()
	if err != nil {
		logger.Error("generating identity failed", zap.Error(err))
		return "identity_failed"
	}
	logger.Info("starting session", zap.String("email", id.Email), zap.String("proxy", proxyAddr))

	if err := sess.CreateAccount(ctx, id); err != nil {
		return s.reportFailure(ctx, cat, logger, "registration", err)
	}
	if _, err := sess.Login(ctx, id); err != nil {
		return s.reportFailure(ctx, cat, logger, "login", err)
	}
	if err := sess.NavigateToCalendar(ctx, cat, s.cfg.Applicant); err != nil {
		return s.reportFailure(ctx, cat, logger, "calendar navigation", err)
	}

	return s.pollLoop(ctx, cat, sess, logger)
}

// pollLoop polls the calendar until the session dies or ctx ends.
func (s *Supervisor) pollLoop(ctx context.Context, cat identity.SeatCategory, sess Session, logger *zap.Logger) string {
	transient := 0
	for {
		dates, err := sess.PollCalendarDates(ctx)
		switch {
		case err == nil:
			transient = 0
			metrics.ObservePoll(cat.Name(), "ok")
			if ev := s.track.Observe(cat, dates); ev != nil {
				s.announce(ctx, ev)
			}
		default:
			if ctx.Err() != nil {
				return "canceled"
			}
			class := automator.Classify(err)
			metrics.ObservePoll(cat.Name(), class.String())
			logger.Warn("calendar poll failed",
				zap.String("class", class.String()), zap.Error(err))
			switch class {
			case automator.ClassTransient:
				transient++
				if transient >= s.cfg.MaxTransientFailures {
					logger.Info("too many transient poll failures, replacing session")
					return "transient_exhausted"
				}
			case automator.ClassSessionExpired:
				return "session_expired"
			default:
				return s.reportFailure(ctx, cat, logger, "calendar poll", err)
			}
		}

		select {
		case <-ctx.Done():
			return "canceled"
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// announce fans an availability transition out to subscribers and the shared
// channel.
func (s *Supervisor) announce(ctx context.Context, ev *tracker.Event) {
	metrics.ObserveAvailabilityEvent(ev.Category.Name(), ev.Kind.String())
	msg := s.eventMessage(ev)
	if err := s.notifier.SendBroadcast(ctx, msg); err != nil {
		metrics.ObserveNotification("broadcast", "failed")
		s.logger.Error("broadcast failed", zap.Error(err))
	} else {
		metrics.ObserveNotification("broadcast", "sent")
	}
	if err := s.notifier.SendChat(ctx, msg); err != nil {
		metrics.ObserveNotification("chat", "failed")
		s.logger.Error("chat announcement failed", zap.Error(err))
	} else {
		metrics.ObserveNotification("chat", "sent")
	}
}

func (s *Supervisor) eventMessage(ev *tracker.Event) string {
	if ev.Kind == tracker.Stopped {
		return fmt.Sprintf("%s seats stopped being available", ev.Category.Name())
	}
	return fmt.Sprintf("%s found seats: %s. Go to %s to try to reserve a seat",
		ev.Category.Name(), strings.Join(ev.Dates, ", "), s.cfg.LoginURL)
}

// reportFailure tells the operator about a session-ending failure and maps
// it to an outcome label.
func (s *Supervisor) reportFailure(ctx context.Context, cat identity.SeatCategory, logger *zap.Logger, step string, err error) string {
	if ctx.Err() != nil {
		return "canceled"
	}
	class := automator.Classify(err)
	logger.Error("session failed",
		zap.String("step", step), zap.String("class", class.String()), zap.Error(err))
	if class == automator.ClassRejected || class == automator.ClassFatal {
		msg := fmt.Sprintf("%s watcher: %s failed (%s): %v", cat.Name(), step, class, err)
		if nerr := s.notifier.SendOperator(ctx, msg); nerr != nil {
			s.logger.Error("operator notification failed", zap.Error(nerr))
		}
	}
	return class.String()
}
