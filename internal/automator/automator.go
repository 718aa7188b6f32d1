package automator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/captcha"
	"github.com/finnappt/seatwatch/internal/identity"
	"github.com/finnappt/seatwatch/internal/notify"
)

// Provider page URLs. The login URL carries an opaque query the provider
// issues per mission; it is configurable because it rotates.
const (
	defaultLoginURL    = "https://online.vfsglobal.com/FinlandAppt/Account/RegisteredLogin"
	defaultRegisterURL = "https://online.vfsglobal.com/FinlandAppt/Account/RegisterUser"
	defaultHomeURL     = "https://online.vfsglobal.com/FinlandAppt/Home/Index"
	defaultCalendarURL = "https://online.vfsglobal.com/FinlandAppt/Calendar/FinalCalendar"
)

// Config tunes the automator.
type Config struct {
	LoginURL    string
	RegisterURL string
	HomeURL     string
	CalendarURL string

	// LocationID is the option value of the embassy location dropdown.
	LocationID string
	// ExtraMonthViews is how many "next month" pages to read past the
	// current one when polling the calendar.
	ExtraMonthViews int
	// MaxCaptchaAttempts bounds solve calls per form submission.
	MaxCaptchaAttempts int
	// MaxFormAttempts bounds whole-form retries when the provider rejects
	// the captcha answer.
	MaxFormAttempts int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// SettleDelay absorbs the provider's slow client-side scripts after
	// navigations and dropdown changes.
	SettleDelay time.Duration

	CaptchaDir    string
	ScreenshotDir string
}

func (c Config) withDefaults() Config {
	if c.LoginURL == "" {
		c.LoginURL = defaultLoginURL
	}
	if c.RegisterURL == "" {
		c.RegisterURL = defaultRegisterURL
	}
	if c.HomeURL == "" {
		c.HomeURL = defaultHomeURL
	}
	if c.CalendarURL == "" {
		c.CalendarURL = defaultCalendarURL
	}
	if c.LocationID == "" {
		c.LocationID = "33"
	}
	if c.ExtraMonthViews <= 0 {
		c.ExtraMonthViews = 2
	}
	if c.MaxCaptchaAttempts <= 0 {
		c.MaxCaptchaAttempts = 5
	}
	if c.MaxFormAttempts <= 0 {
		c.MaxFormAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	if c.CaptchaDir == "" {
		c.CaptchaDir = "captchas"
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "screenshots"
	}
	return c
}

// Automator walks one session through the provider flow.
type Automator struct {
	page     Page
	solver   captcha.Solver
	notifier notify.Notifier
	logger   *zap.Logger
	cfg      Config
}

// New builds an automator over an open page. The captcha and screenshot
// directories are created here so a clean deployment can capture images on
// its very first session.
func New(page Page, solver captcha.Solver, notifier notify.Notifier, logger *zap.Logger, cfg Config) *Automator {
	a := &Automator{
		page:     page,
		solver:   solver,
		notifier: notifier,
		logger:   logger.Named("automator"),
		cfg:      cfg.withDefaults(),
	}
	for _, dir := range []string{a.cfg.CaptchaDir, a.cfg.ScreenshotDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			a.logger.Error("creating image directory failed",
				zap.String("dir", dir), zap.Error(err))
		}
	}
	return a
}

// CreateAccount registers a new throwaway account. When the provider rejects
// the captcha answer the whole registration is retried with the same
// identity, bounded by MaxFormAttempts.
func (a *Automator) CreateAccount(ctx context.Context, id identity.Identity) error {
	for attempt := 1; attempt <= a.cfg.MaxFormAttempts; attempt++ {
		err := a.registerOnce(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errCaptchaRejected) {
			return err
		}
		a.logger.Info("provider rejected registration captcha, retrying",
			zap.Int("attempt", attempt))
		if serr := a.page.Sleep(ctx, a.cfg.RetryDelay); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("create account: %w after %d attempts",
		ErrFormRetriesExhausted, a.cfg.MaxFormAttempts)
}

func (a *Automator) registerOnce(ctx context.Context, id identity.Identity) error {
	if err := a.page.Navigate(ctx, a.cfg.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := a.page.ClickAndNavigate(ctx, "#NewUser"); err != nil {
		return fmt.Errorf("open registration page: %w", err)
	}
	if err := a.page.Sleep(ctx, a.cfg.SettleDelay); err != nil {
		return err
	}

	imagePath := filepath.Join(a.cfg.CaptchaDir, "register-"+uuid.NewString()+".png")
	if err := a.page.ElementScreenshot(ctx, "#CaptchaImage", imagePath); err != nil {
		return fmt.Errorf("capture captcha image: %w", err)
	}

	fields := []struct{ sel, value string }{
		{"#FirstName", id.FirstName},
		{"#LastName", id.LastName},
		{"#validateEmailId", id.Email},
		{"#ContactNo", id.PhoneNumber},
		{"#Password", id.Password},
		{"#ConfirmPassword", id.Password},
	}
	for _, f := range fields {
		if err := a.page.SetValue(ctx, f.sel, f.value); err != nil {
			return fmt.Errorf("fill %s: %w", f.sel, err)
		}
	}
	if err := a.page.Click(ctx, "#IsChecked"); err != nil {
		return fmt.Errorf("accept terms: %w", err)
	}
	// A promo dialog covers the form on some days.
	if ok, _ := a.page.Exists(ctx, "span.ui-button-icon-primary.ui-icon.ui-icon-closethick"); ok {
		_ = a.page.Click(ctx, "span.ui-button-icon-primary.ui-icon.ui-icon-closethick")
	}

	solved, err := a.solveCaptcha(ctx, imagePath)
	if err != nil {
		return err
	}
	if err := a.page.SetValue(ctx, "#CaptchaInputText", solved.Answer); err != nil {
		return fmt.Errorf("fill captcha answer: %w", err)
	}
	if err := a.page.Sleep(ctx, a.cfg.SettleDelay); err != nil {
		return err
	}
	if err := a.page.ClickAndNavigate(ctx, `input[type="submit"]`); err != nil {
		return fmt.Errorf("submit registration: %w", err)
	}

	loc, err := a.page.Location(ctx)
	if err != nil {
		return fmt.Errorf("read url after registration: %w", err)
	}
	if ClassifyURL(loc) == StateRegister {
		// Still on the form: a validation error happened.
		reason := a.validationErrors(ctx)
		switch {
		case strings.Contains(reason, "Invalid reCAPTCHA"):
			a.solver.ReportBad(ctx, solved.ID, imagePath)
			return errCaptchaRejected
		case reason != "":
			return &RegistrationRejectedError{Reason: reason}
		default:
			a.reportUnknownPage(ctx, "registration stuck with no validation error", loc)
			return &UnexpectedPageStateError{URL: loc}
		}
	}

	content, err := a.page.Text(ctx, ".SubContainer")
	if err != nil || !strings.Contains(content, "Registration done successfully") {
		a.reportUnknownPage(ctx, "registration landed on an unrecognized page", loc)
		return &UnexpectedPageStateError{URL: loc}
	}

	a.solver.ReportGood(ctx, solved.ID)
	a.logger.Info("account registered", zap.String("email", id.Email))
	return nil
}

// Login authenticates and returns the session cookie string. When the
// provider rejects the verification words, cookies and cache are cleared and
// the login restarts from scratch, bounded by MaxFormAttempts.
func (a *Automator) Login(ctx context.Context, id identity.Identity) (string, error) {
	for attempt := 1; attempt <= a.cfg.MaxFormAttempts; attempt++ {
		cookieStr, err := a.loginOnce(ctx, id)
		if err == nil {
			return cookieStr, nil
		}
		if !errors.Is(err, errCaptchaRejected) {
			return "", err
		}
		a.logger.Info("verification words rejected, clearing session and retrying",
			zap.Int("attempt", attempt))
		if cerr := a.page.ClearSessionData(ctx); cerr != nil {
			return "", fmt.Errorf("clear session data: %w", cerr)
		}
		if serr := a.page.Sleep(ctx, a.cfg.RetryDelay); serr != nil {
			return "", serr
		}
	}
	return "", fmt.Errorf("login: %w after %d attempts",
		ErrFormRetriesExhausted, a.cfg.MaxFormAttempts)
}

func (a *Automator) loginOnce(ctx context.Context, id identity.Identity) (string, error) {
	if err := a.page.Navigate(ctx, a.cfg.LoginURL); err != nil {
		return "", fmt.Errorf("open login page: %w", err)
	}

	imagePath := filepath.Join(a.cfg.CaptchaDir, "login-"+uuid.NewString()+".png")
	if err := a.page.ElementScreenshot(ctx, "#CaptchaImage", imagePath); err != nil {
		return "", fmt.Errorf("capture captcha image: %w", err)
	}

	solved, err := a.solveCaptcha(ctx, imagePath)
	if err != nil {
		return "", err
	}

	if err := a.page.SetValue(ctx, "#EmailId", id.Email); err != nil {
		return "", fmt.Errorf("fill email: %w", err)
	}
	if err := a.page.SetValue(ctx, "#Password", id.Password); err != nil {
		return "", fmt.Errorf("fill password: %w", err)
	}
	if err := a.page.Sleep(ctx, a.cfg.SettleDelay); err != nil {
		return "", err
	}
	if err := a.page.SetValue(ctx, "#CaptchaInputText", solved.Answer); err != nil {
		return "", fmt.Errorf("fill captcha answer: %w", err)
	}
	if err := a.page.ClickAndNavigate(ctx, ".submitbtn"); err != nil {
		return "", fmt.Errorf("submit login: %w", err)
	}

	loc, err := a.page.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("read url after login: %w", err)
	}
	if ClassifyURL(loc) == StateHome {
		cookieStr, err := a.page.CookieString(ctx)
		if err != nil {
			return "", fmt.Errorf("collect cookies: %w", err)
		}
		a.solver.ReportGood(ctx, solved.ID)
		a.logger.Info("logged in", zap.String("email", id.Email))
		return cookieStr, nil
	}

	reason := a.validationErrors(ctx)
	switch {
	case strings.Contains(reason, "verification words are incorrect"):
		a.solver.ReportBad(ctx, solved.ID, imagePath)
		return "", errCaptchaRejected
	case reason != "":
		return "", &LoginFailedError{Reason: reason}
	default:
		a.reportUnknownPage(ctx, "login failed with no validation error", loc)
		return "", &LoginFailedError{Reason: "no validation error shown"}
	}
}

// solveCaptcha calls the solver in a bounded retry loop with a fixed pause
// between failures.
func (a *Automator) solveCaptcha(ctx context.Context, imagePath string) (captcha.Captcha, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxCaptchaAttempts; attempt++ {
		solved, err := a.solver.Solve(ctx, imagePath)
		if err == nil {
			return solved, nil
		}
		lastErr = err
		a.logger.Warn("captcha solve failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			return captcha.Captcha{}, err
		}
		if serr := a.page.Sleep(ctx, a.cfg.RetryDelay); serr != nil {
			return captcha.Captcha{}, serr
		}
	}
	a.operatorf(ctx, "captcha solving failed %d times in a row: %v",
		a.cfg.MaxCaptchaAttempts, lastErr)
	return captcha.Captcha{}, fmt.Errorf("%w: %v", ErrCaptchaExhausted, lastErr)
}

// validationErrors reads the form's validation summary, if present.
func (a *Automator) validationErrors(ctx context.Context) string {
	ok, err := a.page.Exists(ctx, ".validation-summary-errors")
	if err != nil || !ok {
		return ""
	}
	text, err := a.page.Text(ctx, ".validation-summary-errors")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// reportUnknownPage ships a diagnostic screenshot to the operator.
func (a *Automator) reportUnknownPage(ctx context.Context, what, loc string) {
	shot := filepath.Join(a.cfg.ScreenshotDir, "unexpected-"+uuid.NewString()+".png")
	if err := a.page.Screenshot(ctx, shot); err != nil {
		a.logger.Error("diagnostic screenshot failed", zap.Error(err))
		a.operatorf(ctx, "%s (url %s); screenshot also failed: %v", what, loc, err)
		return
	}
	a.operatorf(ctx, "%s (url %s)", what, loc)
	if err := a.notifier.SendImageOperator(ctx, shot); err != nil {
		a.logger.Error("sending diagnostic screenshot failed", zap.Error(err))
	}
}

func (a *Automator) operatorf(ctx context.Context, format string, args ...any) {
	if err := a.notifier.SendOperator(ctx, fmt.Sprintf(format, args...)); err != nil {
		a.logger.Error("operator notification failed", zap.Error(err))
	}
}
