// Package browser owns one headless-Chrome session per supervisor iteration.
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls how a session's browser is launched.
type Config struct {
	Headless  bool
	ProxyAddr string
	UserAgent string
	// NavTimeout bounds full page navigations.
	NavTimeout time.Duration
	// StepTimeout bounds individual DOM interactions.
	StepTimeout time.Duration
}

// Session is one browser + tab pair. It is owned by exactly one supervisor
// loop iteration and must be closed on every exit path.
type Session struct {
	cfg         Config
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	return c
}

// New launches a browser. When cfg.ProxyAddr is set all traffic egresses
// through that proxy.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ProxyAddr != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyAddr))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         cfg,
		tab:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      logger.Named("browser"),
	}

	// Warm up the browser and pin a desktop-breakpoint viewport.
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(1000, 600)); err != nil {
		s.Close()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	// The registration flow pops JS dialogs; accept them all.
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					s.logger.Debug("dialog accept failed", zap.Error(err))
				}
			}()
		}
	})

	return s, nil
}

// Close tears the tab and browser down. Safe to call more than once.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
}

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.cfg.NavTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Reload forces a reload of the current page.
func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, s.cfg.NavTimeout,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Location returns the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, s.cfg.StepTimeout, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// SetValue writes an input's value directly, the way a paste would.
func (s *Session) SetValue(ctx context.Context, sel, value string) error {
	return s.run(ctx, s.cfg.StepTimeout,
		chromedp.SetValue(sel, value, chromedp.ByQuery))
}

// SelectOption picks a dropdown option by value and fires the change event
// the page's own scripts listen for.
func (s *Session) SelectOption(ctx context.Context, sel, value string) error {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); el.value = %q;`+
			` el.dispatchEvent(new Event('change', {bubbles: true})); })()`,
		sel, value)
	return s.run(ctx, s.cfg.StepTimeout, chromedp.Evaluate(script, nil))
}

// Click clicks an element without expecting navigation.
func (s *Session) Click(ctx context.Context, sel string) error {
	return s.run(ctx, s.cfg.StepTimeout, chromedp.Click(sel, chromedp.ByQuery))
}

// ClickAndNavigate clicks an element and waits for the resulting page load.
func (s *Session) ClickAndNavigate(ctx context.Context, sel string) error {
	return s.run(ctx, s.cfg.NavTimeout,
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// ClickLinkByText clicks the first anchor whose text contains text and waits
// for the resulting page load.
func (s *Session) ClickLinkByText(ctx context.Context, text string) error {
	expr := fmt.Sprintf(`//a[contains(text(), %q)]`, text)
	return s.run(ctx, s.cfg.NavTimeout,
		chromedp.Click(expr, chromedp.BySearch),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Text returns the text content of the first element matching sel.
func (s *Session) Text(ctx context.Context, sel string) (string, error) {
	var out string
	if err := s.run(ctx, s.cfg.StepTimeout,
		chromedp.Text(sel, &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return out, nil
}

// OuterHTML returns the rendered markup of the first element matching sel.
func (s *Session) OuterHTML(ctx context.Context, sel string) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.StepTimeout,
		chromedp.OuterHTML(sel, &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Exists reports whether any element matches sel right now.
func (s *Session) Exists(ctx context.Context, sel string) (bool, error) {
	var found bool
	script := fmt.Sprintf(`document.querySelector(%q) !== null`, sel)
	if err := s.run(ctx, s.cfg.StepTimeout, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// EnableElement clears an element's disabled flag. The appointment form
// gates its continue button client-side while the provider re-validates the
// same condition on the server, so flipping it here is safe.
func (s *Session) EnableElement(ctx context.Context, sel string) error {
	script := fmt.Sprintf(`document.querySelector(%q).disabled = false`, sel)
	return s.run(ctx, s.cfg.StepTimeout, chromedp.Evaluate(script, nil))
}

// ElementScreenshot captures the first element matching sel into path.
func (s *Session) ElementScreenshot(ctx context.Context, sel, path string) error {
	var buf []byte
	if err := s.run(ctx, s.cfg.StepTimeout,
		chromedp.Screenshot(sel, &buf, chromedp.ByQuery)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// Screenshot captures the whole viewport into path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, s.cfg.StepTimeout,
		chromedp.CaptureScreenshot(&buf)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// CookieString returns the session cookies as a "name=value; ..." header.
func (s *Session) CookieString(ctx context.Context) (string, error) {
	var pairs []string
	err := s.run(ctx, s.cfg.StepTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return fmt.Errorf("get cookies: %w", err)
		}
		for _, c := range cookies {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		return nil
	}))
	if err != nil {
		return "", err
	}
	return strings.Join(pairs, "; "), nil
}

// ClearSessionData wipes cookies and cache so the next login starts clean.
func (s *Session) ClearSessionData(ctx context.Context) error {
	return s.run(ctx, s.cfg.StepTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.ClearBrowserCookies().Do(ctx); err != nil {
			return fmt.Errorf("clear cookies: %w", err)
		}
		if err := network.ClearBrowserCache().Do(ctx); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		return nil
	}))
}

// Sleep pauses inside the browser context, for pages that settle async.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("browser sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// run executes actions against the tab under a step deadline while also
// honoring the caller's context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()

	stop := forwardCancel(ctx, cancel)
	defer stop()

	return chromedp.Run(taskCtx, actions...)
}

// forwardCancel propagates cancellation from the caller's context into the
// chromedp task context, which has a different ancestry.
func forwardCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
