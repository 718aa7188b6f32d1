package automator

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/captcha"
	"github.com/finnappt/seatwatch/internal/identity"
)

// fakePage is a scripted browser page. Handlers mutate its state; everything
// the automator reads back comes from the maps.
type fakePage struct {
	loc    string
	texts  map[string]string
	exists map[string]bool
	html   map[string]string

	clicks       []string
	setValues    map[string]string
	sleeps       int
	cleared      int
	reloads      int
	screenshots  []string
	onNavigate   func(url string)
	onClickNav   func(sel string)
	onClick      func(sel string)
	onReload     func()
	cookieString string
}

func newFakePage() *fakePage {
	return &fakePage{
		texts:     map[string]string{},
		exists:    map[string]bool{},
		html:      map[string]string{},
		setValues: map[string]string{},
	}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	if p.onNavigate != nil {
		p.onNavigate(url)
	} else {
		p.loc = url
	}
	return nil
}

func (p *fakePage) Reload(context.Context) error {
	p.reloads++
	if p.onReload != nil {
		p.onReload()
	}
	return nil
}

func (p *fakePage) Location(context.Context) (string, error) { return p.loc, nil }

func (p *fakePage) SetValue(_ context.Context, sel, value string) error {
	p.setValues[sel] = value
	return nil
}

func (p *fakePage) SelectOption(_ context.Context, sel, value string) error {
	p.setValues[sel] = value
	return nil
}

func (p *fakePage) Click(_ context.Context, sel string) error {
	p.clicks = append(p.clicks, sel)
	if p.onClick != nil {
		p.onClick(sel)
	}
	return nil
}

func (p *fakePage) ClickAndNavigate(_ context.Context, sel string) error {
	p.clicks = append(p.clicks, sel)
	if p.onClickNav != nil {
		p.onClickNav(sel)
	}
	return nil
}

func (p *fakePage) ClickLinkByText(_ context.Context, text string) error {
	p.clicks = append(p.clicks, "link:"+text)
	return nil
}

func (p *fakePage) Text(_ context.Context, sel string) (string, error) {
	return p.texts[sel], nil
}

func (p *fakePage) OuterHTML(_ context.Context, sel string) (string, error) {
	return p.html[sel], nil
}

func (p *fakePage) Exists(_ context.Context, sel string) (bool, error) {
	return p.exists[sel], nil
}

func (p *fakePage) EnableElement(_ context.Context, sel string) error {
	p.clicks = append(p.clicks, "enable:"+sel)
	return nil
}

func (p *fakePage) ElementScreenshot(_ context.Context, _, path string) error {
	p.screenshots = append(p.screenshots, path)
	return os.WriteFile(path, []byte("png"), 0o640)
}

func (p *fakePage) Screenshot(_ context.Context, path string) error {
	p.screenshots = append(p.screenshots, path)
	return nil
}

func (p *fakePage) CookieString(context.Context) (string, error) {
	return p.cookieString, nil
}

func (p *fakePage) ClearSessionData(context.Context) error {
	p.cleared++
	return nil
}

func (p *fakePage) Sleep(context.Context, time.Duration) error {
	p.sleeps++
	return nil
}

type fakeSolver struct {
	answers []captcha.Captcha
	errs    []error
	solves  int
	good    []string
	bad     []string
}

func (s *fakeSolver) Solve(context.Context, string) (captcha.Captcha, error) {
	i := s.solves
	s.solves++
	if i < len(s.errs) && s.errs[i] != nil {
		return captcha.Captcha{}, s.errs[i]
	}
	if i < len(s.answers) {
		return s.answers[i], nil
	}
	return captcha.Captcha{Answer: "ABCDE", ID: "task-default"}, nil
}

func (s *fakeSolver) ReportGood(_ context.Context, id string) { s.good = append(s.good, id) }

func (s *fakeSolver) ReportBad(_ context.Context, id, _ string) { s.bad = append(s.bad, id) }

type fakeNotifier struct {
	operator []string
	images   []string
}

func (n *fakeNotifier) SendOperator(_ context.Context, msg string) error {
	n.operator = append(n.operator, msg)
	return nil
}
func (n *fakeNotifier) SendChat(context.Context, string) error      { return nil }
func (n *fakeNotifier) SendBroadcast(context.Context, string) error { return nil }
func (n *fakeNotifier) SendLog(context.Context, string) error       { return nil }
func (n *fakeNotifier) SendImageOperator(_ context.Context, path string) error {
	n.images = append(n.images, path)
	return nil
}
func (n *fakeNotifier) SendImageChat(context.Context, string) error { return nil }

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		CaptchaDir:    dir,
		ScreenshotDir: dir,
		RetryDelay:    time.Millisecond,
		SettleDelay:   time.Millisecond,
	}
}

func testIdentity() identity.Identity {
	return identity.Identity{
		FirstName:   "Maija",
		LastName:    "Virtanen",
		Email:       "maija.virtanen1234@gmail.com",
		PhoneNumber: "0401234567",
		Password:    "s3cr3t-Pass!",
	}
}

func TestCreateAccountSuccess(t *testing.T) {
	page := newFakePage()
	page.onClickNav = func(sel string) {
		switch sel {
		case "#NewUser":
			page.loc = defaultRegisterURL
		case `input[type="submit"]`:
			page.loc = "https://online.vfsglobal.com/FinlandAppt/Account/RegistrationConfirm"
			page.texts[".SubContainer"] = "Registration done successfully. Check your email."
		}
	}
	solver := &fakeSolver{answers: []captcha.Captcha{{Answer: "K9X2M", ID: "task-1"}}}
	notifier := &fakeNotifier{}
	a := New(page, solver, notifier, zap.NewNop(), testConfig(t))

	err := a.CreateAccount(context.Background(), testIdentity())
	require.NoError(t, err)

	assert.Equal(t, "K9X2M", page.setValues["#CaptchaInputText"])
	assert.Equal(t, "maija.virtanen1234@gmail.com", page.setValues["#validateEmailId"])
	assert.Equal(t, []string{"task-1"}, solver.good)
	assert.Empty(t, solver.bad)
	assert.Empty(t, notifier.operator)
}

func TestCreateAccountCreatesImageDirsOnCleanTree(t *testing.T) {
	// Default Config points at relative captchas/ and screenshots/
	// directories; a fresh deployment has neither.
	t.Chdir(t.TempDir())

	page := newFakePage()
	page.onClickNav = func(sel string) {
		switch sel {
		case "#NewUser":
			page.loc = defaultRegisterURL
		case `input[type="submit"]`:
			page.loc = "https://online.vfsglobal.com/FinlandAppt/Account/RegistrationConfirm"
			page.texts[".SubContainer"] = "Registration done successfully. Check your email."
		}
	}
	solver := &fakeSolver{answers: []captcha.Captcha{{Answer: "K9X2M", ID: "task-1"}}}
	a := New(page, solver, &fakeNotifier{}, zap.NewNop(), Config{
		RetryDelay:  time.Millisecond,
		SettleDelay: time.Millisecond,
	})

	err := a.CreateAccount(context.Background(), testIdentity())
	require.NoError(t, err)

	require.Len(t, page.screenshots, 1)
	_, err = os.Stat(page.screenshots[0])
	require.NoError(t, err, "captcha image should land in the default directory")
	for _, dir := range []string{"captchas", "screenshots"} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestCreateAccountCaptchaRejectedRetriesBounded(t *testing.T) {
	page := newFakePage()
	page.onClickNav = func(sel string) {
		if sel == "#NewUser" {
			page.loc = defaultRegisterURL
		}
		// The submit leaves the page on the registration form with a
		// captcha complaint every time.
		page.exists[".validation-summary-errors"] = true
		page.texts[".validation-summary-errors"] = "Invalid reCAPTCHA request"
	}
	solver := &fakeSolver{}
	a := New(page, solver, &fakeNotifier{}, zap.NewNop(), testConfig(t))

	err := a.CreateAccount(context.Background(), testIdentity())
	require.ErrorIs(t, err, ErrFormRetriesExhausted)

	assert.Equal(t, 5, solver.solves)
	assert.Len(t, solver.bad, 5)
	assert.Empty(t, solver.good)
}

func TestCreateAccountValidationFailureIsNotRetried(t *testing.T) {
	page := newFakePage()
	page.onClickNav = func(sel string) {
		if sel == "#NewUser" {
			page.loc = defaultRegisterURL
		}
		page.exists[".validation-summary-errors"] = true
		page.texts[".validation-summary-errors"] = "Email Id already exists"
	}
	solver := &fakeSolver{}
	a := New(page, solver, &fakeNotifier{}, zap.NewNop(), testConfig(t))

	err := a.CreateAccount(context.Background(), testIdentity())
	var rejected *RegistrationRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "already exists")
	assert.Equal(t, 1, solver.solves)
}

func TestCreateAccountSolverExhaustionNotifiesOperator(t *testing.T) {
	page := newFakePage()
	page.onClickNav = func(sel string) {
		if sel == "#NewUser" {
			page.loc = defaultRegisterURL
		}
	}
	boom := errors.New("service unreachable")
	solver := &fakeSolver{errs: []error{boom, boom, boom, boom, boom}}
	notifier := &fakeNotifier{}
	a := New(page, solver, notifier, zap.NewNop(), testConfig(t))

	err := a.CreateAccount(context.Background(), testIdentity())
	require.ErrorIs(t, err, ErrCaptchaExhausted)
	assert.Equal(t, 5, solver.solves)
	require.Len(t, notifier.operator, 1)
	assert.Contains(t, notifier.operator[0], "captcha solving failed")
}

func TestLoginSuccessReturnsCookies(t *testing.T) {
	page := newFakePage()
	page.loc = defaultLoginURL
	page.cookieString = "ASP.NET_SessionId=abc123; __RequestVerificationToken=tok"
	page.onClickNav = func(sel string) {
		if sel == ".submitbtn" {
			page.loc = defaultHomeURL
		}
	}
	solver := &fakeSolver{answers: []captcha.Captcha{{Answer: "QW3RT", ID: "task-9"}}}
	a := New(page, solver, &fakeNotifier{}, zap.NewNop(), testConfig(t))

	cookies, err := a.Login(context.Background(), testIdentity())
	require.NoError(t, err)
	assert.Equal(t, "ASP.NET_SessionId=abc123; __RequestVerificationToken=tok", cookies)
	assert.Equal(t, []string{"task-9"}, solver.good)
	assert.Equal(t, "QW3RT", page.setValues["#CaptchaInputText"])
}

func TestLoginBadCaptchaClearsSessionAndRetries(t *testing.T) {
	page := newFakePage()
	page.loc = defaultLoginURL
	page.cookieString = "ASP.NET_SessionId=zzz"
	attempts := 0
	page.onClickNav = func(sel string) {
		if sel != ".submitbtn" {
			return
		}
		attempts++
		if attempts < 3 {
			page.exists[".validation-summary-errors"] = true
			page.texts[".validation-summary-errors"] = "The verification words are incorrect."
			return
		}
		page.exists[".validation-summary-errors"] = false
		page.loc = defaultHomeURL
	}
	solver := &fakeSolver{}
	a := New(page, solver, &fakeNotifier{}, zap.NewNop(), testConfig(t))

	cookies, err := a.Login(context.Background(), testIdentity())
	require.NoError(t, err)
	assert.Equal(t, "ASP.NET_SessionId=zzz", cookies)
	assert.Equal(t, 2, page.cleared)
	assert.Len(t, solver.bad, 2)
	assert.Len(t, solver.good, 1)
}

func TestLoginWrongCredentialsFailsImmediately(t *testing.T) {
	page := newFakePage()
	page.loc = defaultLoginURL
	page.onClickNav = func(sel string) {
		if sel == ".submitbtn" {
			page.exists[".validation-summary-errors"] = true
			page.texts[".validation-summary-errors"] = "Invalid email or password."
		}
	}
	a := New(page, &fakeSolver{}, &fakeNotifier{}, zap.NewNop(), testConfig(t))

	_, err := a.Login(context.Background(), testIdentity())
	var failed *LoginFailedError
	require.ErrorAs(t, err, &failed)
	assert.Zero(t, page.cleared)
}
