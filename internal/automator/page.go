// Package automator drives one browser session through the provider's
// registration, login, and calendar flow, translating page state into typed
// outcomes.
package automator

import (
	"context"
	"strings"
	"time"
)

// Page is the slice of browser behavior the automator needs. browser.Session
// implements it; tests drive the state machine with a scripted fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Location(ctx context.Context) (string, error)
	SetValue(ctx context.Context, sel, value string) error
	SelectOption(ctx context.Context, sel, value string) error
	Click(ctx context.Context, sel string) error
	ClickAndNavigate(ctx context.Context, sel string) error
	ClickLinkByText(ctx context.Context, text string) error
	Text(ctx context.Context, sel string) (string, error)
	OuterHTML(ctx context.Context, sel string) (string, error)
	Exists(ctx context.Context, sel string) (bool, error)
	EnableElement(ctx context.Context, sel string) error
	ElementScreenshot(ctx context.Context, sel, path string) error
	Screenshot(ctx context.Context, path string) error
	CookieString(ctx context.Context) (string, error)
	ClearSessionData(ctx context.Context) error
	Sleep(ctx context.Context, d time.Duration) error
}

// PageState names the provider pages the flow can land on.
type PageState int

// Recognized page states, in flow order.
const (
	StateUnknown PageState = iota
	StateLoggedOut
	StateLogin
	StateRegister
	StateHome
	StateAppointment
	StateApplicant
	StateCalendar
)

func (s PageState) String() string {
	switch s {
	case StateLoggedOut:
		return "logged-out"
	case StateLogin:
		return "login"
	case StateRegister:
		return "register"
	case StateHome:
		return "home"
	case StateAppointment:
		return "appointment"
	case StateApplicant:
		return "applicant"
	case StateCalendar:
		return "calendar"
	default:
		return "unknown"
	}
}

// ClassifyURL maps a URL onto the page-flow state machine. The provider has
// no API; URL conventions are the only reliable signal it exposes.
func ClassifyURL(raw string) PageState {
	switch {
	case strings.Contains(raw, "?ReturnUrl=") || strings.Contains(raw, "&ReturnUrl="):
		// Login redirect marker: the session silently expired.
		return StateLoggedOut
	case strings.Contains(raw, "/Account/RegisteredLogin"):
		return StateLogin
	case strings.Contains(raw, "/Account/RegisterUser"):
		return StateRegister
	case strings.Contains(raw, "/Home/Index"):
		return StateHome
	case strings.Contains(raw, "/Calendar/FinalCalendar"):
		return StateCalendar
	case strings.Contains(raw, "/Appointment/Applicant"):
		return StateApplicant
	case strings.Contains(raw, "/Appointment/"):
		return StateAppointment
	default:
		return StateUnknown
	}
}
