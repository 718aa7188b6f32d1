package automator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/identity"
)

// Calendar cell background styles the provider renders. Anything else is an
// unrecognized style and gets reported rather than guessed at.
const (
	styleNoSeats   = "rgb(255, 255, 255)"
	styleHoliday   = "rgb(204, 204, 204)"
	styleWeekend   = "rgb(255, 106, 106)"
	styleAvailable = "rgb(188, 237, 145)"
)

// NavigateToCalendar walks from the logged-in home page through the
// appointment and applicant forms onto the calendar page.
func (a *Automator) NavigateToCalendar(ctx context.Context, cat identity.SeatCategory, applicant identity.ApplicantInfo) error {
	loc, err := a.page.Location(ctx)
	if err != nil {
		return fmt.Errorf("read current url: %w", err)
	}
	if ClassifyURL(loc) != StateHome {
		// One re-navigate before giving up: the post-login redirect is
		// flaky and sometimes parks the session on an interstitial.
		if err := a.page.Navigate(ctx, a.cfg.HomeURL); err != nil {
			return fmt.Errorf("navigate to home page: %w", err)
		}
		if loc, err = a.page.Location(ctx); err != nil {
			return fmt.Errorf("read url after home navigation: %w", err)
		}
		if ClassifyURL(loc) != StateHome {
			return fmt.Errorf("%w: landed on %s", ErrCannotReachHome, loc)
		}
	}

	if err := a.page.ClickLinkByText(ctx, "Schedule Appointment"); err != nil {
		return fmt.Errorf("open appointment page: %w", err)
	}
	if err := a.page.Sleep(ctx, a.cfg.SettleDelay); err != nil {
		return err
	}

	if err := a.page.SelectOption(ctx, "#LocationId", a.cfg.LocationID); err != nil {
		return fmt.Errorf("select location: %w", err)
	}
	// The category dropdown is populated by a script after the location
	// changes; give it a beat before touching it.
	if err := a.page.Sleep(ctx, a.cfg.SettleDelay); err != nil {
		return err
	}
	if err := a.page.SelectOption(ctx, "#VisaCategoryId", string(cat)); err != nil {
		return fmt.Errorf("select category: %w", err)
	}
	if err := a.page.Sleep(ctx, a.cfg.SettleDelay); err != nil {
		return err
	}
	// The continue button stays disabled until the provider's own checks
	// pass, which never happens for a fresh account. Forcing it on is how
	// the flow proceeds.
	if err := a.page.EnableElement(ctx, "#btnContinue"); err != nil {
		return fmt.Errorf("enable continue button: %w", err)
	}
	if err := a.page.ClickAndNavigate(ctx, "#btnContinue"); err != nil {
		return fmt.Errorf("continue to applicant form: %w", err)
	}

	if err := a.fillApplicantForm(ctx, applicant); err != nil {
		return err
	}
	if err := a.page.ClickAndNavigate(ctx, "#submitbuttonId"); err != nil {
		return fmt.Errorf("submit applicant form: %w", err)
	}

	if loc, err = a.page.Location(ctx); err != nil {
		return fmt.Errorf("read url after applicant form: %w", err)
	}
	if ClassifyURL(loc) != StateCalendar {
		a.reportUnknownPage(ctx, "applicant form did not lead to the calendar", loc)
		return fmt.Errorf("%w: landed on %s", ErrInvalidCalendarURL, loc)
	}
	a.logger.Info("reached calendar", zap.String("category", cat.Name()))
	return nil
}

func (a *Automator) fillApplicantForm(ctx context.Context, ap identity.ApplicantInfo) error {
	fields := []struct{ sel, value string }{
		{"#PassportNumber", ap.PassportNumber},
		{"#DateOfBirth", ap.DateOfBirth},
		{"#PassportExpiryDate", ap.PassportExpiry},
		{"#FirstName", ap.FirstName},
		{"#LastName", ap.LastName},
		{"#DialCode", ap.DialCode},
		{"#Mobile", ap.ContactNumber},
		{"#validateEmailId", ap.Email},
	}
	for _, f := range fields {
		if err := a.page.SetValue(ctx, f.sel, f.value); err != nil {
			return fmt.Errorf("fill %s: %w", f.sel, err)
		}
	}
	if err := a.page.SelectOption(ctx, "#NationalityId", ap.Nationality); err != nil {
		return fmt.Errorf("select nationality: %w", err)
	}
	if err := a.page.SelectOption(ctx, "#GenderId", string(ap.Gender)); err != nil {
		return fmt.Errorf("select gender: %w", err)
	}
	return a.page.Sleep(ctx, a.cfg.SettleDelay)
}

// PollCalendarDates reloads the calendar and returns the sorted set of
// available dates across the current month view plus ExtraMonthViews ahead.
// The session must already sit on the calendar page.
func (a *Automator) PollCalendarDates(ctx context.Context) ([]string, error) {
	loc, err := a.page.Location(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current url: %w", err)
	}
	if ClassifyURL(loc) != StateCalendar {
		return nil, fmt.Errorf("%w: at %s", ErrInvalidURLForPolling, loc)
	}

	if err := a.page.Reload(ctx); err != nil {
		return nil, fmt.Errorf("reload calendar: %w", err)
	}
	if loc, err = a.page.Location(ctx); err != nil {
		return nil, fmt.Errorf("read url after reload: %w", err)
	}
	if ClassifyURL(loc) != StateCalendar {
		// A reload that lands elsewhere means the session expired.
		return nil, fmt.Errorf("%w: reload landed on %s", ErrInvalidURLForPolling, loc)
	}

	seen := make(map[string]struct{})
	views := 1 + a.cfg.ExtraMonthViews
	for view := 0; view < views; view++ {
		if view > 0 {
			if err := a.page.Click(ctx, ".fc-header-right .fc-button"); err != nil {
				return nil, fmt.Errorf("advance to next month: %w", err)
			}
			if err := a.page.Sleep(ctx, a.cfg.SettleDelay); err != nil {
				return nil, err
			}
		}
		html, err := a.page.OuterHTML(ctx, "#calendar")
		if err != nil {
			return nil, fmt.Errorf("read calendar markup: %w", err)
		}
		dates, unknown, err := extractAvailableDates(html)
		if err != nil {
			return nil, fmt.Errorf("parse calendar markup: %w", err)
		}
		for _, d := range dates {
			seen[d] = struct{}{}
		}
		for _, cell := range unknown {
			a.reportUnknownCell(ctx, cell)
		}
	}

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// unknownCell is a calendar day whose background style matched none of the
// recognized ones.
type unknownCell struct {
	Date  string
	Style string
}

// extractAvailableDates pulls day cells out of the calendar markup. It
// returns the dates rendered with the available style and the cells whose
// style it does not recognize; unrecognized cells are never counted as
// available.
func extractAvailableDates(html string) (dates []string, unknown []unknownCell, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, err
	}
	doc.Find("td.fc-day").Each(func(_ int, cell *goquery.Selection) {
		date := cell.AttrOr("data-date", "")
		if date == "" {
			return
		}
		style := backgroundColor(cell.AttrOr("style", ""))
		switch style {
		case styleAvailable:
			dates = append(dates, date)
		case styleNoSeats, styleHoliday, styleWeekend, "":
			// Known non-bookable renderings.
		default:
			unknown = append(unknown, unknownCell{Date: date, Style: style})
		}
	})
	return dates, unknown, nil
}

// backgroundColor extracts the background-color declaration from an inline
// style attribute.
func backgroundColor(style string) string {
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == "background-color" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func (a *Automator) reportUnknownCell(ctx context.Context, cell unknownCell) {
	a.logger.Warn("calendar cell with unrecognized style",
		zap.String("date", cell.Date), zap.String("style", cell.Style))
	shot := filepath.Join(a.cfg.ScreenshotDir, "calendar-"+uuid.NewString()+".png")
	if err := a.page.ElementScreenshot(ctx, "#calendar", shot); err != nil {
		a.operatorf(ctx, "calendar cell %s has unrecognized style %q; screenshot failed: %v",
			cell.Date, cell.Style, err)
		return
	}
	a.operatorf(ctx, "calendar cell %s has unrecognized style %q", cell.Date, cell.Style)
	if err := a.notifier.SendImageOperator(ctx, shot); err != nil {
		a.logger.Error("sending calendar screenshot failed", zap.Error(err))
	}
}
