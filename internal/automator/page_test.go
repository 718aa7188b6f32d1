package automator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		url  string
		want PageState
	}{
		{"https://online.vfsglobal.com/FinlandAppt/Account/RegisteredLogin?q=abc", StateLogin},
		{"https://online.vfsglobal.com/FinlandAppt/Account/RegisteredLogin?ReturnUrl=%2FFinlandAppt%2FHome", StateLoggedOut},
		{"https://online.vfsglobal.com/FinlandAppt/Account/RegisterUser", StateRegister},
		{"https://online.vfsglobal.com/FinlandAppt/Home/Index", StateHome},
		{"https://online.vfsglobal.com/FinlandAppt/Calendar/FinalCalendar", StateCalendar},
		{"https://online.vfsglobal.com/FinlandAppt/Appointment/Applicant", StateApplicant},
		{"https://online.vfsglobal.com/FinlandAppt/Appointment/VisaType", StateAppointment},
		{"https://online.vfsglobal.com/FinlandAppt/Something/Else?q=1&ReturnUrl=%2Fx", StateLoggedOut},
		{"https://example.com/totally/elsewhere", StateUnknown},
		{"", StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyURL(tt.url), "url %q", tt.url)
		})
	}
}

func TestPageStateString(t *testing.T) {
	assert.Equal(t, "home", StateHome.String())
	assert.Equal(t, "logged-out", StateLoggedOut.String())
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "unknown", PageState(99).String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"wrapped deadline", errors.Join(errors.New("nav"), context.DeadlineExceeded), ClassTransient},
		{"cannot reach home", ErrCannotReachHome, ClassSessionExpired},
		{"invalid calendar url", ErrInvalidCalendarURL, ClassSessionExpired},
		{"invalid polling url", ErrInvalidURLForPolling, ClassSessionExpired},
		{"captcha exhausted", ErrCaptchaExhausted, ClassRejected},
		{"form retries exhausted", ErrFormRetriesExhausted, ClassRejected},
		{"registration rejected", &RegistrationRejectedError{Reason: "email exists"}, ClassRejected},
		{"login failed", &LoginFailedError{Reason: "bad password"}, ClassRejected},
		{
			"unexpected page, logged out",
			&UnexpectedPageStateError{URL: "https://x/Account/RegisteredLogin?ReturnUrl=%2Fy"},
			ClassSessionExpired,
		},
		{
			"unexpected page, anything else",
			&UnexpectedPageStateError{URL: "https://x/Maintenance"},
			ClassFatal,
		},
		{"unrecognized", errors.New("mystery"), ClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "session-expired", ClassSessionExpired.String())
	assert.Equal(t, "rejected", ClassRejected.String())
	assert.Equal(t, "fatal", ClassFatal.String())
}
