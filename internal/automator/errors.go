package automator

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel failures the supervisor reacts to.
var (
	// ErrCaptchaExhausted means the solving service never produced an
	// answer within the attempt budget.
	ErrCaptchaExhausted = errors.New("captcha solve attempts exhausted")
	// ErrFormRetriesExhausted means the provider kept rejecting the
	// captcha answer across whole-form retries.
	ErrFormRetriesExhausted = errors.New("form retries exhausted")
	// ErrCannotReachHome means the authenticated home page is unreachable,
	// which almost always means the session expired.
	ErrCannotReachHome = errors.New("cannot reach home page")
	// ErrInvalidCalendarURL means the form sequence did not land on the
	// calendar page.
	ErrInvalidCalendarURL = errors.New("unexpected url after applicant submit")
	// ErrInvalidURLForPolling means the tab is no longer on the calendar;
	// the caller should discard the session and log in again.
	ErrInvalidURLForPolling = errors.New("not on calendar page, need fresh login")
)

// errCaptchaRejected is internal to the register/login retry loops: the
// provider rejected the solved answer and the whole form should be retried.
var errCaptchaRejected = errors.New("provider rejected captcha answer")

// RegistrationRejectedError is a provider-side validation failure during
// account creation, other than a bad captcha.
type RegistrationRejectedError struct {
	Reason string
}

func (e *RegistrationRejectedError) Error() string {
	return fmt.Sprintf("registration rejected: %s", e.Reason)
}

// LoginFailedError is a definitive login failure.
type LoginFailedError struct {
	Reason string
}

func (e *LoginFailedError) Error() string {
	return fmt.Sprintf("login failed: %s", e.Reason)
}

// UnexpectedPageStateError means the flow landed somewhere the state machine
// does not recognize.
type UnexpectedPageStateError struct {
	URL string
}

func (e *UnexpectedPageStateError) Error() string {
	return fmt.Sprintf("unexpected page state at %s", e.URL)
}

// Class buckets an automation failure for the supervisor.
type Class int

const (
	// ClassTransient errors may resolve themselves; retry in-session a
	// bounded number of times before escalating.
	ClassTransient Class = iota
	// ClassSessionExpired errors end the session; the supervisor starts
	// over with a fresh one. Never retried in place.
	ClassSessionExpired
	// ClassRejected errors are provider-side input rejections; report to
	// the operator and restart.
	ClassRejected
	// ClassFatal errors are unrecognized; report with full diagnostics
	// and restart.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassSessionExpired:
		return "session-expired"
	case ClassRejected:
		return "rejected"
	default:
		return "fatal"
	}
}

// Classify buckets err into the failure taxonomy. Classification happens
// once, here, so the supervisor never re-interprets raw provider text.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.Is(err, ErrCannotReachHome),
		errors.Is(err, ErrInvalidCalendarURL),
		errors.Is(err, ErrInvalidURLForPolling):
		return ClassSessionExpired
	case errors.Is(err, ErrCaptchaExhausted),
		errors.Is(err, ErrFormRetriesExhausted):
		return ClassRejected
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	var regErr *RegistrationRejectedError
	var loginErr *LoginFailedError
	if errors.As(err, &regErr) || errors.As(err, &loginErr) {
		return ClassRejected
	}
	var pageErr *UnexpectedPageStateError
	if errors.As(err, &pageErr) {
		if ClassifyURL(pageErr.URL) == StateLoggedOut {
			return ClassSessionExpired
		}
		return ClassFatal
	}
	return ClassFatal
}
