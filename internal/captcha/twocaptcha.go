package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/metrics"
)

const twoCaptchaBaseURL = "https://2captcha.com"

// TwoCaptchaConfig configures the 2captcha client.
type TwoCaptchaConfig struct {
	APIKey string
	// BaseURL overrides the provider endpoint, used by tests.
	BaseURL string
	// BadCaptchaDir receives images whose answers the provider rejected.
	BadCaptchaDir string

	SubmitAttempts int
	GraceDelay     time.Duration
	PollInterval   time.Duration
	NoSlotDelay    time.Duration
}

// TwoCaptcha solves image captchas through the 2captcha HTTP API.
type TwoCaptcha struct {
	cfg    TwoCaptchaConfig
	client *resty.Client
	logger *zap.Logger
}

// NewTwoCaptcha builds a client. The API key is required.
func NewTwoCaptcha(cfg TwoCaptchaConfig, logger *zap.Logger) (*TwoCaptcha, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("2captcha api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = twoCaptchaBaseURL
	}
	if cfg.SubmitAttempts <= 0 {
		cfg.SubmitAttempts = defaultSubmitAttempts
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = defaultGraceDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.NoSlotDelay <= 0 {
		cfg.NoSlotDelay = defaultNoSlotDelay
	}
	return &TwoCaptcha{
		cfg:    cfg,
		client: resty.New().SetBaseURL(cfg.BaseURL),
		logger: logger.Named("twocaptcha"),
	}, nil
}

// Solve submits the image and polls until the provider has an answer.
// Submission tolerates the provider's "no slot" response by sleeping and
// retrying a bounded number of times.
func (t *TwoCaptcha) Solve(ctx context.Context, imagePath string) (Captcha, error) {
	start := time.Now()
	solved, err := t.solve(ctx, imagePath)
	status := "solved"
	if err != nil {
		status = "failed"
	}
	metrics.ObserveCaptchaSolve("2captcha", status, time.Since(start))
	return solved, err
}

func (t *TwoCaptcha) solve(ctx context.Context, imagePath string) (Captcha, error) {
	taskID, err := t.submit(ctx, imagePath)
	if err != nil {
		return Captcha{}, err
	}

	// The provider needs a moment before the answer is worth asking for.
	if err := sleep(ctx, t.cfg.GraceDelay); err != nil {
		return Captcha{}, err
	}

	for {
		if err := sleep(ctx, t.cfg.PollInterval); err != nil {
			return Captcha{}, err
		}
		resp, err := t.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"key":    t.cfg.APIKey,
				"action": "get",
				"id":     taskID,
			}).
			Get("/res.php")
		if err != nil {
			return Captcha{}, fmt.Errorf("poll captcha result: %w", err)
		}
		body := resp.String()
		if body == "CAPCHA_NOT_READY" {
			t.logger.Debug("captcha not ready, polling again", zap.String("task_id", taskID))
			continue
		}
		if !strings.HasPrefix(body, "OK|") {
			return Captcha{}, fmt.Errorf("captcha result error: %s", body)
		}
		answer := strings.ToUpper(strings.TrimPrefix(body, "OK|"))
		saveAnswer(imagePath, answer)
		return Captcha{Answer: answer, ID: taskID}, nil
	}
}

func (t *TwoCaptcha) submit(ctx context.Context, imagePath string) (string, error) {
	var lastBody string
	for attempt := 0; attempt < t.cfg.SubmitAttempts; attempt++ {
		resp, err := t.client.R().
			SetContext(ctx).
			SetFile("file", imagePath).
			SetFormData(map[string]string{
				"method":   "post",
				"key":      t.cfg.APIKey,
				"numeric":  "2",
				"min_len":  "5",
				"max_len":  "5",
				"language": "2",
			}).
			Post("/in.php")
		if err != nil {
			return "", fmt.Errorf("submit captcha: %w", err)
		}
		lastBody = resp.String()
		if lastBody == "ERROR_NO_SLOT_AVAILABLE" {
			t.logger.Debug("provider has no solve slot, backing off",
				zap.Int("attempt", attempt+1))
			if err := sleep(ctx, t.cfg.NoSlotDelay); err != nil {
				return "", err
			}
			continue
		}
		if !strings.HasPrefix(lastBody, "OK|") {
			return "", fmt.Errorf("captcha submit error: %s", lastBody)
		}
		return strings.TrimPrefix(lastBody, "OK|"), nil
	}
	return "", fmt.Errorf("captcha submit slots exhausted after %d attempts: %s",
		t.cfg.SubmitAttempts, lastBody)
}

// ReportGood tells the provider the answer was accepted. Fire-and-forget.
func (t *TwoCaptcha) ReportGood(ctx context.Context, id string) {
	t.report(ctx, "reportgood", id)
}

// ReportBad tells the provider the answer was rejected and quarantines the
// image for review. Fire-and-forget.
func (t *TwoCaptcha) ReportBad(ctx context.Context, id, imagePath string) {
	quarantine(imagePath, t.cfg.BadCaptchaDir)
	t.report(ctx, "reportbad", id)
}

func (t *TwoCaptcha) report(ctx context.Context, action, id string) {
	_, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":    t.cfg.APIKey,
			"action": action,
			"id":     id,
		}).
		Get("/res.php")
	if err != nil {
		t.logger.Warn("captcha report failed",
			zap.String("action", action), zap.String("task_id", id), zap.Error(err))
	}
}
