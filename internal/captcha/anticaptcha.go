package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/metrics"
)

const antiCaptchaBaseURL = "https://api.anti-captcha.com"

// AntiCaptchaConfig configures the anti-captcha.com client.
type AntiCaptchaConfig struct {
	APIKey        string
	BaseURL       string
	BadCaptchaDir string

	SubmitAttempts int
	GraceDelay     time.Duration
	PollInterval   time.Duration
}

// AntiCaptcha solves image captchas through the anti-captcha.com JSON API.
type AntiCaptcha struct {
	cfg    AntiCaptchaConfig
	client *resty.Client
	logger *zap.Logger
}

type antiCaptchaTask struct {
	Type      string `json:"type"`
	Body      string `json:"body"`
	Phrase    bool   `json:"phrase"`
	Case      bool   `json:"case"`
	Numeric   int    `json:"numeric"`
	Math      bool   `json:"math"`
	MinLength int    `json:"minLength"`
	MaxLength int    `json:"maxLength"`
}

type antiCaptchaCreateResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
}

type antiCaptchaResultResponse struct {
	ErrorID   int    `json:"errorId"`
	ErrorCode string `json:"errorCode"`
	Status    string `json:"status"`
	Solution  struct {
		Text string `json:"text"`
	} `json:"solution"`
}

// NewAntiCaptcha builds a client. The API key is required.
func NewAntiCaptcha(cfg AntiCaptchaConfig, logger *zap.Logger) (*AntiCaptcha, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anti-captcha api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = antiCaptchaBaseURL
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
	return &AntiCaptcha{
		cfg:    cfg,
		client: resty.New().SetBaseURL(cfg.BaseURL),
		logger: logger.Named("anticaptcha"),
	}, nil
}

// Solve submits the image as an ImageToTextTask and polls for the answer.
func (a *AntiCaptcha) Solve(ctx context.Context, imagePath string) (Captcha, error) {
	start := time.Now()
	solved, err := a.solve(ctx, imagePath)
	status := "solved"
	if err != nil {
		status = "failed"
	}
	metrics.ObserveCaptchaSolve("anticaptcha", status, time.Since(start))
	return solved, err
}

func (a *AntiCaptcha) solve(ctx context.Context, imagePath string) (Captcha, error) {
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return Captcha{}, fmt.Errorf("read captcha image: %w", err)
	}
	taskID, err := a.createTask(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return Captcha{}, err
	}

	if err := sleep(ctx, a.cfg.GraceDelay); err != nil {
		return Captcha{}, err
	}
	for {
		if err := sleep(ctx, a.cfg.PollInterval); err != nil {
			return Captcha{}, err
		}
		var result antiCaptchaResultResponse
		_, err := a.client.R().
			SetContext(ctx).
			SetBody(map[string]any{"clientKey": a.cfg.APIKey, "taskId": taskID}).
			SetResult(&result).
			Post("/getTaskResult")
		if err != nil {
			return Captcha{}, fmt.Errorf("poll captcha result: %w", err)
		}
		if result.Status == "processing" {
			a.logger.Debug("captcha still processing", zap.Int64("task_id", taskID))
			continue
		}
		if result.ErrorID > 0 || result.Status != "ready" {
			return Captcha{}, fmt.Errorf("captcha result error: %s (status %s)",
				result.ErrorCode, result.Status)
		}
		saveAnswer(imagePath, result.Solution.Text)
		return Captcha{
			Answer: result.Solution.Text,
			ID:     strconv.FormatInt(taskID, 10),
		}, nil
	}
}

func (a *AntiCaptcha) createTask(ctx context.Context, bodyBase64 string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < a.cfg.SubmitAttempts; attempt++ {
		var created antiCaptchaCreateResponse
		_, err := a.client.R().
			SetContext(ctx).
			SetBody(map[string]any{
				"clientKey": a.cfg.APIKey,
				"task": antiCaptchaTask{
					Type:      "ImageToTextTask",
					Body:      bodyBase64,
					Numeric:   2,
					MinLength: 5,
					MaxLength: 5,
				},
			}).
			SetResult(&created).
			Post("/createTask")
		if err != nil {
			lastErr = fmt.Errorf("create captcha task: %w", err)
			if serr := sleep(ctx, a.cfg.PollInterval); serr != nil {
				return 0, serr
			}
			continue
		}
		if created.ErrorID > 0 {
			return 0, fmt.Errorf("create captcha task: %s: %s",
				created.ErrorCode, created.ErrorDescription)
		}
		return created.TaskID, nil
	}
	return 0, fmt.Errorf("captcha task creation exhausted after %d attempts: %w",
		a.cfg.SubmitAttempts, lastErr)
}

// ReportGood is a no-op for this provider, kept to satisfy Solver.
func (a *AntiCaptcha) ReportGood(context.Context, string) {}

// ReportBad reports the wrong answer and quarantines the image.
func (a *AntiCaptcha) ReportBad(ctx context.Context, id, imagePath string) {
	quarantine(imagePath, a.cfg.BadCaptchaDir)
	taskID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		a.logger.Warn("bad captcha id", zap.String("task_id", id), zap.Error(err))
		return
	}
	_, err = a.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"clientKey": a.cfg.APIKey, "taskId": taskID}).
		Post("/reportIncorrectImageCaptcha")
	if err != nil {
		a.logger.Warn("captcha report failed", zap.String("task_id", id), zap.Error(err))
	}
}
