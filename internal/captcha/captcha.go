// Package captcha clients the external image-captcha solving providers.
package captcha

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Captcha is one solved image. The ID is the provider's task id, kept so the
// submitter can later report whether the answer was accepted.
type Captcha struct {
	Answer string
	ID     string
}

// Solver submits captcha images and polls for their text answers.
//
// Report calls are fire-and-forget: implementations log failures but never
// surface them, since the session outcome does not depend on them.
type Solver interface {
	Solve(ctx context.Context, imagePath string) (Captcha, error)
	ReportGood(ctx context.Context, id string)
	ReportBad(ctx context.Context, id, imagePath string)
}

const (
	defaultSubmitAttempts = 5
	defaultGraceDelay     = 15 * time.Second
	defaultPollInterval   = 5 * time.Second
	defaultNoSlotDelay    = 5 * time.Second
)

// sleep waits for d or until the context ends.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("captcha wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// saveAnswer writes the solved text next to the image so bad solves can be
// inspected later. Best effort.
func saveAnswer(imagePath, answer string) {
	txt := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
	_ = os.WriteFile(txt, []byte(answer), 0o600)
}

// quarantine moves a wrongly solved image and its answer sidecar into badDir
// for later review. Best effort.
func quarantine(imagePath, badDir string) {
	if badDir == "" {
		return
	}
	if err := os.MkdirAll(badDir, 0o750); err != nil {
		return
	}
	base := filepath.Base(imagePath)
	_ = os.Rename(imagePath, filepath.Join(badDir, base))
	txt := strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
	src := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
	_ = os.Rename(src, filepath.Join(badDir, txt))
}
