package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finnappt/seatwatch/internal/metrics"
)

func init() {
	metrics.Init()
}

func writeImage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "captcha.png")
	require.NoError(t, os.WriteFile(path, []byte("not really a png"), 0o600))
	return path
}

func fastConfig(url string) TwoCaptchaConfig {
	return TwoCaptchaConfig{
		APIKey:       "key",
		BaseURL:      url,
		GraceDelay:   time.Millisecond,
		PollInterval: time.Millisecond,
		NoSlotDelay:  time.Millisecond,
	}
}

func TestTwoCaptchaSolve(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			_, _ = w.Write([]byte("OK|task-42"))
		case "/res.php":
			require.Equal(t, "task-42", r.URL.Query().Get("id"))
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte("CAPCHA_NOT_READY"))
				return
			}
			_, _ = w.Write([]byte("OK|abCde"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	image := writeImage(t, dir)
	solver, err := NewTwoCaptcha(fastConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	got, err := solver.Solve(context.Background(), image)
	require.NoError(t, err)
	require.Equal(t, Captcha{Answer: "ABCDE", ID: "task-42"}, got)
	require.GreaterOrEqual(t, polls.Load(), int32(3))

	// Answer sidecar is written for later bad-solve review.
	txt, err := os.ReadFile(filepath.Join(dir, "captcha.txt"))
	require.NoError(t, err)
	require.Equal(t, "ABCDE", string(txt))
}

func TestTwoCaptchaSubmitRetriesOnNoSlot(t *testing.T) {
	t.Parallel()

	var submits atomic.Int32
	var lastSubmit atomic.Int64
	var sleptBetween atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			now := time.Now().UnixNano()
			if prev := lastSubmit.Swap(now); prev != 0 && now-prev > int64(500*time.Microsecond) {
				sleptBetween.Store(true)
			}
			if submits.Add(1) <= 2 {
				_, _ = w.Write([]byte("ERROR_NO_SLOT_AVAILABLE"))
				return
			}
			_, _ = w.Write([]byte("OK|task-7"))
		case "/res.php":
			_, _ = w.Write([]byte("OK|zzzzz"))
		}
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.NoSlotDelay = 20 * time.Millisecond
	solver, err := NewTwoCaptcha(cfg, zap.NewNop())
	require.NoError(t, err)

	got, err := solver.Solve(context.Background(), writeImage(t, t.TempDir()))
	require.NoError(t, err)
	require.Equal(t, "task-7", got.ID)
	require.Equal(t, int32(3), submits.Load())
	require.True(t, sleptBetween.Load(), "expected a delay between submit attempts")
}

func TestTwoCaptchaSubmitExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var submits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		submits.Add(1)
		_, _ = w.Write([]byte("ERROR_NO_SLOT_AVAILABLE"))
	}))
	defer srv.Close()

	solver, err := NewTwoCaptcha(fastConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = solver.Solve(context.Background(), writeImage(t, t.TempDir()))
	require.Error(t, err)
	require.Equal(t, int32(defaultSubmitAttempts), submits.Load())
}

func TestTwoCaptchaSubmitErrorIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ERROR_WRONG_USER_KEY"))
	}))
	defer srv.Close()

	solver, err := NewTwoCaptcha(fastConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = solver.Solve(context.Background(), writeImage(t, t.TempDir()))
	require.ErrorContains(t, err, "ERROR_WRONG_USER_KEY")
}

func TestTwoCaptchaReportBadQuarantinesImage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "reportbad", r.URL.Query().Get("action"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	image := writeImage(t, dir)
	badDir := filepath.Join(dir, "bad")

	cfg := fastConfig(srv.URL)
	cfg.BadCaptchaDir = badDir
	solver, err := NewTwoCaptcha(cfg, zap.NewNop())
	require.NoError(t, err)

	solver.ReportBad(context.Background(), "task-1", image)

	_, err = os.Stat(filepath.Join(badDir, "captcha.png"))
	require.NoError(t, err)
	_, err = os.Stat(image)
	require.True(t, os.IsNotExist(err))
}

func TestTwoCaptchaSolveCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			_, _ = w.Write([]byte("OK|task-9"))
			return
		}
		_, _ = w.Write([]byte("CAPCHA_NOT_READY"))
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	solver, err := NewTwoCaptcha(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = solver.Solve(ctx, writeImage(t, t.TempDir()))
	require.Error(t, err)
}
