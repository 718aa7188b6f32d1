package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	require.Equal(t, 45*time.Second, cfg.NavTimeout)
	require.Equal(t, 10*time.Second, cfg.StepTimeout)

	cfg = Config{NavTimeout: time.Second, StepTimeout: 2 * time.Second}.withDefaults()
	require.Equal(t, time.Second, cfg.NavTimeout)
	require.Equal(t, 2*time.Second, cfg.StepTimeout)
}

func TestForwardCancelPropagates(t *testing.T) {
	t.Parallel()

	caller, cancelCaller := context.WithCancel(context.Background())
	task, cancelTask := context.WithCancel(context.Background())
	defer cancelTask()

	stop := forwardCancel(caller, cancelTask)
	defer stop()

	cancelCaller()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task context was not canceled")
	}
}

func TestForwardCancelStopDetaches(t *testing.T) {
	t.Parallel()

	caller, cancelCaller := context.WithCancel(context.Background())
	task, cancelTask := context.WithCancel(context.Background())
	defer cancelTask()

	stop := forwardCancel(caller, cancelTask)
	stop()
	cancelCaller()

	select {
	case <-task.Done():
		t.Fatal("task context canceled after stop")
	case <-time.After(20 * time.Millisecond):
	}
}
