package connwatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// testBackoff returns a fast backoff config for tests.
func testBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxRetries:   5,
		PollInterval: 5 * time.Millisecond,
		ProbeTimeout: 100 * time.Millisecond,
	}
}

// waitFor polls cond every tick until it returns true or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(1 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

func TestDefaultBackoffConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultBackoffConfig()

	if cfg.InitialDelay != 2*time.Second {
		t.Errorf("InitialDelay = %v, want 2s", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %v, want 60s", cfg.MaxDelay)
	}
	if cfg.MaxRetries != 10 {
		t.Errorf("MaxRetries = %d, want 10", cfg.MaxRetries)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", cfg.PollInterval)
	}
}

func TestWatcher_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var upCalled atomic.Int32
	w := Start(ctx, Config{
		Probe:   func(context.Context) error { return nil },
		Backoff: testBackoff(),
		OnUp:    func() { upCalled.Add(1) },
	})

	waitFor(t, 2*time.Second, w.IsUp, "IsUp() == true")

	if s := w.Status(); s.LastError != "" {
		t.Errorf("expected no LastError, got %q", s.LastError)
	}
	if upCalled.Load() != 1 {
		t.Errorf("OnUp called %d times, want 1", upCalled.Load())
	}
}

func TestWatcher_BackoffThenSuccess(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errDown := errors.New("down")
	var attempts atomic.Int32
	probe := func(context.Context) error {
		if attempts.Add(1) <= 3 {
			return errDown
		}
		return nil
	}

	var upCalled atomic.Int32
	w := Start(ctx, Config{Probe: probe, Backoff: testBackoff(), OnUp: func() { upCalled.Add(1) }})

	waitFor(t, 2*time.Second, w.IsUp, "IsUp() == true after retries")

	if upCalled.Load() != 1 {
		t.Errorf("OnUp called %d times, want 1", upCalled.Load())
	}
	if n := attempts.Load(); n < 4 {
		t.Errorf("expected at least 4 probe attempts, got %d", n)
	}
}

func TestWatcher_ExhaustsRetries(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errDown := errors.New("always down")
	var attempts atomic.Int32
	w := Start(ctx, Config{
		Probe:   func(context.Context) error { attempts.Add(1); return errDown },
		Backoff: testBackoff(),
	})

	waitFor(t, 2*time.Second, func() bool { return attempts.Load() >= 5 }, "all startup retries attempted")

	if w.IsUp() {
		t.Error("expected IsUp() == false after exhausting retries")
	}
	if s := w.Status(); s.LastError == "" {
		t.Error("expected non-empty LastError")
	}
}

func TestWatcher_DropsAgainAfterRecovery(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errDown := errors.New("down")
	var shouldFail atomic.Bool

	probe := func(context.Context) error {
		if shouldFail.Load() {
			return errDown
		}
		return nil
	}

	w := Start(ctx, Config{Probe: probe, Backoff: testBackoff()})

	waitFor(t, 2*time.Second, w.IsUp, "initially up")

	shouldFail.Store(true)
	waitFor(t, 2*time.Second, func() bool { return !w.IsUp() }, "IsUp() == false after drop")
}

func TestWatcher_RecoversAfterExhaustion(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errDown := errors.New("down")
	var shouldFail atomic.Bool
	shouldFail.Store(true)

	probe := func(context.Context) error {
		if shouldFail.Load() {
			return errDown
		}
		return nil
	}

	var upCalled atomic.Int32
	bcfg := testBackoff()
	bcfg.MaxRetries = 2

	w := Start(ctx, Config{Probe: probe, Backoff: bcfg, OnUp: func() { upCalled.Add(1) }})

	waitFor(t, 2*time.Second, func() bool { return w.Status().LastError != "" }, "startup retries exhausted")
	if w.IsUp() {
		t.Fatal("expected not up after startup exhaustion")
	}

	shouldFail.Store(false)
	waitFor(t, 2*time.Second, w.IsUp, "IsUp() == true after recovery")

	if upCalled.Load() < 1 {
		t.Errorf("OnUp called %d times, want >= 1", upCalled.Load())
	}
}

func TestWatcher_Stop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	w := Start(ctx, Config{Probe: func(context.Context) error { return nil }, Backoff: testBackoff()})
	waitFor(t, 2*time.Second, w.IsUp, "up before stop")

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return within timeout")
	}
}

func TestWatcher_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())

	w := Start(ctx, Config{Probe: func(context.Context) error { return errors.New("down") }, Backoff: testBackoff()})
	cancel()

	done := make(chan struct{})
	go func() {
		<-w.done
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func TestWatcher_ProbeTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	probe := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	bcfg := testBackoff()
	bcfg.ProbeTimeout = 5 * time.Millisecond
	bcfg.MaxRetries = 1

	w := Start(ctx, Config{Probe: probe, Backoff: bcfg})

	waitFor(t, 2*time.Second, func() bool { return w.Status().LastError != "" }, "probe error recorded after timeout")

	if w.IsUp() {
		t.Error("expected not up when probe always times out")
	}
}

func TestWatcher_OnUpNotCalledWhenAlreadyUp(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var upCalled atomic.Int32
	var probeCount atomic.Int32

	_ = Start(ctx, Config{
		Probe: func(context.Context) error {
			probeCount.Add(1)
			return nil
		},
		Backoff: testBackoff(),
		OnUp:    func() { upCalled.Add(1) },
	})

	waitFor(t, 2*time.Second, func() bool { return probeCount.Load() >= 3 }, "at least 3 probes completed")

	if n := upCalled.Load(); n != 1 {
		t.Errorf("OnUp called %d times, want exactly 1", n)
	}
}

func TestStart_PanicsOnNilProbe(t *testing.T) {
	t.Parallel()
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil Probe")
		}
	}()
	Start(context.Background(), Config{Probe: nil, Backoff: testBackoff()})
}

func TestStart_DefaultsZeroBackoffFields(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := Start(ctx, Config{Probe: func(context.Context) error { return nil }})
	waitFor(t, 2*time.Second, w.IsUp, "up with defaulted backoff")
}
