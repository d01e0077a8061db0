// Package connwatch supervises reconnection once internal/connloop's
// in-session retry budget (spec.md §4.4's Reconnecting state, bounded
// by RECONNECT_MAX) has been exhausted and the loop has settled into
// Disconnected. Where connloop retries a handful of times at a fixed
// interval while a session is still live, Watcher runs the slower,
// outer supervision loop internal/mio falls back to: exponential
// backoff probing of whether the far end has come back at all, so a
// caller that left StartListening on doesn't have to poll Reconnect
// itself after a prolonged outage.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc attempts to reconnect. Return nil on success.
type ProbeFunc func(ctx context.Context) error

// BackoffConfig controls the exponential backoff schedule.
type BackoffConfig struct {
	// InitialDelay is the delay before the first retry (default: 2s).
	InitialDelay time.Duration

	// MaxDelay is the ceiling for backoff growth (default: 60s).
	MaxDelay time.Duration

	// Multiplier scales the delay after each retry (default: 2.0).
	Multiplier float64

	// MaxRetries is the maximum number of startup probe attempts
	// (default: 10) before falling back to PollInterval.
	MaxRetries int

	// PollInterval is the background check interval once startup
	// retries are exhausted or after a successful reconnect
	// (default: 60s).
	PollInterval time.Duration

	// ProbeTimeout limits how long each individual probe call may
	// take (default: 10s).
	ProbeTimeout time.Duration
}

// DefaultBackoffConfig returns 2s, 4s, 8s, 16s, 32s, 60s (capped), with
// 10 startup retries and 60-second background polling thereafter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   10,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

// Config configures a single connection Watcher.
type Config struct {
	// Probe attempts to restore the connection. Must be safe to call
	// repeatedly; typically this is internal/mio's Connection.Reconnect.
	Probe ProbeFunc

	Backoff BackoffConfig

	// OnUp fires when the probe transitions from failing to
	// succeeding. Runs in its own goroutine; must not block
	// indefinitely. Optional.
	OnUp func()

	Logger *slog.Logger
}

// Status is the watcher's current health, suitable for exposing on a
// status endpoint or log line.
type Status struct {
	Up        bool
	LastCheck time.Time
	LastError string
}

// Watcher drives Config.Probe on its own goroutine until Stop is
// called, tracking whether the connection is currently believed up.
type Watcher struct {
	cfg    Config
	up     atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
}

// Start launches a Watcher bound to ctx. Panics if cfg.Probe is nil —
// that's a programming error, not a runtime condition.
func Start(ctx context.Context, cfg Config) *Watcher {
	if cfg.Probe == nil {
		panic("connwatch: Config.Probe must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	defaults := DefaultBackoffConfig()
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff.InitialDelay = defaults.InitialDelay
	}
	if cfg.Backoff.MaxDelay <= 0 {
		cfg.Backoff.MaxDelay = defaults.MaxDelay
	}
	if cfg.Backoff.Multiplier <= 0 {
		cfg.Backoff.Multiplier = defaults.Multiplier
	}
	if cfg.Backoff.MaxRetries <= 0 {
		cfg.Backoff.MaxRetries = defaults.MaxRetries
	}
	if cfg.Backoff.PollInterval <= 0 {
		cfg.Backoff.PollInterval = defaults.PollInterval
	}
	if cfg.Backoff.ProbeTimeout <= 0 {
		cfg.Backoff.ProbeTimeout = defaults.ProbeTimeout
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{cfg: cfg, cancel: cancel, done: make(chan struct{})}
	go w.run(watchCtx)
	return w
}

// IsUp reports whether the most recent probe succeeded.
func (w *Watcher) IsUp() bool { return w.up.Load() }

// Status returns the watcher's current health snapshot.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{Up: w.up.Load(), LastCheck: w.lastCheck}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	cfg := w.cfg.Backoff
	logger := w.cfg.Logger

	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		err := w.probe(ctx)
		w.recordResult(err)

		if err == nil {
			w.up.Store(true)
			logger.Info("connwatch: reconnected", "after_attempts", attempt)
			if w.cfg.OnUp != nil {
				go w.cfg.OnUp()
			}
			break
		}

		if attempt == cfg.MaxRetries {
			logger.Warn("connwatch: reconnect attempts exhausted, falling back to polling",
				"attempts", attempt, "error", err)
			break
		}

		logger.Debug("connwatch: reconnect probe failed, retrying",
			"attempt", attempt, "max_retries", cfg.MaxRetries,
			"next_delay", delay.String(), "error", err)

		if !sleepCtx(ctx, delay) {
			return
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.probe(ctx)
			w.recordResult(err)
			wasUp := w.up.Load()

			switch {
			case wasUp && err != nil:
				w.up.Store(false)
				logger.Info("connwatch: connection dropped again", "error", err)
			case !wasUp && err == nil:
				w.up.Store(true)
				logger.Info("connwatch: reconnected")
				if w.cfg.OnUp != nil {
					go w.cfg.OnUp()
				}
			}
		}
	}
}

func (w *Watcher) probe(ctx context.Context) error {
	timeout := w.cfg.Backoff.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return w.cfg.Probe(probeCtx)
}

func (w *Watcher) recordResult(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
