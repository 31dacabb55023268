package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pagedex/pagedex/engine/registry"
	"github.com/pagedex/pagedex/pkg/logger"
)

// Remover deletes one document and all of its derived state.
type Remover interface {
	Remove(ctx context.Context, id string) error
}

// RemoverFunc adapts a function to the Remover interface.
type RemoverFunc func(ctx context.Context, id string) error

// Remove calls the wrapped function.
func (f RemoverFunc) Remove(ctx context.Context, id string) error {
	return f(ctx, id)
}

// Sweeper evicts documents whose last access has fallen behind the retention
// window. It sweeps once on start and then on a fixed schedule.
type Sweeper struct {
	registry registry.Store
	remover  Remover
	window   time.Duration
	interval time.Duration
	now      func() time.Time
	cron     *cron.Cron
	running  sync.Mutex
	startMu  sync.Mutex
	started  bool
}

// NewSweeper builds a sweeper. The window is how long an unaccessed document
// survives; the interval is how often the sweep runs.
func NewSweeper(reg registry.Store, remover Remover, window, interval time.Duration) (*Sweeper, error) {
	if reg == nil {
		return nil, errors.New("retention: registry is required")
	}
	if remover == nil {
		return nil, errors.New("retention: remover is required")
	}
	if window <= 0 {
		return nil, errors.New("retention: window must be positive")
	}
	if interval <= 0 {
		return nil, errors.New("retention: interval must be positive")
	}
	return &Sweeper{
		registry: reg,
		remover:  remover,
		window:   window,
		interval: interval,
		now:      time.Now,
	}, nil
}

// WithClock overrides the time source, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start runs an immediate sweep and schedules recurring ones. It is an error
// to start a sweeper twice without stopping it.
func (s *Sweeper) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return errors.New("retention: sweeper already started")
	}
	if _, err := s.Sweep(ctx); err != nil {
		logger.FromContext(ctx).Warn("initial retention sweep failed", "error", err)
	}
	runner := cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := runner.AddFunc(spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			logger.FromContext(ctx).Warn("retention sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("retention: schedule sweep: %w", err)
	}
	runner.Start()
	s.cron = runner
	s.started = true
	logger.FromContext(ctx).Info("retention sweeper started",
		"window", s.window, "interval", s.interval)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if !s.started {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running.Lock()
	s.running.Unlock() //nolint:staticcheck // barrier: wait for an in-flight sweep
	s.cron = nil
	s.started = false
}

// Sweep evicts every document whose last access is older than the window.
// Individual removal failures are logged and skipped so one stuck document
// cannot block the rest. Overlapping sweeps collapse into one.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		return 0, nil
	}
	defer s.running.Unlock()
	log := logger.FromContext(ctx)
	cutoff := s.now().UTC().Add(-s.window)
	ids, err := s.registry.AccessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention: list expired documents: %w", err)
	}
	evicted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return evicted, ctx.Err()
		}
		if err := s.remover.Remove(ctx, id); err != nil {
			log.Warn("failed to evict expired document", "document_id", id, "error", err)
			continue
		}
		log.Info("evicted expired document", "document_id", id, "cutoff", cutoff)
		evicted++
	}
	return evicted, nil
}
