package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultInterval = 5 * time.Minute
	// released before the lease runs out so a slow cycle never overlaps another worker
	leaseSafetyMargin = 5 * time.Second
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// CycleTimeout bounds one pass over every job. Zero derives it from the
	// lock TTL when the lock exposes one.
	CycleTimeout time.Duration
}

// Service runs every registered job once per interval while holding Lock.
type Service struct {
	logg         *logger.Logger
	registry     *Registry
	lock         Lock
	metrics      *metrics.CronJobMetrics
	interval     time.Duration
	cycleTimeout time.Duration
}

type ttlLock interface {
	TTL() time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout := params.CycleTimeout
	if timeout <= 0 {
		if l, ok := params.Lock.(ttlLock); ok && l.TTL() > 2*leaseSafetyMargin {
			timeout = l.TTL() - leaseSafetyMargin
		}
	}
	return &Service{
		logg:         params.Logger,
		registry:     registry,
		lock:         params.Lock,
		metrics:      params.Metrics,
		interval:     interval,
		cycleTimeout: timeout,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron worker holds the lock; skipping cycle")
		return nil
	}
	defer func() {
		// release even when ctx was canceled mid-cycle
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	cycleCtx := ctx
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	jobs := s.registry.Jobs()
	failed := 0
	for _, job := range jobs {
		if cycleCtx.Err() != nil {
			break
		}
		if !s.runJob(cycleCtx, job) {
			failed++
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":   len(jobs),
		"failed": failed,
	}), "scheduled run complete")
	return nil
}

// runJob reports whether job finished without error or panic.
func (s *Service) runJob(ctx context.Context, job Job) (ok bool) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			jobCtx = s.logg.WithField(jobCtx, "stack", string(debug.Stack()))
			s.logg.Error(jobCtx, "job panicked", fmt.Errorf("panic: %v", rec))
			ok = false
		}
		duration := time.Since(start)
		s.metrics.ObserveDuration(name, duration)
		if ok {
			s.metrics.IncSuccess(name)
			s.metrics.SetLastSuccess(name, time.Now())
		} else {
			s.metrics.IncFailure(name)
		}
		s.logg.Info(s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds()), "job finished")
	}()

	if err := job.Run(jobCtx); err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return false
	}
	return true
}
