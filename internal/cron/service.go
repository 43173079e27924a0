// Package cron runs the console's periodic maintenance: purging expired state
// rows and dropping idle in-memory consoles.
package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 5 * time.Minute
	maxParallelJobs   = 4
)

// ServiceParams configure a Service. Logger and Lock are required.
type ServiceParams struct {
	Name       string
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.JobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs its registry every interval, but only while it holds the lock.
type Service struct {
	ServiceParams
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	if params.Registry == nil {
		params.Registry = NewRegistry()
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	if params.JobTimeout <= 0 {
		params.JobTimeout = defaultJobTimeout
	}
	if params.Name == "" {
		params.Name = "maintenance"
	}
	return &Service{ServiceParams: params}, nil
}

// Run blocks until ctx ends, starting a cycle on every tick. The first cycle
// waits a full interval.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.Logger.WithField(ctx, "scheduler", s.Name)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Debug(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.Logger.Error(ctx, "maintenance cycle had failures", err)
			}
		}
	}
}

// RunOnce runs every job once, a few at a time, and returns the combined
// job failures. A cycle skipped because another holder has the lock is not an
// error.
func (s *Service) RunOnce(ctx context.Context) error {
	won, err := s.Lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !won {
		s.Logger.Debug(ctx, "maintenance lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if err := s.Lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.Logger.Error(ctx, "maintenance lock release failed", err)
		}
	}()

	var (
		mu       sync.Mutex
		failures error
		group    errgroup.Group
	)
	group.SetLimit(maxParallelJobs)
	for _, job := range s.Registry.Jobs() {
		group.Go(func() error {
			if err := s.runJob(ctx, job); err != nil {
				mu.Lock()
				failures = multierr.Append(failures, fmt.Errorf("%s: %w", job.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return failures
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	ctx = s.Logger.WithField(ctx, "job", job.Name())
	ctx, cancel := context.WithTimeout(ctx, s.JobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			ctx = s.Logger.WithField(ctx, "stack", string(debug.Stack()))
		}
		elapsed := time.Since(start)
		s.Metrics.ObserveDuration(job.Name(), elapsed)
		ctx = s.Logger.WithField(ctx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.Metrics.IncFailure(job.Name())
			s.Logger.Error(ctx, "job failed", err)
			return
		}
		s.Metrics.IncSuccess(job.Name())
		s.Logger.Debug(ctx, "job done")
	}()
	return job.Run(ctx)
}
