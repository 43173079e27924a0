package cron

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
)

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}})
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	service, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: NewRegistry(success, failure),
		Lock:     &LocalLock{},
		Metrics:  metrics.NewJobMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	err = service.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("expected the failing job in the cycle error, got %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job to run once, got success=%d fail=%d", success.runs, failure.runs)
	}
}

type panicJob struct{}

func (panicJob) Name() string { return "explode" }

func (panicJob) Run(context.Context) error { panic("nil map") }

func TestRunOnceRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	service, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: NewRegistry(panicJob{}, after),
		Lock:     &LocalLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	err = service.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "explode: panic: nil map") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("expected remaining job to run, ran %d", after.runs)
	}
}

func TestRunOnceAppliesJobTimeout(t *testing.T) {
	var deadline time.Time
	service, err := NewService(ServiceParams{
		Logger: newTestLogger(),
		Registry: NewRegistry(JobFunc("deadline", func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		})),
		Lock:       &LocalLock{},
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > time.Minute {
		t.Fatalf("unexpected job deadline, %v remaining", remaining)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "purge"}
	lock := &LocalLock{}
	service, err := NewService(ServiceParams{Logger: newTestLogger(), Registry: NewRegistry(job), Lock: lock})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("expected to acquire a free lock")
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped while locked, ran %d", job.runs)
	}

	_ = lock.Release(context.Background())
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected job to run after release, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &LocalLock{}}); err == nil {
		t.Fatal("expected missing logger to fail")
	}
	if _, err := NewService(ServiceParams{Logger: newTestLogger()}); err == nil {
		t.Fatal("expected missing lock to fail")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "tick"}
	service, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: NewRegistry(job),
		Lock:     &LocalLock{},
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no run before the first tick, ran %d", job.runs)
	}
}

type fakePurger struct {
	purged int64
	err    error
}

func (f fakePurger) PurgeExpired(context.Context) (int64, error) {
	return f.purged, f.err
}

type fakeEvicter struct {
	idle time.Duration
}

func (f *fakeEvicter) EvictIdle(idle time.Duration) int {
	f.idle = idle
	return 2
}

func TestMaintenanceJobs(t *testing.T) {
	logg := newTestLogger()
	if err := NewStatePurgeJob(fakePurger{purged: 3}, logg).Run(context.Background()); err != nil {
		t.Fatalf("purge job: %v", err)
	}
	if err := NewStatePurgeJob(fakePurger{err: errors.New("db down")}, nil).Run(context.Background()); err == nil {
		t.Fatal("expected purge failure to surface")
	}

	evicter := &fakeEvicter{}
	job := NewConsoleEvictJob(evicter, 30*time.Minute, logg)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("evict job: %v", err)
	}
	if evicter.idle != 30*time.Minute {
		t.Fatalf("expected idle threshold to be passed through, got %v", evicter.idle)
	}
	if job.Name() != "console_evict" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}
