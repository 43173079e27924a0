package cron

import (
	"context"
	"time"

	"github.com/angelmondragon/minierp-console/pkg/logger"
)

// Purger drops expired persisted state.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Evicter forgets consoles that have not been used for a while.
type Evicter interface {
	EvictIdle(idle time.Duration) int
}

// StatePurgeJob removes session and cart rows whose TTL has passed.
type StatePurgeJob struct {
	purger Purger
	logg   *logger.Logger
}

func NewStatePurgeJob(purger Purger, logg *logger.Logger) *StatePurgeJob {
	return &StatePurgeJob{purger: purger, logg: logg}
}

func (j *StatePurgeJob) Name() string { return "state_purge" }

func (j *StatePurgeJob) Run(ctx context.Context) error {
	purged, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if purged > 0 && j.logg != nil {
		j.logg.Info(j.logg.WithField(ctx, "purged", purged), "expired state purged")
	}
	return nil
}

// ConsoleEvictJob bounds the number of consoles a long running server keeps in
// memory. Eviction is per process, so it runs under a LocalLock.
type ConsoleEvictJob struct {
	evicter Evicter
	idle    time.Duration
	logg    *logger.Logger
}

func NewConsoleEvictJob(evicter Evicter, idle time.Duration, logg *logger.Logger) *ConsoleEvictJob {
	return &ConsoleEvictJob{evicter: evicter, idle: idle, logg: logg}
}

func (j *ConsoleEvictJob) Name() string { return "console_evict" }

func (j *ConsoleEvictJob) Run(ctx context.Context) error {
	evicted := j.evicter.EvictIdle(j.idle)
	if evicted > 0 && j.logg != nil {
		j.logg.Debug(j.logg.WithField(ctx, "evicted", evicted), "idle consoles evicted")
	}
	return nil
}
