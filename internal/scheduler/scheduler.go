// Package scheduler implements the Scheduler (component I): a cooperative, ~100ms-
// resolution tick source driving hourly jobs with a no-overlap guarantee per job.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tickResolution is the scheduler's cooperative polling granularity.
const tickResolution = 100 * time.Millisecond

// Job is one periodically-run unit of work. Interval controls how often it runs; Run must
// be safe to call repeatedly and should return promptly relative to Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs registered jobs on their own cadence, off a single ticking goroutine.
// Jobs never run concurrently with themselves: a still-running job is skipped on the tick
// where its interval next elapses.
type Scheduler struct {
	log  *zap.Logger
	jobs []*scheduledJob
}

type scheduledJob struct {
	job      Job
	lastRun  time.Time
	mu       sync.Mutex
	running  bool
}

// New constructs a Scheduler with the given jobs. Each job's first run happens after one
// full Interval has elapsed, not immediately.
func New(log *zap.Logger, jobs ...Job) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	scheduled := make([]*scheduledJob, len(jobs))
	now := time.Now()
	for i, j := range jobs {
		scheduled[i] = &scheduledJob{job: j, lastRun: now}
	}
	return &Scheduler{log: log, jobs: scheduled}
}

// Run blocks, ticking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickResolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, sj := range s.jobs {
		sj.mu.Lock()
		due := now.Sub(sj.lastRun) >= sj.job.Interval
		alreadyRunning := sj.running
		if due && !alreadyRunning {
			sj.running = true
			sj.lastRun = now
		}
		sj.mu.Unlock()

		if !due || alreadyRunning {
			continue
		}
		go s.runOnce(ctx, sj)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, sj *scheduledJob) {
	defer func() {
		sj.mu.Lock()
		sj.running = false
		sj.mu.Unlock()
	}()
	if err := sj.job.Run(ctx); err != nil {
		s.log.Warn("scheduled job failed", zap.String("job", sj.job.Name), zap.Error(err))
	}
}
