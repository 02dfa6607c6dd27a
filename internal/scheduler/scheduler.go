// Package scheduler runs the pipeline's periodic jobs — REST polling,
// quality scans, and the backfill retry sweep — each on its own ticker,
// independent of the others per §5's concurrency model.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one named, independently-ticked unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Result is the outcome of one job execution, retained for inspection via
// LastResult.
type Result struct {
	JobName   string
	StartTime time.Time
	Duration  time.Duration
	Err       error
}

// Scheduler runs a fixed set of Jobs, each on its own goroutine and ticker.
type Scheduler struct {
	jobs []Job
	log  zerolog.Logger

	mu      sync.RWMutex
	last    map[string]Result
	running bool
}

// New constructs a Scheduler for jobs. Jobs with a non-positive Interval are
// rejected at construction since a zero-interval ticker panics.
func New(jobs []Job, log zerolog.Logger) (*Scheduler, error) {
	for _, j := range jobs {
		if j.Interval <= 0 {
			return nil, fmt.Errorf("scheduler: job %q has non-positive interval", j.Name)
		}
		if j.Run == nil {
			return nil, fmt.Errorf("scheduler: job %q has no run function", j.Name)
		}
	}
	return &Scheduler{
		jobs: jobs,
		log:  log.With().Str("component", "scheduler").Logger(),
		last: make(map[string]Result),
	}, nil
}

// Start runs every job on its own ticker until ctx is canceled, blocking
// until all job goroutines have returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.runTicked(ctx, j)
		}(job)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runTicked(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, j)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j Job) {
	start := time.Now()
	err := j.Run(ctx)
	res := Result{JobName: j.Name, StartTime: start, Duration: time.Since(start), Err: err}

	s.mu.Lock()
	s.last[j.Name] = res
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", j.Name).Dur("duration", res.Duration).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", j.Name).Dur("duration", res.Duration).Msg("job completed")
}

// LastResult returns the most recent Result for a job name, if it has run.
func (s *Scheduler) LastResult(name string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[name]
	return r, ok
}

// Running reports whether Start is currently executing.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
