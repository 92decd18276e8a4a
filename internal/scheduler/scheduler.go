package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmaas/ivcrush/pkg/logger"
)

// Job is a unit of periodic background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error

	// Schedule returns a cron expression, e.g. "@hourly" or "*/5 * * * *".
	Schedule() string
}

// Result records one job execution.
type Result struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

const historyLimit = 100

// Scheduler runs background jobs on cron schedules. Trading itself is driven
// by the orchestrator loop; the scheduler only carries housekeeping work.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	history map[string][]Result
	mu      sync.RWMutex
}

// New creates an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		logger:  log,
		jobs:    make(map[string]Job),
		history: make(map[string][]Result),
	}
}

// AddJob registers a job with the scheduler.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	if _, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(job)
	}); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob triggers a job immediately, outside its schedule.
func (s *Scheduler) RunJob(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	go s.runJob(job)
	return nil
}

// History returns the recorded executions of a job, oldest first.
func (s *Scheduler) History(name string) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.jobs[name]; !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	results := s.history[name]
	out := make([]Result, len(results))
	copy(out, results)
	return out, nil
}

func (s *Scheduler) runJob(job Job) {
	name := job.Name()
	start := time.Now()

	err := job.Run(context.Background())
	duration := time.Since(start)

	result := Result{
		JobName:   name,
		StartTime: start,
		Duration:  duration,
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	s.history[name] = append(s.history[name], result)
	if len(s.history[name]) > historyLimit {
		s.history[name] = s.history[name][len(s.history[name])-historyLimit:]
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": duration,
			"error":    err.Error(),
		}).Error("Job failed")
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"duration": duration,
	}).Debug("Job completed")
}
