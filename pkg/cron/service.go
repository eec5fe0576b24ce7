package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds a single run when ServiceOptions.Timeout is unset.
const DefaultJobTimeout = 5 * time.Minute

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Timeout bounds each run.
	Timeout time.Duration
	Logger  zerolog.Logger
}

type job struct {
	id       string
	name     string
	schedule string
	entry    cron.EntryID
	run      JobFunc

	mu      sync.Mutex
	running bool
	state   JobState
}

// Service runs named jobs on cron schedules. A tick that arrives while the previous run
// of the same job is still going is dropped.
type Service struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.RWMutex
	jobs    map[string]*job
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a stopped service.
func NewService(opts ServiceOptions) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		cron:    cron.New(cron.WithParser(parser)),
		timeout: opts.Timeout,
		logger:  opts.Logger.With().Str("component", "cron").Logger(),
		jobs:    make(map[string]*job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob schedules fn under a unique name and returns the job id.
func (s *Service) AddJob(name, schedule string, fn JobFunc) (string, error) {
	if name == "" {
		return "", fmt.Errorf("job name is required")
	}
	if fn == nil {
		return "", fmt.Errorf("job %s: function is required", name)
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return "", fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", fmt.Errorf("service is stopped")
	}
	if _, exists := s.jobs[name]; exists {
		return "", fmt.Errorf("job %s already exists", name)
	}

	j := &job{id: uuid.NewString(), name: name, schedule: schedule, run: fn}
	j.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(j) }))
	s.jobs[name] = j

	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("Job scheduled")
	return j.id, nil
}

// RemoveJob unschedules a job. A run in progress finishes.
func (s *Service) RemoveJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.cron.Remove(j.entry)
	delete(s.jobs, name)
	return true
}

// RunNow runs a job immediately in the background.
func (s *Service) RunNow(name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	if s.stopped {
		return fmt.Errorf("service is stopped")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(j)
	}()
	return nil
}

func (s *Service) execute(j *job) {
	j.mu.Lock()
	if j.running {
		j.state.LastStatus = StatusOverlap
		j.mu.Unlock()
		s.logger.Warn().Str("job", j.name).Msg("Previous run still in progress, skipping tick")
		return
	}
	j.running = true
	start := time.Now()
	j.state.RunningSince = &start
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	err := j.run(ctx)
	cancel()

	duration := time.Since(start)

	j.mu.Lock()
	j.running = false
	j.state.RunningSince = nil
	j.state.LastRunAt = &start
	j.state.LastDuration = duration
	j.state.Runs++
	switch {
	case err == nil:
		j.state.LastStatus = StatusOK
		j.state.LastError = ""
		j.state.ConsecutiveErrors = 0
	case errors.Is(err, ErrSkipped):
		j.state.LastStatus = StatusSkipped
		j.state.LastError = ""
	default:
		j.state.LastStatus = StatusError
		j.state.LastError = err.Error()
		j.state.ConsecutiveErrors++
	}
	status, failures := j.state.LastStatus, j.state.ConsecutiveErrors
	j.mu.Unlock()

	event := s.logger.Info()
	if status == StatusError {
		event = s.logger.Warn().Err(err).Int("consecutive_errors", failures)
	}
	event.Str("job", j.name).Str("status", status).Dur("duration", duration).Msg("Job finished")
}

// Start starts the scheduler.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("service is stopped")
	}
	if s.started {
		return fmt.Errorf("service is already running")
	}
	s.started = true
	s.cron.Start()

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Cron service started")
	return nil
}

// Stop stops scheduling, cancels runs in progress and waits for them until ctx is done.
// It is safe to call more than once.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		if started {
			<-s.cron.Stop().Done()
		}
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Cron service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron service did not stop: %w", ctx.Err())
	}
}

// Jobs lists job snapshots sorted by name.
func (s *Service) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		state := j.state
		j.mu.Unlock()

		if entry := s.cron.Entry(j.entry); entry.Valid() && !entry.Next.IsZero() {
			next := entry.Next
			state.NextRunAt = &next
		}
		out = append(out, JobStatus{ID: j.id, Name: j.name, Schedule: j.schedule, State: state})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}
