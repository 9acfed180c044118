// Package scheduler triggers periodic sync runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of work triggered by the scheduler.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type jobFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (j jobFunc) Name() string                  { return j.name }
func (j jobFunc) Run(ctx context.Context) error { return j.fn(ctx) }

// JobFunc adapts a function to Job.
func JobFunc(name string, fn func(ctx context.Context) error) Job {
	return jobFunc{name: name, fn: fn}
}

// Scheduler wraps cron with per-job timeouts and logging. Overlapping
// executions of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	adhoc   sync.WaitGroup
}

// NewScheduler builds a scheduler accepting optional seconds and descriptors
// such as "@every 30m".
func NewScheduler(logger *zap.Logger, timeout time.Duration) *Scheduler {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger.Sugar()})),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: c, logger: logger, timeout: timeout, ctx: ctx, cancel: cancel}
}

// Register binds a cron spec to a job.
func (s *Scheduler) Register(spec string, job Job) (cron.EntryID, error) {
	if job == nil {
		return 0, errors.New("scheduler: job is required")
	}
	if spec == "" {
		return 0, errors.New("scheduler: spec is required")
	}
	id, err := s.cron.AddFunc(spec, func() { s.execute(job) })
	if err != nil {
		return 0, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	s.logger.Info("job registered", zap.String("job", job.Name()), zap.String("spec", spec))
	return id, nil
}

// RunNow executes a job once in the background, outside the schedule.
func (s *Scheduler) RunNow(job Job) {
	s.adhoc.Add(1)
	go func() {
		defer s.adhoc.Done()
		s.execute(job)
	}()
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
}

// Stop cancels running jobs and returns a context done once every scheduled
// and RunNow job returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.cancel()
	var cronDone <-chan struct{}
	if s.started {
		s.started = false
		cronDone = s.cron.Stop().Done()
	}
	s.mu.Unlock()

	ctx, done := context.WithCancel(context.Background())
	go func() {
		if cronDone != nil {
			<-cronDone
		}
		s.adhoc.Wait()
		done()
	}()
	return ctx
}

func (s *Scheduler) execute(job Job) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name()), zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	s.logger.Info("job completed", zap.String("job", job.Name()), zap.Duration("elapsed", time.Since(start)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
