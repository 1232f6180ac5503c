package schedule

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/xennygrimmato/transitions"
)

// Logger is the minimal logging contract the scheduler needs. The machine
// Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// JobConfig tunes one scheduled trigger job.
type JobConfig struct {
	// Expression is the cron expression for recurring jobs. One-shot
	// scheduling ignores it.
	Expression string
	// MaxRetries is how many times a failed run is retried before the
	// failure is reported. Zero means a single attempt.
	MaxRetries int
	// Retry shapes the wait between attempts; nil retries immediately.
	Retry RetryStrategy
	// Timeout bounds each attempt. Zero means no per-attempt deadline.
	Timeout time.Duration
	// MustExecute treats a quiet no-op (no candidate fired) as a failure.
	MustExecute bool
}

// Scheduler fires machine triggers on cron expressions and one-shot timers.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger    Logger
	parser    Parser
	logWriter io.Writer
	logLevel  LogLevel

	nextHandleID int64
	handles      map[int64]*triggerHandle
}

// NewScheduler creates a scheduler with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		errorHandler: func(err error) {
			log.Printf("error: %v\n", err)
		},
		handles: make(map[int64]*triggerHandle),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.cron = rcron.New(s.build()...)
	return s
}

// SetLogger swaps the scheduler's logger.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// ScheduleTrigger fires trigger on model every time cfg.Expression matches.
// The model must already be bound to machine.
func (s *Scheduler) ScheduleTrigger(cfg JobConfig, machine *transitions.Machine, model *transitions.Model, trigger string, args ...any) (Handle, error) {
	run, err := triggerRunnable(machine, model, trigger, cfg.MustExecute, args)
	if err != nil {
		return nil, err
	}
	return s.ScheduleFunc(cfg, run)
}

// ScheduleTriggerAfter fires trigger once after delay.
func (s *Scheduler) ScheduleTriggerAfter(delay time.Duration, cfg JobConfig, machine *transitions.Machine, model *transitions.Model, trigger string, args ...any) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleTriggerAt(time.Now().Add(delay), cfg, machine, model, trigger, args...)
}

// ScheduleTriggerAt fires trigger once at a specific time.
func (s *Scheduler) ScheduleTriggerAt(at time.Time, cfg JobConfig, machine *transitions.Machine, model *transitions.Model, trigger string, args ...any) (Handle, error) {
	run, err := triggerRunnable(machine, model, trigger, cfg.MustExecute, args)
	if err != nil {
		return nil, err
	}
	return s.ScheduleFuncAt(at, cfg, run)
}

// ScheduleFunc runs fn every time cfg.Expression matches.
func (s *Scheduler) ScheduleFunc(cfg JobConfig, fn func(context.Context) error) (Handle, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("job function cannot be nil")
	}

	handle := s.newHandle()
	job := rcron.FuncJob(func() {
		status := handle.Status()
		if isTerminalStatus(status) {
			return
		}

		handle.setStatus(ScheduleStatusRunning, nil)
		if err := s.runJob(cfg, fn); err != nil {
			handle.setStatus(ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}

		if !isTerminalStatus(handle.Status()) {
			handle.setStatus(ScheduleStatusIdle, nil)
		}
	})

	entryID, err := s.cron.AddJob(cfg.Expression, job)
	if err != nil {
		return nil, fmt.Errorf("failed to add job: %w", err)
	}
	handle.entryID = int(entryID)
	s.storeHandle(handle)
	return handle, nil
}

// ScheduleFuncAt runs fn once at a specific time.
func (s *Scheduler) ScheduleFuncAt(at time.Time, cfg JobConfig, fn func(context.Context) error) (Handle, error) {
	if fn == nil {
		return nil, fmt.Errorf("job function cannot be nil")
	}

	handle := s.newHandle()
	s.storeHandle(handle)

	go func() {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-handle.Done():
			return
		}

		if isTerminalStatus(handle.Status()) {
			return
		}
		handle.setStatus(ScheduleStatusRunning, nil)
		if err := s.runJob(cfg, fn); err != nil {
			handle.setTerminal(ScheduleStatusFailed, err)
			s.errorHandler(err)
			s.removeStoredHandle(handle.id)
			return
		}
		handle.setTerminal(ScheduleStatusCompleted, nil)
		s.removeStoredHandle(handle.id)
	}()

	return handle, nil
}

// runJob executes one scheduled run, retrying per the job's strategy.
func (s *Scheduler) runJob(cfg JobConfig, fn func(context.Context) error) error {
	strategy := cfg.Retry
	if strategy == nil {
		strategy = NoDelayStrategy{}
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = s.runAttempt(cfg.Timeout, fn)
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries {
			return err
		}
		decision := DecideRetry(strategy, attempt, err)
		if !decision.ShouldRetry {
			return err
		}
		if s.logger != nil {
			s.logger.Error("scheduled run failed",
				"attempt", attempt+1,
				"max_attempts", cfg.MaxRetries+1,
				"error", err,
			)
		}
		if decision.Delay > 0 {
			time.Sleep(decision.Delay)
		}
	}
}

func (s *Scheduler) runAttempt(timeout time.Duration, fn func(context.Context) error) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

func triggerRunnable(machine *transitions.Machine, model *transitions.Model, trigger string, mustExecute bool, args []any) (func(context.Context) error, error) {
	if machine == nil {
		return nil, fmt.Errorf("machine cannot be nil")
	}
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if trigger == "" {
		return nil, fmt.Errorf("trigger name cannot be empty")
	}
	if mustExecute {
		return func(ctx context.Context) error {
			return machine.MustTrigger(ctx, model, trigger, args...)
		}, nil
	}
	return func(ctx context.Context) error {
		_, err := machine.Trigger(ctx, model, trigger, args...)
		return err
	}, nil
}

// Remove cancels every handle attached to a cron entry ID.
func (s *Scheduler) Remove(entryID int) {
	if s == nil {
		return
	}

	var affected []*triggerHandle
	s.mu.Lock()
	for id, handle := range s.handles {
		if handle != nil && handle.entryID == entryID {
			affected = append(affected, handle)
			delete(s.handles, id)
		}
	}
	s.mu.Unlock()

	s.cron.Remove(rcron.EntryID(entryID))
	for _, handle := range affected {
		handle.setTerminal(ScheduleStatusCanceled, nil)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops executing scheduled jobs and marks active handles as stopped.
func (s *Scheduler) Stop(_ context.Context) error {
	s.cron.Stop()

	var handles []*triggerHandle
	s.mu.Lock()
	for _, handle := range s.handles {
		handles = append(handles, handle)
	}
	s.handles = make(map[int64]*triggerHandle)
	s.mu.Unlock()

	for _, handle := range handles {
		if handle == nil {
			continue
		}
		if handle.entryID > 0 {
			s.cron.Remove(rcron.EntryID(handle.entryID))
		}
		if isTerminalStatus(handle.Status()) {
			continue
		}
		handle.setTerminal(ScheduleStatusStopped, nil)
	}
	return nil
}

func (s *Scheduler) removeHandle(id int64) {
	handle := s.removeStoredHandle(id)
	if handle == nil {
		return
	}
	if handle.entryID > 0 {
		s.cron.Remove(rcron.EntryID(handle.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *triggerHandle {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.handles[id]
	delete(s.handles, id)
	return handle
}

func (s *Scheduler) storeHandle(handle *triggerHandle) {
	if s == nil || handle == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles == nil {
		s.handles = make(map[int64]*triggerHandle)
	}
	s.handles[handle.id] = handle
}

func (s *Scheduler) newHandle() *triggerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &triggerHandle{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func makeLogger(out io.Writer, level LogLevel) rcron.Logger {
	stdLogger := log.New(out, "schedule: ", log.LstdFlags)
	cronLogger := rcron.PrintfLogger(stdLogger)
	if level >= LogLevelDebug {
		cronLogger = rcron.VerbosePrintfLogger(stdLogger)
	}
	return cronLogger
}

// build converts implementation-agnostic options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	if s.errorHandler != nil {
		opts = append(opts, rcron.WithChain(
			rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler}),
		))
	}

	var cronLogger rcron.Logger
	switch {
	case s.logger != nil:
		cronLogger = &loggerAdapter{logger: s.logger, level: s.logLevel}
	case s.logWriter != nil:
		cronLogger = makeLogger(s.logWriter, s.logLevel)
	default:
		if s.logLevel > LogLevelSilent {
			cronLogger = makeLogger(os.Stdout, s.logLevel)
		}
	}

	if cronLogger != nil {
		opts = append(opts, rcron.WithLogger(cronLogger))
	}

	return opts
}
