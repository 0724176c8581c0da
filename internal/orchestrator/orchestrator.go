// Package orchestrator runs jobs on a daily schedule and on demand, allowing
// at most one concurrent run per job kind.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tse-market-sync/internal/jobs"
	"tse-market-sync/internal/logging"
	"tse-market-sync/internal/observability"
	"tse-market-sync/internal/report"
)

// ErrUnknownJob is returned by RunOnce for a job that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Orchestrator coordinates job execution.
type Orchestrator struct {
	logger   *logging.Logger
	location *time.Location
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	task   jobs.Task
	hour   int
	minute int
	daily  bool
	lock   sync.Mutex // held for the duration of a run
}

// Options for creating Orchestrator.
type Options struct {
	Logger *logging.Logger

	// Location is the time zone of daily run times. Default: UTC.
	Location *time.Location

	// Now overrides the clock in tests.
	Now func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		logger:   logging.OrSilent(opts.Logger).Component("orchestrator"),
		location: loc,
		now:      now,
		entries:  make(map[string]*entry),
	}
}

// Register adds task. It runs daily at hour:minute in the orchestrator's
// location when daily is set, and only through RunOnce otherwise.
// Registering a name again replaces the earlier task.
func (o *Orchestrator) Register(task jobs.Task, daily bool, hour, minute int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[task.Name()] = &entry{task: task, hour: hour, minute: minute, daily: daily}
}

// Jobs returns the registered job names in order.
func (o *Orchestrator) Jobs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.entries))
	for name := range o.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunResult is the outcome of one triggered run.
type RunResult struct {
	Job      string
	Skipped  bool
	Report   *report.Report
	Err      error
	Duration time.Duration
}

// RunOnce runs the named job now. When a run of the same job is already in
// progress the trigger is dropped and the result is marked Skipped.
func (o *Orchestrator) RunOnce(ctx context.Context, name string) (*RunResult, error) {
	o.mu.Lock()
	e, ok := o.entries[name]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return o.run(ctx, e), nil
}

func (o *Orchestrator) run(ctx context.Context, e *entry) *RunResult {
	name := e.task.Name()
	if !e.lock.TryLock() {
		observability.RecordJobSkipped(name)
		o.logger.Warn().Str("job", name).Msg("previous run still in progress, trigger skipped")
		return &RunResult{Job: name, Skipped: true}
	}
	defer e.lock.Unlock()

	o.logger.Info().Str("job", name).Msg("job started")
	start := time.Now()
	rep, err := e.task.Run(ctx)
	result := &RunResult{Job: name, Report: rep, Err: err, Duration: time.Since(start)}
	o.logResult(result)
	return result
}

func (o *Orchestrator) logResult(r *RunResult) {
	if r.Report != nil {
		for _, line := range r.Report.Information() {
			o.logger.Info().Str("job", r.Job).Str("run_id", r.Report.RunID).Msg(line)
		}
		for _, line := range r.Report.Warnings() {
			o.logger.Warn().Str("job", r.Job).Str("run_id", r.Report.RunID).Msg(line)
		}
	}

	if r.Err != nil {
		ev := o.logger.Error().Err(r.Err).Str("job", r.Job).Dur("duration", r.Duration)
		var failure *jobs.Failure
		if errors.As(r.Err, &failure) && failure.HTMLMessage != "" {
			ev = ev.Str("html", failure.HTMLMessage)
		}
		ev.Msg("job failed")
		return
	}
	if r.Report != nil && r.Report.HasWarnings() {
		o.logger.Warn().Str("job", r.Job).Dur("duration", r.Duration).Int("warnings", len(r.Report.Warnings())).Msg("job finished with warnings")
		return
	}
	o.logger.Info().Str("job", r.Job).Dur("duration", r.Duration).Msg("job finished")
}

// Start runs every daily job at its run time until ctx is cancelled, then
// waits for in-flight runs to return.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	var daily []*entry
	for _, e := range o.entries {
		if e.daily {
			daily = append(daily, e)
		}
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range daily {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			o.loop(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (o *Orchestrator) loop(ctx context.Context, e *entry) {
	for {
		now := o.now()
		next := NextRun(now, e.hour, e.minute, o.location)
		o.logger.Info().Str("job", e.task.Name()).Time("next_run", next).Msg("job scheduled")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			o.run(ctx, e)
		}
	}
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
