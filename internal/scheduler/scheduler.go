// Package scheduler decides which proactive actions are due and fires them.
//
// Runner.RunCycle is the stateless unit of work: it is driven either by the
// execute endpoint or by the cron-based Scheduler in this package.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CycleRunner runs one scheduling cycle at a given instant.
type CycleRunner interface {
	RunCycle(ctx context.Context, at time.Time) (*CycleReport, error)
}

// Alerter is told about every finished cycle.
type Alerter interface {
	CycleFinished(ctx context.Context, report *CycleReport) error
}

// Scheduler triggers RunCycle on a cron schedule.
type Scheduler struct {
	runner  CycleRunner
	spec    string
	alerter Alerter
	now     func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSpec reports whether spec is a cron expression the scheduler
// accepts.
func ValidateSpec(spec string) error {
	_, err := cronParser.Parse(spec)
	return err
}

// New creates a Scheduler that runs runner on spec. alerter may be nil.
func New(runner CycleRunner, spec string, alerter Alerter) *Scheduler {
	return &Scheduler{
		runner:  runner,
		spec:    spec,
		alerter: alerter,
		now:     time.Now,
	}
}

// Start registers the cycle and starts the cron ticker. A tick that arrives
// while the previous cycle is still running is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		cancel()
		return err
	}
	s.cron = c
	s.cancel = cancel
	c.Start()
	slog.Info("scheduler started", "spec", s.spec)
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	report, err := s.runner.RunCycle(ctx, s.now())
	if err != nil {
		slog.Error("scheduling cycle failed", "error", err)
		return
	}
	if s.alerter == nil {
		return
	}
	if err := s.alerter.CycleFinished(ctx, report); err != nil {
		slog.Warn("cycle alert failed", "error", err)
	}
}

// Stop stops the cron ticker and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
}
