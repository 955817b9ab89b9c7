package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/xbora/mio/internal/schedule"
	"github.com/xbora/mio/internal/types"
)

// DefaultWindow is how far from next_run_at an action still counts as due.
const DefaultWindow = 5 * time.Minute

// Deliverer sends one fired action to its channel.
type Deliverer interface {
	Deliver(ctx context.Context, action *types.ProactiveAction, user *types.User) error
}

// UserLookup resolves contact details for a user.
type UserLookup interface {
	Get(ctx context.Context, id types.UserID) (*types.User, error)
}

// ExecutedAction reports one action that was due and dispatched.
type ExecutedAction struct {
	ID              types.ActionID `json:"id"`
	UserID          types.UserID   `json:"user_id"`
	SkillNames      []string       `json:"skill_names"`
	DeliveryChannel types.Channel  `json:"delivery_channel"`
	Success         bool           `json:"success"`
	Error           string         `json:"error,omitempty"`
}

// SkippedAction reports one active action outside the window. Negative
// MinutesUntilReady means overdue.
type SkippedAction struct {
	ID                types.ActionID `json:"id"`
	ScheduledTime     time.Time      `json:"scheduled_time"`
	MinutesUntilReady int            `json:"minutes_until_ready"`
}

type CycleReport struct {
	ExecutionTime time.Time        `json:"execution_time"`
	Executed      []ExecutedAction `json:"executed"`
	Skipped       []SkippedAction  `json:"skipped"`
}

// Failed returns the executed actions that did not deliver.
func (r *CycleReport) Failed() []ExecutedAction {
	var out []ExecutedAction
	for _, e := range r.Executed {
		if !e.Success {
			out = append(out, e)
		}
	}
	return out
}

// Overdue returns skipped actions whose next_run_at is further than window
// in the past.
func (r *CycleReport) Overdue(window time.Duration) []SkippedAction {
	limit := -int(window / time.Minute)
	var out []SkippedAction
	for _, s := range r.Skipped {
		if s.MinutesUntilReady < limit {
			out = append(out, s)
		}
	}
	return out
}

// Runner evaluates every active action against an execution instant. It
// holds no state between cycles; everything is re-derived from the store.
type Runner struct {
	store    types.ActionStore
	users    UserLookup
	delivery Deliverer
	window   time.Duration
}

type RunnerOption func(*Runner)

// WithWindow sets the due tolerance. Callers must run cycles at least this
// often for every action to be seen inside its window.
func WithWindow(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.window = d
		}
	}
}

func NewRunner(store types.ActionStore, users UserLookup, delivery Deliverer, opts ...RunnerOption) *Runner {
	r := &Runner{store: store, users: users, delivery: delivery, window: DefaultWindow}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Window() time.Duration {
	return r.window
}

// RunCycle fires every active action whose next_run_at lies within the window
// of at, in next_run_at order. A failing action never stops the cycle.
func (r *Runner) RunCycle(ctx context.Context, at time.Time) (*CycleReport, error) {
	at = at.UTC()
	actions, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active actions: %w", err)
	}

	report := &CycleReport{
		ExecutionTime: at,
		Executed:      []ExecutedAction{},
		Skipped:       []SkippedAction{},
	}
	for _, action := range actions {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !r.due(action.NextRunAt, at) {
			report.Skipped = append(report.Skipped, SkippedAction{
				ID:                action.ID,
				ScheduledTime:     action.NextRunAt,
				MinutesUntilReady: int(math.Floor(action.NextRunAt.Sub(at).Minutes())),
			})
			continue
		}

		result := ExecutedAction{
			ID:              action.ID,
			UserID:          action.UserID,
			SkillNames:      action.SkillNames,
			DeliveryChannel: action.DeliveryChannel,
		}
		if err := r.trigger(ctx, action, at); err != nil {
			result.Error = err.Error()
			slog.Error("proactive action failed", "action_id", action.ID, "channel", action.DeliveryChannel, "error", err)
			if rerr := r.store.RecordFailure(ctx, action.ID, err.Error()); rerr != nil {
				slog.Error("record action failure", "action_id", action.ID, "error", rerr)
			}
		} else {
			result.Success = true
		}
		report.Executed = append(report.Executed, result)
	}

	slog.Info("proactive cycle done", "execution_time", at, "executed", len(report.Executed), "skipped", len(report.Skipped))
	return report, nil
}

func (r *Runner) due(next, at time.Time) bool {
	d := at.Sub(next)
	if d < 0 {
		d = -d
	}
	return d <= r.window
}

// trigger delivers one action and advances it on success.
func (r *Runner) trigger(ctx context.Context, action *types.ProactiveAction, at time.Time) error {
	user, err := r.users.Get(ctx, action.UserID)
	if err != nil {
		return fmt.Errorf("resolve user %s: %w", action.UserID, err)
	}
	if err := r.delivery.Deliver(ctx, action, user); err != nil {
		return err
	}

	next, err := r.advance(ctx, action, at)
	if err != nil {
		// Delivered but unschedulable: leave counters to the failure path.
		return fmt.Errorf("compute next run: %w", err)
	}
	if err := r.store.RecordSuccess(ctx, action.ID, next, at); err != nil {
		// next_run_at did not move, so the next cycle will deliver again.
		return fmt.Errorf("delivered but could not record success: %w", err)
	}
	slog.Info("proactive action delivered", "action_id", action.ID, "channel", action.DeliveryChannel, "next_run_at", next)
	return nil
}

// advance computes the next run after a firing at at. It starts from the
// later of at and the fired next_run_at, then steps until the result is
// outside the window of at, so a repeated cycle at the same instant cannot
// fire the action again.
func (r *Runner) advance(ctx context.Context, action *types.ProactiveAction, at time.Time) (time.Time, error) {
	base := at
	if action.NextRunAt.After(base) {
		base = action.NextRunAt
	}
	next, err := schedule.NextRun(action.Schedule, base)
	if err != nil {
		return time.Time{}, err
	}
	for r.due(next, at) {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		if next, err = schedule.NextRun(action.Schedule, next); err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}
