// Package actions creates, updates and lists proactive actions.
//
// Request bodies arrive as decoded JSON objects so each field can be checked
// for presence and type independently, the way partial updates require.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xbora/mio/internal/schedule"
	"github.com/xbora/mio/internal/types"
)

// UpdatableFields lists the fields a partial update may carry, in the order
// they are validated. schedule is an alias of schedule_config.
var UpdatableFields = []string{
	"is_active", "instruction_prompt", "next_run_at", "delivery_channel",
	"skill_names", "action_type", "schedule_config", "schedule",
}

var requiredFields = []string{
	"skill_names", "action_type", "schedule_config", "delivery_channel", "instruction_prompt",
}

// Service applies validation and recurrence rules on top of an ActionStore.
type Service struct {
	store  types.ActionStore
	budget *PromptBudget
	now    func() time.Time
}

type Option func(*Service)

// WithPromptBudget enables the instruction prompt token limit.
func WithPromptBudget(b *PromptBudget) Option {
	return func(s *Service) { s.budget = b }
}

// WithClock overrides the wall clock used for created_at and next_run_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store types.ActionStore, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates body and stores a new active action whose next_run_at is
// computed from its schedule. user_timezone, when set, replaces the
// schedule's timezone before validation.
func (s *Service) Create(ctx context.Context, body map[string]any) (*types.ProactiveAction, error) {
	userID := firstString(body, "user_id", "workos_user_id")
	if userID == "" {
		return nil, types.Invalid("user_id", "user_id is required")
	}
	if body["schedule_config"] == nil && body["schedule"] != nil {
		aliased := make(map[string]any, len(body))
		for k, v := range body {
			aliased[k] = v
		}
		aliased["schedule_config"] = body["schedule"]
		body = aliased
	}
	if err := missingFields(body, requiredFields...); err != nil {
		return nil, err
	}

	skills, err := parseSkillNames(body["skill_names"])
	if err != nil {
		return nil, err
	}
	actionType, err := parseActionType(body["action_type"])
	if err != nil {
		return nil, err
	}
	channel, err := parseChannel(body["delivery_channel"])
	if err != nil {
		return nil, err
	}
	prompt, err := parsePrompt(body["instruction_prompt"])
	if err != nil {
		return nil, err
	}
	if err := s.budget.Check(prompt); err != nil {
		return nil, err
	}

	raw, err := scheduleMap(body["schedule_config"])
	if err != nil {
		return nil, err
	}
	if tz := firstString(body, "user_timezone"); tz != "" {
		raw["timezone"] = tz
	}
	sched, err := schedule.Validate(raw)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next, err := schedule.NextRun(sched, now)
	if err != nil {
		return nil, fmt.Errorf("compute next run: %w", err)
	}

	action := &types.ProactiveAction{
		ID:                types.NewActionID(),
		UserID:            types.UserID(userID),
		SkillNames:        skills,
		ActionType:        actionType,
		Schedule:          sched,
		DeliveryChannel:   channel,
		InstructionPrompt: prompt,
		IsActive:          true,
		NextRunAt:         next,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, action); err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	slog.Info("proactive action created", "action_id", action.ID, "user_id", userID, "next_run_at", next)
	return action, nil
}

// Update applies a partial update to an action owned by userID. Ownership is
// checked before any field. A new schedule without an explicit next_run_at
// recomputes next_run_at.
func (s *Service) Update(ctx context.Context, id types.ActionID, userID types.UserID, patch map[string]any) (*types.ProactiveAction, error) {
	action, err := s.store.Get(ctx, id, userID)
	if err != nil {
		if types.IsNotFound(err) {
			return nil, &types.NotFoundError{
				Resource: "proactive action",
				Message:  "Proactive action not found or you do not have permission to edit it",
			}
		}
		return nil, fmt.Errorf("load action: %w", err)
	}

	changed := false
	if v, ok := patch["is_active"]; ok {
		if action.IsActive, err = parseActive(v); err != nil {
			return nil, err
		}
		changed = true
	}
	if v, ok := patch["instruction_prompt"]; ok {
		prompt, err := parsePrompt(v)
		if err != nil {
			return nil, err
		}
		if err := s.budget.Check(prompt); err != nil {
			return nil, err
		}
		action.InstructionPrompt = prompt
		changed = true
	}
	_, explicitNext := patch["next_run_at"]
	if explicitNext {
		if action.NextRunAt, err = parseInstant(patch["next_run_at"]); err != nil {
			return nil, err
		}
		changed = true
	}
	if v, ok := patch["delivery_channel"]; ok {
		if action.DeliveryChannel, err = parseChannel(v); err != nil {
			return nil, err
		}
		changed = true
	}
	if v, ok := patch["skill_names"]; ok {
		if action.SkillNames, err = parseSkillNames(v); err != nil {
			return nil, err
		}
		changed = true
	}
	if v, ok := patch["action_type"]; ok {
		if action.ActionType, err = parseActionType(v); err != nil {
			return nil, err
		}
		changed = true
	}
	now := s.now().UTC()
	v, ok := patch["schedule_config"]
	if !ok {
		v, ok = patch["schedule"]
	}
	if ok {
		raw, err := scheduleMap(v)
		if err != nil {
			return nil, err
		}
		if action.Schedule, err = schedule.Validate(raw); err != nil {
			return nil, err
		}
		if !explicitNext {
			if action.NextRunAt, err = schedule.NextRun(action.Schedule, now); err != nil {
				return nil, fmt.Errorf("compute next run: %w", err)
			}
		}
		changed = true
	}

	if !changed {
		return nil, types.Invalid("", "No valid fields provided for update. Allowed fields: %s", strings.Join(UpdatableFields, ", "))
	}

	action.UpdatedAt = now
	if err := s.store.Update(ctx, action); err != nil {
		return nil, fmt.Errorf("update action: %w", err)
	}
	slog.Info("proactive action updated", "action_id", action.ID, "user_id", userID)
	return action, nil
}

// List returns the caller's actions, newest first.
func (s *Service) List(ctx context.Context, userID types.UserID) ([]*types.ProactiveAction, error) {
	if userID == "" {
		return nil, types.Invalid("user_id", "user_id is required")
	}
	actions, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}

