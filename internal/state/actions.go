package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xbora/mio/internal/types"
)

type actionRow struct {
	bun.BaseModel `bun:"table:proactive_actions"`

	ID                string     `bun:"id,pk"`
	UserID            string     `bun:"user_id"`
	SkillNames        string     `bun:"skill_names"`
	ActionType        string     `bun:"action_type"`
	Schedule          string     `bun:"schedule_config"`
	DeliveryChannel   string     `bun:"delivery_channel"`
	InstructionPrompt string     `bun:"instruction_prompt"`
	IsActive          bool       `bun:"is_active"`
	NextRunAt         time.Time  `bun:"next_run_at"`
	LastRunAt         *time.Time `bun:"last_run_at"`
	SuccessCount      int        `bun:"success_count"`
	FailureCount      int        `bun:"failure_count"`
	LastError         string     `bun:"last_error"`
	CreatedAt         time.Time  `bun:"created_at"`
	UpdatedAt         time.Time  `bun:"updated_at"`
}

func actionToRow(a *types.ProactiveAction) (*actionRow, error) {
	skills := a.SkillNames
	if skills == nil {
		skills = []string{}
	}
	skillsJSON, err := json.Marshal(skills)
	if err != nil {
		return nil, fmt.Errorf("marshal skill names: %w", err)
	}
	scheduleJSON, err := json.Marshal(a.Schedule)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule: %w", err)
	}
	return &actionRow{
		ID:                string(a.ID),
		UserID:            string(a.UserID),
		SkillNames:        string(skillsJSON),
		ActionType:        string(a.ActionType),
		Schedule:          string(scheduleJSON),
		DeliveryChannel:   string(a.DeliveryChannel),
		InstructionPrompt: a.InstructionPrompt,
		IsActive:          a.IsActive,
		NextRunAt:         a.NextRunAt.UTC(),
		LastRunAt:         utcPtr(a.LastRunAt),
		SuccessCount:      a.SuccessCount,
		FailureCount:      a.FailureCount,
		LastError:         a.LastError,
		CreatedAt:         a.CreatedAt.UTC(),
		UpdatedAt:         a.UpdatedAt.UTC(),
	}, nil
}

func (r *actionRow) toAction() (*types.ProactiveAction, error) {
	a := &types.ProactiveAction{
		ID:                types.ActionID(r.ID),
		UserID:            types.UserID(r.UserID),
		ActionType:        types.ActionType(r.ActionType),
		DeliveryChannel:   types.Channel(r.DeliveryChannel),
		InstructionPrompt: r.InstructionPrompt,
		IsActive:          r.IsActive,
		NextRunAt:         r.NextRunAt.UTC(),
		LastRunAt:         utcPtr(r.LastRunAt),
		SuccessCount:      r.SuccessCount,
		FailureCount:      r.FailureCount,
		LastError:         r.LastError,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.SkillNames), &a.SkillNames); err != nil {
		return nil, fmt.Errorf("unmarshal skill names of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Schedule), &a.Schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule of %s: %w", r.ID, err)
	}
	return a, nil
}

// ActionStore persists proactive actions in SQLite.
type ActionStore struct {
	db *bun.DB
}

func NewActionStore(db *bun.DB) (*ActionStore, error) {
	if db == nil {
		return nil, errors.New("action store: db required")
	}
	return &ActionStore{db: db}, nil
}

func (s *ActionStore) Create(ctx context.Context, action *types.ProactiveAction) error {
	row, err := actionToRow(action)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// Get scopes the lookup to userID, so another user's action is reported as
// missing.
func (s *ActionStore) Get(ctx context.Context, id types.ActionID, userID types.UserID) (*types.ProactiveAction, error) {
	row := new(actionRow)
	err := s.db.NewSelect().Model(row).
		Where("id = ?", string(id)).
		Where("user_id = ?", string(userID)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Resource: "proactive action"}
	}
	if err != nil {
		return nil, fmt.Errorf("select action: %w", err)
	}
	return row.toAction()
}

// ListByUser returns the user's actions, newest first.
func (s *ActionStore) ListByUser(ctx context.Context, userID types.UserID) ([]*types.ProactiveAction, error) {
	var rows []actionRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", string(userID)).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return toActions(rows)
}

// ListActive returns every active action ordered by next_run_at ascending.
func (s *ActionStore) ListActive(ctx context.Context) ([]*types.ProactiveAction, error) {
	var rows []actionRow
	err := s.db.NewSelect().Model(&rows).
		Where("is_active = ?", true).
		OrderExpr("next_run_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active actions: %w", err)
	}
	return toActions(rows)
}

// Update overwrites the mutable fields of an existing action.
func (s *ActionStore) Update(ctx context.Context, action *types.ProactiveAction) error {
	row, err := actionToRow(action)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().Model(row).
		Column("skill_names", "action_type", "schedule_config", "delivery_channel",
			"instruction_prompt", "is_active", "next_run_at", "updated_at").
		WherePK().
		Where("user_id = ?", row.UserID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	return requireAffected(res, "proactive action")
}

// RecordSuccess advances the action after a delivered run.
func (s *ActionStore) RecordSuccess(ctx context.Context, id types.ActionID, nextRunAt, lastRunAt time.Time) error {
	res, err := s.db.NewUpdate().Model((*actionRow)(nil)).
		Set("success_count = success_count + 1").
		Set("next_run_at = ?", nextRunAt.UTC()).
		Set("last_run_at = ?", lastRunAt.UTC()).
		Set("last_error = ''").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", string(id)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record action success: %w", err)
	}
	return requireAffected(res, "proactive action")
}

// RecordFailure counts a failed run and keeps next_run_at where it is.
func (s *ActionStore) RecordFailure(ctx context.Context, id types.ActionID, message string) error {
	res, err := s.db.NewUpdate().Model((*actionRow)(nil)).
		Set("failure_count = failure_count + 1").
		Set("last_error = ?", message).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", string(id)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record action failure: %w", err)
	}
	return requireAffected(res, "proactive action")
}

func toActions(rows []actionRow) ([]*types.ProactiveAction, error) {
	out := make([]*types.ProactiveAction, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toAction()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func requireAffected(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &types.NotFoundError{Resource: resource}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
