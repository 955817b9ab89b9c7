package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/xbora/mio/internal/types"
)

type shareRow struct {
	bun.BaseModel `bun:"table:shared_skills"`

	ID               string     `bun:"id,pk"`
	SkillName        string     `bun:"skill_name"`
	OwnerUserID      string     `bun:"owner_user_id"`
	RecipientUserID  string     `bun:"recipient_user_id"`
	OwnerVault       string     `bun:"owner_vault"`
	RecipientVault   string     `bun:"recipient_vault"`
	TableName        string     `bun:"table_name"`
	SkillType        string     `bun:"skill_type"`
	Status           string     `bun:"status"`
	InviteToken      string     `bun:"invite_token"`
	InviteSentAt     time.Time  `bun:"invite_sent_at"`
	InviteAcceptedAt *time.Time `bun:"invite_accepted_at"`
	CreatedAt        time.Time  `bun:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at"`
}

func shareToRow(s *types.SharedSkill) *shareRow {
	return &shareRow{
		ID:               string(s.ID),
		SkillName:        s.SkillName,
		OwnerUserID:      string(s.OwnerUserID),
		RecipientUserID:  string(s.RecipientUserID),
		OwnerVault:       s.OwnerVault,
		RecipientVault:   s.RecipientVault,
		TableName:        s.TableName,
		SkillType:        string(s.SkillType),
		Status:           string(s.Status),
		InviteToken:      s.InviteToken,
		InviteSentAt:     s.InviteSentAt.UTC(),
		InviteAcceptedAt: utcPtr(s.InviteAcceptedAt),
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
}

func (r *shareRow) toShare() *types.SharedSkill {
	return &types.SharedSkill{
		ID:               types.ShareID(r.ID),
		SkillName:        r.SkillName,
		OwnerUserID:      types.UserID(r.OwnerUserID),
		RecipientUserID:  types.UserID(r.RecipientUserID),
		OwnerVault:       r.OwnerVault,
		RecipientVault:   r.RecipientVault,
		TableName:        r.TableName,
		SkillType:        types.SkillType(r.SkillType),
		Status:           types.ShareStatus(r.Status),
		InviteToken:      r.InviteToken,
		InviteSentAt:     r.InviteSentAt.UTC(),
		InviteAcceptedAt: utcPtr(r.InviteAcceptedAt),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

// ShareRegistry persists shared-skill invitations in SQLite.
type ShareRegistry struct {
	db *bun.DB
}

func NewShareRegistry(db *bun.DB) (*ShareRegistry, error) {
	if db == nil {
		return nil, errors.New("share registry: db required")
	}
	return &ShareRegistry{db: db}, nil
}

func (s *ShareRegistry) Create(ctx context.Context, share *types.SharedSkill) error {
	if share.InviteToken == "" {
		return errors.New("insert share: invite token required")
	}
	if _, err := s.db.NewInsert().Model(shareToRow(share)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return &types.ConflictError{Message: "invite token already in use"}
		}
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func (s *ShareRegistry) Get(ctx context.Context, id types.ShareID) (*types.SharedSkill, error) {
	return s.selectOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ?", string(id))
	})
}

func (s *ShareRegistry) GetByToken(ctx context.Context, token string) (*types.SharedSkill, error) {
	return s.selectOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("invite_token = ?", token)
	})
}

func (s *ShareRegistry) FindAccepted(ctx context.Context, owner, recipient types.UserID, skillName string) (*types.SharedSkill, error) {
	share, err := s.selectOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("owner_user_id = ?", string(owner)).
			Where("recipient_user_id = ?", string(recipient)).
			Where("skill_name = ?", skillName).
			Where("status = ?", string(types.ShareAccepted)).
			Limit(1)
	})
	if types.IsNotFound(err) {
		return nil, nil
	}
	return share, err
}

// ListAcceptedByTable returns accepted shares of the given vault table,
// oldest first.
func (s *ShareRegistry) ListAcceptedByTable(ctx context.Context, table string) ([]*types.SharedSkill, error) {
	var rows []shareRow
	err := s.db.NewSelect().Model(&rows).
		Where("table_name = ?", table).
		Where("status = ?", string(types.ShareAccepted)).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shares by table: %w", err)
	}
	return toShares(rows), nil
}

func (s *ShareRegistry) List(ctx context.Context) ([]*types.SharedSkill, error) {
	var rows []shareRow
	if err := s.db.NewSelect().Model(&rows).OrderExpr("created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	return toShares(rows), nil
}

// Accept moves a pending share to accepted. Accepting a share that is not
// pending is a StateError.
func (s *ShareRegistry) Accept(ctx context.Context, id types.ShareID, at time.Time) error {
	at = at.UTC()
	res, err := s.db.NewUpdate().Model((*shareRow)(nil)).
		Set("status = ?", string(types.ShareAccepted)).
		Set("invite_accepted_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", string(id)).
		Where("status = ?", string(types.SharePending)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accept share: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	share, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return &types.StateError{Message: fmt.Sprintf("share is %s, not pending", share.Status)}
}

func (s *ShareRegistry) selectOne(ctx context.Context, criteria func(*bun.SelectQuery) *bun.SelectQuery) (*types.SharedSkill, error) {
	row := new(shareRow)
	err := criteria(s.db.NewSelect().Model(row)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Resource: "shared skill", Message: "Shared skill not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("select share: %w", err)
	}
	return row.toShare(), nil
}

func toShares(rows []shareRow) []*types.SharedSkill {
	out := make([]*types.SharedSkill, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toShare())
	}
	return out
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
