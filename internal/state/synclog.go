package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xbora/mio/internal/types"
)

type syncLogRow struct {
	bun.BaseModel `bun:"table:skill_sync_log"`

	ID              string    `bun:"id,pk"`
	SharedSkillID   string    `bun:"shared_skill_id"`
	Action          string    `bun:"action"`
	PerformedBy     string    `bun:"performed_by"`
	SyncedTo        string    `bun:"synced_to"`
	OperationDetail string    `bun:"operation_detail"`
	Success         bool      `bun:"success"`
	ErrorMessage    string    `bun:"error_message"`
	CreatedAt       time.Time `bun:"created_at"`
}

// SyncLog is the append-only audit trail of sync attempts.
type SyncLog struct {
	db *bun.DB
}

func NewSyncLog(db *bun.DB) (*SyncLog, error) {
	if db == nil {
		return nil, errors.New("sync log: db required")
	}
	return &SyncLog{db: db}, nil
}

// Append assigns an ID and timestamp when they are unset.
func (l *SyncLog) Append(ctx context.Context, entry *types.SyncLogEntry) error {
	if entry.ID == "" {
		entry.ID = types.NewSyncLogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	detail := string(entry.OperationDetail)
	if detail == "" {
		detail = "{}"
	}
	row := &syncLogRow{
		ID:              string(entry.ID),
		SharedSkillID:   string(entry.SharedSkillID),
		Action:          entry.Action,
		PerformedBy:     string(entry.PerformedBy),
		SyncedTo:        string(entry.SyncedTo),
		OperationDetail: detail,
		Success:         entry.Success,
		ErrorMessage:    entry.ErrorMessage,
		CreatedAt:       entry.CreatedAt.UTC(),
	}
	if _, err := l.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	return nil
}

// ListByShare returns the newest entries first. A limit <= 0 returns all.
func (l *SyncLog) ListByShare(ctx context.Context, id types.ShareID, limit int) ([]*types.SyncLogEntry, error) {
	var rows []syncLogRow
	q := l.db.NewSelect().Model(&rows).
		Where("shared_skill_id = ?", string(id)).
		OrderExpr("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list sync log: %w", err)
	}

	out := make([]*types.SyncLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, &types.SyncLogEntry{
			ID:              types.SyncLogID(r.ID),
			SharedSkillID:   types.ShareID(r.SharedSkillID),
			Action:          r.Action,
			PerformedBy:     types.UserID(r.PerformedBy),
			SyncedTo:        types.UserID(r.SyncedTo),
			OperationDetail: json.RawMessage(r.OperationDetail),
			Success:         r.Success,
			ErrorMessage:    r.ErrorMessage,
			CreatedAt:       r.CreatedAt.UTC(),
		})
	}
	return out, nil
}
