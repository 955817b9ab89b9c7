// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

type ActionStore interface {
	Create(ctx context.Context, action *ProactiveAction) error
	// Get returns a NotFoundError unless the action exists and belongs to userID.
	Get(ctx context.Context, id ActionID, userID UserID) (*ProactiveAction, error)
	ListByUser(ctx context.Context, userID UserID) ([]*ProactiveAction, error)
	ListActive(ctx context.Context) ([]*ProactiveAction, error)
	Update(ctx context.Context, action *ProactiveAction) error
	RecordSuccess(ctx context.Context, id ActionID, nextRunAt, lastRunAt time.Time) error
	RecordFailure(ctx context.Context, id ActionID, message string) error
}

type ShareRegistry interface {
	Create(ctx context.Context, share *SharedSkill) error
	Get(ctx context.Context, id ShareID) (*SharedSkill, error)
	GetByToken(ctx context.Context, token string) (*SharedSkill, error)
	// FindAccepted returns nil, nil when no accepted share matches.
	FindAccepted(ctx context.Context, owner, recipient UserID, skillName string) (*SharedSkill, error)
	ListAcceptedByTable(ctx context.Context, table string) ([]*SharedSkill, error)
	List(ctx context.Context) ([]*SharedSkill, error)
	Accept(ctx context.Context, id ShareID, at time.Time) error
}

type SyncLog interface {
	Append(ctx context.Context, entry *SyncLogEntry) error
	ListByShare(ctx context.Context, id ShareID, limit int) ([]*SyncLogEntry, error)
}

type UserDirectory interface {
	Get(ctx context.Context, id UserID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Upsert(ctx context.Context, user *User) error
	List(ctx context.Context) ([]*User, error)
}
