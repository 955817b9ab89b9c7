// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type ActionID string
type ShareID string
type UserID string
type SyncLogID string

func NewActionID() ActionID {
	return ActionID(uuid.New().String())
}

func NewShareID() ShareID {
	return ShareID(uuid.New().String())
}

func NewSyncLogID() SyncLogID {
	return SyncLogID(uuid.New().String())
}

// NewInviteToken returns an unguessable token for share invitations.
func NewInviteToken() string {
	return uuid.New().String()
}
