package syncer

import (
	"context"
	"fmt"

	"github.com/xbora/mio/internal/types"
)

// Decision is the outcome of routing a data change. Share is nil when no
// sync is needed, and Reason says why.
type Decision struct {
	Share     *types.SharedSkill
	Direction types.Direction
	Reason    string
}

func (d *Decision) NoOp() bool {
	return d.Share == nil
}

// Director maps a change to one user's skill onto the share it belongs to.
type Director struct {
	shares types.ShareRegistry
}

func NewDirector(shares types.ShareRegistry) *Director {
	return &Director{shares: shares}
}

// DetermineDirection finds the accepted share of skill that involves
// userID. The owner's changes flow to the recipient and the recipient's
// flow back to the owner.
func (d *Director) DetermineDirection(ctx context.Context, userID types.UserID, skill string) (*Decision, error) {
	shares, err := d.shares.ListAcceptedByTable(ctx, skill)
	if err != nil {
		return nil, fmt.Errorf("list shares of %s: %w", skill, err)
	}
	if len(shares) == 0 {
		return &Decision{Reason: "Skill is not shared, no sync needed"}, nil
	}
	for _, share := range shares {
		if !share.Involves(userID) {
			continue
		}
		dir := types.RecipientToOwner
		if share.OwnerUserID == userID {
			dir = types.OwnerToRecipient
		}
		return &Decision{Share: share, Direction: dir}, nil
	}
	return &Decision{Reason: "User is not part of this shared skill"}, nil
}

// TriggerResult answers a data-change notification.
type TriggerResult struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Direction  types.Direction `json:"direction,omitempty"`
	SyncResult *Result         `json:"sync_result,omitempty"`
}

// Trigger routes a change made by userID to skill and runs the sync it
// implies, if any.
func (s *Service) Trigger(ctx context.Context, userID types.UserID, skill string) (*TriggerResult, error) {
	if userID == "" || skill == "" {
		return nil, types.Invalid("user_id", "user_id and skill_name are required")
	}
	decision, err := s.director.DetermineDirection(ctx, userID, skill)
	if err != nil {
		return nil, err
	}
	if decision.NoOp() {
		return &TriggerResult{Success: true, Message: decision.Reason}, nil
	}
	res, err := s.Sync(ctx, decision.Share.ID, decision.Direction)
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", decision.Share.ID, err)
	}
	return &TriggerResult{
		Success:    true,
		Message:    "Sync triggered successfully",
		Direction:  decision.Direction,
		SyncResult: res,
	}, nil
}
