// internal/types/models.go
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ActionType string

const (
	ActionReminder ActionType = "reminder"
	ActionAnalysis ActionType = "analysis"
	ActionSummary  ActionType = "summary"
	ActionInsight  ActionType = "insight"
)

var ActionTypes = []ActionType{ActionReminder, ActionAnalysis, ActionSummary, ActionInsight}

func (a ActionType) Valid() bool {
	for _, v := range ActionTypes {
		if a == v {
			return true
		}
	}
	return false
}

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}

func (c Channel) Valid() bool {
	for _, v := range Channels {
		if c == v {
			return true
		}
	}
	return false
}

// JoinValues renders an enum list as "a, b, c" for error messages.
func JoinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// Schedule is either an interval schedule (IntervalHours > 0) or a daily
// schedule (Times and Days set). Timezone is always an IANA name.
type Schedule struct {
	IntervalHours float64  `json:"interval_hours,omitempty"`
	Times         []string `json:"times,omitempty"`
	Days          []string `json:"days,omitempty"`
	Timezone      string   `json:"timezone"`
}

func (s Schedule) IsInterval() bool {
	return s.IntervalHours > 0
}

type ProactiveAction struct {
	ID                ActionID   `json:"id"`
	UserID            UserID     `json:"user_id"`
	SkillNames        []string   `json:"skill_names"`
	ActionType        ActionType `json:"action_type"`
	Schedule          Schedule   `json:"schedule_config"`
	DeliveryChannel   Channel    `json:"delivery_channel"`
	InstructionPrompt string     `json:"instruction_prompt"`
	IsActive          bool       `json:"is_active"`
	NextRunAt         time.Time  `json:"next_run_at"`
	LastRunAt         *time.Time `json:"last_run_at"`
	SuccessCount      int        `json:"success_count"`
	FailureCount      int        `json:"failure_count"`
	LastError         string     `json:"last_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type SkillType string

const (
	SkillTabular SkillType = "tabular"
	SkillVector  SkillType = "vector"
)

type ShareStatus string

const (
	SharePending  ShareStatus = "pending"
	ShareAccepted ShareStatus = "accepted"
	ShareRejected ShareStatus = "rejected"
)

type Direction string

const (
	OwnerToRecipient Direction = "owner_to_recipient"
	RecipientToOwner Direction = "recipient_to_owner"
)

// ParseDirection defaults an empty value to OwnerToRecipient.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "":
		return OwnerToRecipient, nil
	case OwnerToRecipient, RecipientToOwner:
		return Direction(s), nil
	}
	return "", &ValidationError{
		Field:   "direction",
		Message: `direction must be either "owner_to_recipient" or "recipient_to_owner"`,
	}
}

type SharedSkill struct {
	ID               ShareID     `json:"id"`
	SkillName        string      `json:"skill_name"`
	OwnerUserID      UserID      `json:"owner_workos_user_id"`
	RecipientUserID  UserID      `json:"shared_with_workos_user_id"`
	OwnerVault       string      `json:"owner_arca_folder"`
	RecipientVault   string      `json:"shared_with_arca_folder"`
	TableName        string      `json:"arca_table_name"`
	SkillType        SkillType   `json:"skill_type"`
	Status           ShareStatus `json:"status"`
	InviteToken      string      `json:"invite_token"`
	InviteSentAt     time.Time   `json:"invite_sent_at"`
	InviteAcceptedAt *time.Time  `json:"invite_accepted_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Party is one side of a shared skill: the user and the vault key used to
// reach that user's data.
type Party struct {
	UserID UserID
	Vault  string
}

// Parties resolves the source and destination of a sync in direction d.
func (s *SharedSkill) Parties(d Direction) (source, dest Party) {
	owner := Party{UserID: s.OwnerUserID, Vault: s.OwnerVault}
	recipient := Party{UserID: s.RecipientUserID, Vault: s.RecipientVault}
	if d == RecipientToOwner {
		return recipient, owner
	}
	return owner, recipient
}

// Involves reports whether userID is the owner or the recipient.
func (s *SharedSkill) Involves(userID UserID) bool {
	return s.OwnerUserID == userID || s.RecipientUserID == userID
}

type SyncLogEntry struct {
	ID              SyncLogID       `json:"id"`
	SharedSkillID   ShareID         `json:"shared_skill_id"`
	Action          string          `json:"action"`
	PerformedBy     UserID          `json:"performed_by_workos_user_id"`
	SyncedTo        UserID          `json:"synced_to_workos_user_id"`
	OperationDetail json.RawMessage `json:"arca_operation"`
	Success         bool            `json:"success"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// User is the directory entry used for contact resolution and vault access.
type User struct {
	ID             UserID    `json:"workos_user_id"`
	Email          string    `json:"email,omitempty"`
	Name           string    `json:"name,omitempty"`
	FirstName      string    `json:"first_name,omitempty"`
	WhatsAppNumber string    `json:"whatsapp_number,omitempty"`
	VaultKey       string    `json:"arca_key,omitempty"`
	AIName         string    `json:"ai_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DisplayName prefers the full name, then the first name, then fallback.
func (u *User) DisplayName(fallback string) string {
	if u == nil {
		return fallback
	}
	if u.Name != "" {
		return u.Name
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return fallback
}

func (u *User) String() string {
	return fmt.Sprintf("%s <%s>", u.ID, u.Email)
}
