// Package shares creates shared-skill invitations and accepts them.
package shares

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/xbora/mio/internal/mail"
	"github.com/xbora/mio/internal/syncer"
	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/vault"
	"github.com/xbora/mio/internal/worker"
)

const DefaultPublicURL = "https://mio.fyi"

// Catalog lists the skills in a vault.
type Catalog interface {
	Skills(ctx context.Context, key string) ([]vault.Skill, error)
}

type Mailer interface {
	SendInvite(ctx context.Context, inv mail.Invite) (string, error)
}

type Syncer interface {
	Sync(ctx context.Context, id types.ShareID, d types.Direction) (*syncer.Result, error)
}

type Enqueuer interface {
	Enqueue(job *worker.Job) error
}

type Service struct {
	shares    types.ShareRegistry
	users     types.UserDirectory
	catalog   Catalog
	mailer    Mailer
	syncer    Syncer
	queue     Enqueuer
	publicURL string
	now       func() time.Time
}

type Option func(*Service)

// WithPublicURL sets the base of accept links.
func WithPublicURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.publicURL = strings.TrimRight(u, "/")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithInitialSync runs the first owner-to-recipient sync on q after a share
// is accepted.
func WithInitialSync(q Enqueuer, sy Syncer) Option {
	return func(s *Service) {
		s.queue = q
		s.syncer = sy
	}
}

func NewService(shares types.ShareRegistry, users types.UserDirectory, catalog Catalog, mailer Mailer, opts ...Option) *Service {
	s := &Service{
		shares:    shares,
		users:     users,
		catalog:   catalog,
		mailer:    mailer,
		publicURL: DefaultPublicURL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invitation is the result of Create.
type Invitation struct {
	Success   bool               `json:"success"`
	Share     *types.SharedSkill `json:"shared_skill"`
	AcceptURL string             `json:"accept_url"`
	EmailSent bool               `json:"email_sent"`
	EmailID   string             `json:"email_id,omitempty"`
	Message   string             `json:"message"`
}

// Create validates the owner, the skill and the recipient, stores a pending
// share and emails the recipient an accept link. A failed email does not
// fail the invitation.
func (s *Service) Create(ctx context.Context, ownerID types.UserID, skillName, email string) (*Invitation, error) {
	skillName = strings.TrimSpace(skillName)
	email = strings.TrimSpace(email)
	if skillName == "" || email == "" {
		return nil, types.Invalid("skill_name", "skill_name and shared_with_email are required")
	}
	if ownerID == "" {
		return nil, types.Invalid("user_id", "user_id is required")
	}

	owner, err := s.users.Get(ctx, ownerID)
	if types.IsNotFound(err) {
		return nil, &types.NotFoundError{Resource: "user", Message: "Owner user not found"}
	}
	if err != nil {
		return nil, err
	}
	if owner.VaultKey == "" {
		return nil, types.Invalid("user_id", "Owner does not have a vault account")
	}

	kind, err := s.skillType(ctx, owner.VaultKey, skillName)
	if err != nil {
		return nil, err
	}

	recipient, err := s.users.GetByEmail(ctx, email)
	if types.IsNotFound(err) {
		return nil, &types.NotFoundError{Resource: "user", Message: "Recipient user not found. They must have an account."}
	}
	if err != nil {
		return nil, err
	}
	if recipient.VaultKey == "" {
		return nil, types.Invalid("shared_with_email", "Recipient does not have a vault account yet")
	}

	existing, err := s.shares.FindAccepted(ctx, owner.ID, recipient.ID, skillName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &types.ConflictError{Message: "This skill is already shared with this user"}
	}

	now := s.now().UTC()
	share := &types.SharedSkill{
		ID:              types.NewShareID(),
		SkillName:       skillName,
		OwnerUserID:     owner.ID,
		RecipientUserID: recipient.ID,
		OwnerVault:      owner.VaultKey,
		RecipientVault:  recipient.VaultKey,
		TableName:       skillName,
		SkillType:       kind,
		Status:          types.SharePending,
		InviteToken:     types.NewInviteToken(),
		InviteSentAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.shares.Create(ctx, share); err != nil {
		return nil, fmt.Errorf("create share: %w", err)
	}
	slog.Info("share invitation created", "shared_skill_id", share.ID, "skill", skillName, "skill_type", kind)

	inv := &Invitation{
		Success:   true,
		Share:     share,
		AcceptURL: s.AcceptURL(share.InviteToken),
	}
	inv.EmailID, err = s.mailer.SendInvite(ctx, mail.Invite{
		RecipientEmail:  email,
		RecipientName:   recipient.DisplayName(""),
		RecipientAIName: recipient.AIName,
		OwnerName:       owner.DisplayName("Someone"),
		SkillName:       skillName,
		AcceptURL:       inv.AcceptURL,
	})
	if err != nil {
		slog.Warn("invite email failed, invitation kept", "shared_skill_id", share.ID, "error", err)
		inv.Message = "Invitation created but email failed to send"
		return inv, nil
	}
	inv.EmailSent = true
	inv.Message = "Invitation created and email sent successfully"
	return inv, nil
}

func (s *Service) AcceptURL(token string) string {
	return s.publicURL + "/accept-share?token=" + url.QueryEscape(token)
}

// skillType finds skillName in the owner's vault catalog. Vector skills map
// to vector, everything else to tabular.
func (s *Service) skillType(ctx context.Context, key, skillName string) (types.SkillType, error) {
	skills, err := s.catalog.Skills(ctx, key)
	if err != nil {
		return "", fmt.Errorf("verify skill: %w", err)
	}
	available := make([]string, 0, len(skills))
	for _, sk := range skills {
		if sk.TableName == skillName {
			return sk.SkillType(), nil
		}
		available = append(available, sk.TableName)
	}
	return "", &vault.MissingSkillError{
		Message:   fmt.Sprintf(`Skill "%s" does not exist in your vault`, skillName),
		Available: available,
	}
}

type Outcome string

const (
	OutcomeInvalid  Outcome = "invalid"
	OutcomeNotFound Outcome = "not_found"
	OutcomeAlready  Outcome = "already_accepted"
	OutcomeFailed   Outcome = "error"
	OutcomeAccepted Outcome = "accepted"
)

// Acceptance is what the accept page renders.
type Acceptance struct {
	Outcome   Outcome
	SkillName string
	AIName    string
	Share     *types.SharedSkill
}

// Accept marks the share behind token accepted and queues its first sync.
// Every failure is folded into the returned outcome; repeated calls with the
// same token report OutcomeAlready.
func (s *Service) Accept(ctx context.Context, token string) Acceptance {
	token = strings.TrimSpace(token)
	if token == "" {
		return Acceptance{Outcome: OutcomeInvalid}
	}

	share, err := s.shares.GetByToken(ctx, token)
	if types.IsNotFound(err) {
		return Acceptance{Outcome: OutcomeNotFound}
	}
	if err != nil {
		slog.Error("load share by token", "error", err)
		return Acceptance{Outcome: OutcomeFailed}
	}

	out := Acceptance{SkillName: share.SkillName, Share: share}
	if share.Status == types.ShareAccepted {
		out.Outcome = OutcomeAlready
		out.AIName = s.aiName(ctx, share.RecipientUserID)
		return out
	}

	if err := s.shares.Accept(ctx, share.ID, s.now()); err != nil {
		slog.Error("accept share", "shared_skill_id", share.ID, "error", err)
		out.Outcome = OutcomeFailed
		return out
	}
	slog.Info("share accepted", "shared_skill_id", share.ID, "skill", share.SkillName)

	out.Outcome = OutcomeAccepted
	out.AIName = s.aiName(ctx, share.RecipientUserID)
	s.queueInitialSync(share)
	return out
}

func (s *Service) queueInitialSync(share *types.SharedSkill) {
	if s.queue == nil || s.syncer == nil {
		return
	}
	id := share.ID
	err := s.queue.Enqueue(&worker.Job{
		Key:  string(id),
		Name: "initial_sync",
		Run: func(ctx context.Context) error {
			_, err := s.syncer.Sync(ctx, id, types.OwnerToRecipient)
			return err
		},
	})
	if err != nil {
		slog.Warn("initial sync not queued", "shared_skill_id", id, "error", err)
	}
}

func (s *Service) aiName(ctx context.Context, id types.UserID) string {
	user, err := s.users.Get(ctx, id)
	if err != nil || user.AIName == "" {
		return "your AI"
	}
	return user.AIName
}
