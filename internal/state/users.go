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

type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID             string    `bun:"id,pk"`
	Email          string    `bun:"email"`
	Name           string    `bun:"name"`
	FirstName      string    `bun:"first_name"`
	WhatsAppNumber string    `bun:"whatsapp_number"`
	VaultKey       string    `bun:"vault_key"`
	AIName         string    `bun:"ai_name"`
	CreatedAt      time.Time `bun:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at"`
}

func (r *userRow) toUser() *types.User {
	return &types.User{
		ID:             types.UserID(r.ID),
		Email:          r.Email,
		Name:           r.Name,
		FirstName:      r.FirstName,
		WhatsAppNumber: r.WhatsAppNumber,
		VaultKey:       r.VaultKey,
		AIName:         r.AIName,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

// UserDirectory is the local user table used for contact details and vault
// keys.
type UserDirectory struct {
	db *bun.DB
}

func NewUserDirectory(db *bun.DB) (*UserDirectory, error) {
	if db == nil {
		return nil, errors.New("user directory: db required")
	}
	return &UserDirectory{db: db}, nil
}

func (d *UserDirectory) Get(ctx context.Context, id types.UserID) (*types.User, error) {
	row := new(userRow)
	err := d.db.NewSelect().Model(row).Where("id = ?", string(id)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return row.toUser(), nil
}

// GetByEmail matches case-insensitively.
func (d *UserDirectory) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	row := new(userRow)
	err := d.db.NewSelect().Model(row).
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return nil, fmt.Errorf("select user by email: %w", err)
	}
	return row.toUser(), nil
}

// Upsert inserts the user or replaces every profile field of an existing
// one. CreatedAt of an existing user is kept.
func (d *UserDirectory) Upsert(ctx context.Context, user *types.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	row := &userRow{
		ID:             string(user.ID),
		Email:          strings.TrimSpace(user.Email),
		Name:           user.Name,
		FirstName:      user.FirstName,
		WhatsAppNumber: user.WhatsAppNumber,
		VaultKey:       user.VaultKey,
		AIName:         user.AIName,
		CreatedAt:      user.CreatedAt.UTC(),
		UpdatedAt:      now,
	}
	_, err := d.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("first_name = EXCLUDED.first_name").
		Set("whatsapp_number = EXCLUDED.whatsapp_number").
		Set("vault_key = EXCLUDED.vault_key").
		Set("ai_name = EXCLUDED.ai_name").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (d *UserDirectory) List(ctx context.Context) ([]*types.User, error) {
	var rows []userRow
	if err := d.db.NewSelect().Model(&rows).OrderExpr("email ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*types.User, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toUser())
	}
	return out, nil
}
