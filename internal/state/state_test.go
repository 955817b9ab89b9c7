package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/xbora/mio/internal/types"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func sampleAction(user types.UserID, next time.Time) *types.ProactiveAction {
	now := time.Now().UTC()
	return &types.ProactiveAction{
		ID:                types.NewActionID(),
		UserID:            user,
		SkillNames:        []string{"workouts", "meals"},
		ActionType:        types.ActionSummary,
		Schedule:          types.Schedule{Times: []string{"09:00"}, Days: []string{"monday"}, Timezone: "UTC"},
		DeliveryChannel:   types.ChannelEmail,
		InstructionPrompt: "Summarize my week",
		IsActive:          true,
		NextRunAt:         next,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func sampleShare(status types.ShareStatus) *types.SharedSkill {
	now := time.Now().UTC()
	return &types.SharedSkill{
		ID:              types.NewShareID(),
		SkillName:       "groceries",
		OwnerUserID:     "user_owner",
		RecipientUserID: "user_recipient",
		OwnerVault:      "vault-owner",
		RecipientVault:  "vault-recipient",
		TableName:       "groceries",
		SkillType:       types.SkillTabular,
		Status:          status,
		InviteToken:     types.NewInviteToken(),
		InviteSentAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))

	var count int
	require.NoError(t, db.NewSelect().Model((*migrationRow)(nil)).ColumnExpr("count(*)").Scan(context.Background(), &count))
	require.Equal(t, 1, count)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- comment\nCREATE TABLE a (\n  id TEXT\n);\n\nCREATE INDEX i ON a (id);\n")
	require.Equal(t, []string{"CREATE TABLE a ( id TEXT )", "CREATE INDEX i ON a (id)"}, stmts)
}

func TestActionStore_CreateGetScopedToOwner(t *testing.T) {
	ctx := context.Background()
	store, err := NewActionStore(newTestDB(t))
	require.NoError(t, err)

	next := time.Date(2026, 10, 26, 9, 0, 0, 0, time.UTC)
	action := sampleAction("user_a", next)
	require.NoError(t, store.Create(ctx, action))

	got, err := store.Get(ctx, action.ID, "user_a")
	require.NoError(t, err)
	require.Equal(t, action.SkillNames, got.SkillNames)
	require.Equal(t, action.Schedule, got.Schedule)
	require.True(t, got.NextRunAt.Equal(next))
	require.Nil(t, got.LastRunAt)
	require.True(t, got.IsActive)

	_, err = store.Get(ctx, action.ID, "user_b")
	require.True(t, types.IsNotFound(err), "expected not found, got %v", err)
}

func TestActionStore_ListActiveOrdersByNextRun(t *testing.T) {
	ctx := context.Background()
	store, err := NewActionStore(newTestDB(t))
	require.NoError(t, err)

	base := time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC)
	late := sampleAction("user_a", base.Add(2*time.Hour))
	early := sampleAction("user_b", base.Add(time.Hour))
	inactive := sampleAction("user_a", base)
	inactive.IsActive = false
	for _, a := range []*types.ProactiveAction{late, early, inactive} {
		require.NoError(t, store.Create(ctx, a))
	}

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, early.ID, active[0].ID)
	require.Equal(t, late.ID, active[1].ID)
}

func TestActionStore_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	store, err := NewActionStore(newTestDB(t))
	require.NoError(t, err)

	first := sampleAction("user_a", time.Now())
	first.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := sampleAction("user_a", time.Now())
	second.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	other := sampleAction("user_b", time.Now())
	for _, a := range []*types.ProactiveAction{first, second, other} {
		require.NoError(t, store.Create(ctx, a))
	}

	list, err := store.ListByUser(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)
}

func TestActionStore_RecordSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	store, err := NewActionStore(newTestDB(t))
	require.NoError(t, err)

	next := time.Date(2026, 10, 26, 9, 0, 0, 0, time.UTC)
	action := sampleAction("user_a", next)
	require.NoError(t, store.Create(ctx, action))

	require.NoError(t, store.RecordFailure(ctx, action.ID, "no email on file"))
	got, err := store.Get(ctx, action.ID, "user_a")
	require.NoError(t, err)
	require.Equal(t, 1, got.FailureCount)
	require.Equal(t, "no email on file", got.LastError)
	require.True(t, got.NextRunAt.Equal(next))

	ran := next.Add(time.Minute)
	following := next.Add(7 * 24 * time.Hour)
	require.NoError(t, store.RecordSuccess(ctx, action.ID, following, ran))
	got, err = store.Get(ctx, action.ID, "user_a")
	require.NoError(t, err)
	require.Equal(t, 1, got.SuccessCount)
	require.Equal(t, 1, got.FailureCount)
	require.Empty(t, got.LastError)
	require.True(t, got.NextRunAt.Equal(following))
	require.NotNil(t, got.LastRunAt)
	require.True(t, got.LastRunAt.Equal(ran))

	err = store.RecordSuccess(ctx, "missing", following, ran)
	require.True(t, types.IsNotFound(err))
}

func TestActionStore_Update(t *testing.T) {
	ctx := context.Background()
	store, err := NewActionStore(newTestDB(t))
	require.NoError(t, err)

	action := sampleAction("user_a", time.Now())
	require.NoError(t, store.Create(ctx, action))

	action.IsActive = false
	action.InstructionPrompt = "Only weekdays"
	action.SkillNames = []string{"sleep"}
	require.NoError(t, store.Update(ctx, action))

	got, err := store.Get(ctx, action.ID, "user_a")
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.Equal(t, "Only weekdays", got.InstructionPrompt)
	require.Equal(t, []string{"sleep"}, got.SkillNames)

	stranger := *action
	stranger.UserID = "user_b"
	require.True(t, types.IsNotFound(store.Update(ctx, &stranger)))
}

func TestShareRegistry_LifeCycle(t *testing.T) {
	ctx := context.Background()
	reg, err := NewShareRegistry(newTestDB(t))
	require.NoError(t, err)

	share := sampleShare(types.SharePending)
	require.NoError(t, reg.Create(ctx, share))

	byToken, err := reg.GetByToken(ctx, share.InviteToken)
	require.NoError(t, err)
	require.Equal(t, share.ID, byToken.ID)

	found, err := reg.FindAccepted(ctx, share.OwnerUserID, share.RecipientUserID, share.SkillName)
	require.NoError(t, err)
	require.Nil(t, found)

	at := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	require.NoError(t, reg.Accept(ctx, share.ID, at))

	got, err := reg.Get(ctx, share.ID)
	require.NoError(t, err)
	require.Equal(t, types.ShareAccepted, got.Status)
	require.NotNil(t, got.InviteAcceptedAt)
	require.True(t, got.InviteAcceptedAt.Equal(at))

	err = reg.Accept(ctx, share.ID, at)
	require.True(t, types.IsState(err), "expected state error, got %v", err)

	found, err = reg.FindAccepted(ctx, share.OwnerUserID, share.RecipientUserID, share.SkillName)
	require.NoError(t, err)
	require.NotNil(t, found)

	byTable, err := reg.ListAcceptedByTable(ctx, "groceries")
	require.NoError(t, err)
	require.Len(t, byTable, 1)
}

func TestShareRegistry_NotFoundAndDuplicateToken(t *testing.T) {
	ctx := context.Background()
	reg, err := NewShareRegistry(newTestDB(t))
	require.NoError(t, err)

	_, err = reg.GetByToken(ctx, "nope")
	require.True(t, types.IsNotFound(err))
	require.True(t, types.IsNotFound(reg.Accept(ctx, "missing", time.Now())))

	first := sampleShare(types.SharePending)
	require.NoError(t, reg.Create(ctx, first))
	dup := sampleShare(types.SharePending)
	dup.InviteToken = first.InviteToken
	require.True(t, types.IsConflict(reg.Create(ctx, dup)))
}

func TestShareRegistry_ListAcceptedByTableSkipsPending(t *testing.T) {
	ctx := context.Background()
	reg, err := NewShareRegistry(newTestDB(t))
	require.NoError(t, err)

	require.NoError(t, reg.Create(ctx, sampleShare(types.SharePending)))
	accepted := sampleShare(types.ShareAccepted)
	require.NoError(t, reg.Create(ctx, accepted))

	list, err := reg.ListAcceptedByTable(ctx, "groceries")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, accepted.ID, list[0].ID)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSyncLog_AppendAndList(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	reg, err := NewShareRegistry(db)
	require.NoError(t, err)
	log, err := NewSyncLog(db)
	require.NoError(t, err)

	share := sampleShare(types.ShareAccepted)
	require.NoError(t, reg.Create(ctx, share))

	for i, ok := range []bool{true, false} {
		entry := &types.SyncLogEntry{
			SharedSkillID:   share.ID,
			Action:          "sync_tabular",
			PerformedBy:     share.OwnerUserID,
			SyncedTo:        share.RecipientUserID,
			OperationDetail: json.RawMessage(`{"records_read":3}`),
			Success:         ok,
			CreatedAt:       time.Date(2026, 10, 20, 10, i, 0, 0, time.UTC),
		}
		if !ok {
			entry.ErrorMessage = "1 operations failed"
		}
		require.NoError(t, log.Append(ctx, entry))
		require.NotEmpty(t, entry.ID)
	}

	entries, err := log.ListByShare(ctx, share.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.False(t, entries[0].Success)
	require.Equal(t, "1 operations failed", entries[0].ErrorMessage)
	require.JSONEq(t, `{"records_read":3}`, string(entries[1].OperationDetail))

	limited, err := log.ListByShare(ctx, share.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestUserDirectory_UpsertAndLookup(t *testing.T) {
	ctx := context.Background()
	dir, err := NewUserDirectory(newTestDB(t))
	require.NoError(t, err)

	user := &types.User{ID: "user_a", Email: "Ana@Example.com", FirstName: "Ana", VaultKey: "vk-a"}
	require.NoError(t, dir.Upsert(ctx, user))

	got, err := dir.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, types.UserID("user_a"), got.ID)
	require.Equal(t, "Ana", got.DisplayName("there"))

	user.Name = "Ana Lima"
	user.WhatsAppNumber = "+15551234567"
	require.NoError(t, dir.Upsert(ctx, user))

	got, err = dir.Get(ctx, "user_a")
	require.NoError(t, err)
	require.Equal(t, "Ana Lima", got.Name)
	require.Equal(t, "+15551234567", got.WhatsAppNumber)

	_, err = dir.Get(ctx, "user_missing")
	require.True(t, types.IsNotFound(err))

	all, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
