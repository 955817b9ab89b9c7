package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/vault"
)

var day = time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)

func TestIsSeed(t *testing.T) {
	tests := map[string]bool{
		"seed":        true,
		"  Seed \n":   true,
		"SEED":        true,
		"seeds":       false,
		"seed phrase": false,
		"":            false,
	}
	for in, want := range tests {
		if got := IsSeed(in); got != want {
			t.Errorf("IsSeed(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestVectorOnlySeedEntries(t *testing.T) {
	e := newEnv(t)
	e.vaults.addEntry("vault-o", "journal", "seed", day, nil)
	e.vaults.addEntry("vault-o", "journal", " SEED ", day, nil)
	share := e.share(t, "journal", types.SkillVector, types.ShareAccepted)

	res, err := e.service.Sync(context.Background(), share.ID, types.OwnerToRecipient)
	require.NoError(t, err)
	require.Equal(t, "No real data to sync yet (only seed records)", res.Message)
	require.Len(t, e.logEntries(t, share.ID), 1)
}

func TestVectorEmptySource(t *testing.T) {
	e := newEnv(t)
	share := e.share(t, "journal", types.SkillVector, types.ShareAccepted)

	res, err := e.service.Sync(context.Background(), share.ID, types.OwnerToRecipient)
	require.NoError(t, err)
	require.Equal(t, "No data to sync yet", res.Message)
	require.Equal(t, 0, res.RecordsSynced)
}

func TestVectorFirstSyncCopiesAllRealEntries(t *testing.T) {
	e := newEnv(t)
	e.vaults.addEntry("vault-o", "journal", "seed", day, nil)
	e.vaults.addEntry("vault-o", "journal", "ran 5k", day.Add(time.Hour), map[string]any{"category": "fitness", "tags": "running"})
	e.vaults.addEntry("vault-o", "journal", "slept badly", day.Add(2*time.Hour), nil)
	// only a seed on the destination still means first sync
	e.vaults.addEntry("vault-r", "journal", "seed", day, nil)
	share := e.share(t, "journal", types.SkillVector, types.ShareAccepted)

	res, err := e.service.Sync(context.Background(), share.ID, types.OwnerToRecipient)
	require.NoError(t, err)
	require.Equal(t, FirstTime, res.SyncType)
	require.Equal(t, 2, res.RecordsSynced)
	require.Equal(t, "Successfully synced all 2 vector entries", res.Message)

	dest := e.vaults.vectors["vault-r"]["journal"]
	require.Len(t, dest, 3)
	// newest first
	require.Equal(t, "slept badly", dest[1].Text)
	require.Equal(t, "general", dest[1].Fields["category"])
	require.Equal(t, "", dest[1].Fields["context"])
	require.Equal(t, "ran 5k", dest[2].Text)
	require.Equal(t, "fitness", dest[2].Fields["category"])
	require.Equal(t, "running", dest[2].Fields["tags"])
}

func TestVectorDestinationUpToDate(t *testing.T) {
	e := newEnv(t)
	e.vaults.addEntry("vault-o", "journal", "ran 5k", day.Add(time.Hour), nil)
	e.vaults.addEntry("vault-r", "journal", "ran 5k", day.Add(time.Hour), nil)
	share := e.share(t, "journal", types.SkillVector, types.ShareAccepted)

	res, err := e.service.Sync(context.Background(), share.ID, types.OwnerToRecipient)
	require.NoError(t, err)
	require.Equal(t, "Destination already up to date", res.Message)
	require.Len(t, e.vaults.vectors["vault-r"]["journal"], 1)

	entries := e.logEntries(t, share.ID)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Success)
}

func TestVectorIncrementalCopiesNewestOnly(t *testing.T) {
	e := newEnv(t)
	e.vaults.addEntry("vault-o", "journal", "ran 5k", day.Add(time.Hour), nil)
	e.vaults.addEntry("vault-o", "journal", "swam 1k", day.Add(3*time.Hour), nil)
	e.vaults.addEntry("vault-r", "journal", "ran 5k", day.Add(time.Hour), nil)
	share := e.share(t, "journal", types.SkillVector, types.ShareAccepted)

	res, err := e.service.Sync(context.Background(), share.ID, types.OwnerToRecipient)
	require.NoError(t, err)
	require.Equal(t, Incremental, res.SyncType)
	require.Equal(t, 1, res.RecordsSynced)
	require.Equal(t, "Successfully synced most recent vector entry", res.Message)

	dest := e.vaults.vectors["vault-r"]["journal"]
	require.Len(t, dest, 2)
	require.Equal(t, "swam 1k", dest[1].Text)
}

func TestVectorDestinationSearchFailureSyncsAll(t *testing.T) {
	e := newEnv(t)
	e.vaults.addEntry("vault-o", "journal", "ran 5k", day, nil)
	e.vaults.addEntry("vault-o", "journal", "swam 1k", day.Add(time.Hour), nil)
	e.vaults.searchErr["vault-r"] = errors.New("connection reset")
	share := e.share(t, "journal", types.SkillVector, types.ShareAccepted)

	res, err := e.service.Sync(context.Background(), share.ID, types.OwnerToRecipient)
	require.NoError(t, err)
	require.Equal(t, FirstTime, res.SyncType)
	require.Equal(t, 2, res.RecordsSynced)
}

func TestVectorAllWritesFail(t *testing.T) {
	e := newEnv(t)
	e.vaults.addEntry("vault-o", "journal", "ran 5k", day, nil)
	e.vaults.writeErr["vault-r"] = errors.New("vault API error: 503 - busy")
	share := e.share(t, "journal", types.SkillVector, types.ShareAccepted)

	res, err := e.service.Sync(context.Background(), share.ID, types.OwnerToRecipient)
	require.ErrorIs(t, err, ErrNothingSynced)
	require.Equal(t, "Failed to sync any entries", res.Message)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "ran 5k", res.Errors[0].Entry["text"])

	entries := e.logEntries(t, share.ID)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Success)
}

func TestVectorSourceSearchFailure(t *testing.T) {
	e := newEnv(t)
	e.vaults.searchErr["vault-o"] = &types.UpstreamError{Service: "vault", Err: &vault.APIError{Status: 500, Body: "down"}}
	share := e.share(t, "journal", types.SkillVector, types.ShareAccepted)

	_, err := e.service.Sync(context.Background(), share.ID, types.OwnerToRecipient)
	require.True(t, types.IsUpstream(err))
	entries := e.logEntries(t, share.ID)
	require.Len(t, entries, 1)
	require.Equal(t, "Failed to search source vector skill", entries[0].ErrorMessage)
}

func TestSyncAsOverridesSkillType(t *testing.T) {
	e := newEnv(t)
	e.vaults.addEntry("vault-o", "journal", "ran 5k", day, nil)
	share := e.share(t, "journal", types.SkillTabular, types.ShareAccepted)

	res, err := e.service.SyncAs(context.Background(), share.ID, types.OwnerToRecipient, types.SkillVector)
	require.NoError(t, err)
	require.Equal(t, 1, res.RecordsSynced)
}

func TestProbeQueryTruncatesRunes(t *testing.T) {
	long := ""
	for i := 0; i < 120; i++ {
		long += "é"
	}
	require.Len(t, []rune(probeQuery(long)), probeQueryChars)
	require.Equal(t, "short", probeQuery("short"))
}
