package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xbora/mio/internal/state"
	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/vault"
)

// fakeVaults keeps every vault in memory. Reads are addressed by user id,
// writes by vault key, the same way the real vault is reached.
type fakeVaults struct {
	mu      sync.Mutex
	keys    map[types.UserID]string
	tables  map[string]map[string][]vault.Record
	vectors map[string]map[string][]vault.VectorEntry

	readErr   map[types.UserID]error
	writeErr  map[string]error
	searchErr map[string]error

	upserts []vault.Upsert
	updates []any
	nextID  int
	clock   time.Time
}

func newFakeVaults() *fakeVaults {
	return &fakeVaults{
		keys: map[types.UserID]string{
			"owner":     "vault-o",
			"recipient": "vault-r",
		},
		tables:    map[string]map[string][]vault.Record{"vault-o": {}, "vault-r": {}},
		vectors:   map[string]map[string][]vault.VectorEntry{"vault-o": {}, "vault-r": {}},
		readErr:   map[types.UserID]error{},
		writeErr:  map[string]error{},
		searchErr: map[string]error{},
		nextID:    100,
		clock:     time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeVaults) ListSkills(ctx context.Context, userID types.UserID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[userID]; err != nil {
		return nil, err
	}
	key := f.keys[userID]
	var names []string
	for name := range f.tables[key] {
		names = append(names, name)
	}
	for name := range f.vectors[key] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeVaults) TabularItems(ctx context.Context, userID types.UserID, skill string) ([]vault.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[userID]; err != nil {
		return nil, err
	}
	rows, ok := f.tables[f.keys[userID]][skill]
	if !ok {
		return nil, &types.UpstreamError{Service: "vault mcp", Err: fmt.Errorf("unknown skill %s", skill)}
	}
	return rows, nil
}

func (f *fakeVaults) UpdateRecord(ctx context.Context, key, table string, id any, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[key]; err != nil {
		return err
	}
	f.updates = append(f.updates, id)
	for _, row := range f.tables[key][table] {
		if fmt.Sprint(row["id"]) == fmt.Sprint(id) {
			for k, v := range data {
				row[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("no row %v", id)
}

func (f *fakeVaults) UpsertRecord(ctx context.Context, key string, u vault.Upsert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[key]; err != nil {
		return err
	}
	f.upserts = append(f.upserts, u)
	row := vault.Record{"id": float64(f.nextID)}
	f.nextID++
	for k, v := range u.Data {
		row[k] = v
	}
	f.tables[key][u.TableName] = append(f.tables[key][u.TableName], row)
	return nil
}

func (f *fakeVaults) SearchVectors(ctx context.Context, key, table, query string, limit int) ([]vault.VectorEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.searchErr[key]; err != nil {
		return nil, err
	}
	entries := f.vectors[key][table]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]vault.VectorEntry(nil), entries...), nil
}

func (f *fakeVaults) AddVector(ctx context.Context, key, table, text string, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[key]; err != nil {
		return err
	}
	f.clock = f.clock.Add(time.Minute)
	fields := map[string]any{"text": text}
	for k, v := range metadata {
		fields[k] = v
	}
	f.vectors[key][table] = append(f.vectors[key][table], vault.VectorEntry{Text: text, CreatedAt: f.clock, Fields: fields})
	return nil
}

func (f *fakeVaults) addEntry(key, table, text string, created time.Time, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fields == nil {
		fields = map[string]any{}
	}
	fields["text"] = text
	f.vectors[key][table] = append(f.vectors[key][table], vault.VectorEntry{Text: text, CreatedAt: created, Fields: fields})
}

type env struct {
	vaults  *fakeVaults
	shares  *state.ShareRegistry
	log     *state.SyncLog
	service *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, state.Migrate(ctx, db))

	shares, err := state.NewShareRegistry(db)
	require.NoError(t, err)
	log, err := state.NewSyncLog(db)
	require.NoError(t, err)

	vaults := newFakeVaults()
	svc := NewService(shares,
		NewTabularEngine(vaults, vaults, log),
		NewVectorEngine(vaults, log, 10),
	)
	return &env{vaults: vaults, shares: shares, log: log, service: svc}
}

func (e *env) share(t *testing.T, table string, kind types.SkillType, status types.ShareStatus) *types.SharedSkill {
	t.Helper()
	now := time.Now().UTC()
	s := &types.SharedSkill{
		ID:              types.NewShareID(),
		SkillName:       table,
		OwnerUserID:     "owner",
		RecipientUserID: "recipient",
		OwnerVault:      "vault-o",
		RecipientVault:  "vault-r",
		TableName:       table,
		SkillType:       kind,
		Status:          status,
		InviteToken:     types.NewInviteToken(),
		InviteSentAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status == types.ShareAccepted {
		s.InviteAcceptedAt = &now
	}
	require.NoError(t, e.shares.Create(context.Background(), s))
	return s
}

func (e *env) logEntries(t *testing.T, id types.ShareID) []*types.SyncLogEntry {
	t.Helper()
	entries, err := e.log.ListByShare(context.Background(), id, 0)
	require.NoError(t, err)
	return entries
}
