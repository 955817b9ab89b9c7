// Package syncer copies shared skill data between the owner's and the
// recipient's vaults.
//
// A sync reads the source vault, decides what the destination is missing
// and writes it through the vault's direct API. Every invocation appends
// exactly one sync log entry. Writes are not transactional across the two
// vaults: a failed record is reported and the rest of the batch still runs.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/vault"
)

// Reader reads skills through the vault's user-authenticated interface.
type Reader interface {
	ListSkills(ctx context.Context, userID types.UserID) ([]string, error)
	TabularItems(ctx context.Context, userID types.UserID, skill string) ([]vault.Record, error)
}

// TableWriter writes rows without firing the vault's change webhooks.
type TableWriter interface {
	UpdateRecord(ctx context.Context, key, table string, id any, data map[string]any) error
	UpsertRecord(ctx context.Context, key string, u vault.Upsert) error
}

// VectorStore searches and appends vector entries.
type VectorStore interface {
	SearchVectors(ctx context.Context, key, table, query string, limit int) ([]vault.VectorEntry, error)
	AddVector(ctx context.Context, key, table, text string, metadata map[string]any) error
}

type SyncType string

const (
	FirstTime   SyncType = "first_time"
	Incremental SyncType = "incremental"
)

// ItemError is one record or entry that could not be written.
type ItemError struct {
	Record    map[string]any `json:"record,omitempty"`
	Entry     map[string]any `json:"entry,omitempty"`
	Error     string         `json:"error"`
	Operation string         `json:"operation,omitempty"`
}

// Result is the outcome of one sync invocation.
type Result struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message"`
	SyncType       SyncType    `json:"sync_type,omitempty"`
	RecordsUpdated int         `json:"records_updated"`
	RecordsAdded   int         `json:"records_added"`
	RecordsSynced  int         `json:"records_synced"`
	Errors         []ItemError `json:"errors,omitempty"`
}

// journal writes the single log entry of one invocation.
type journal struct {
	log       types.SyncLog
	share     types.ShareID
	source    types.UserID
	dest      types.UserID
	direction types.Direction
}

func newJournal(log types.SyncLog, share *types.SharedSkill, d types.Direction) journal {
	src, dst := share.Parties(d)
	return journal{log: log, share: share.ID, source: src.UserID, dest: dst.UserID, direction: d}
}

func (j journal) record(ctx context.Context, success bool, detail map[string]any, message string) {
	if _, ok := detail["direction"]; !ok {
		detail["direction"] = j.direction
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		raw = []byte("{}")
	}
	entry := &types.SyncLogEntry{
		SharedSkillID:   j.share,
		Action:          "sync",
		PerformedBy:     j.source,
		SyncedTo:        j.dest,
		OperationDetail: raw,
		Success:         success,
		ErrorMessage:    message,
	}
	if err := j.log.Append(ctx, entry); err != nil {
		slog.Error("append sync log", "shared_skill_id", j.share, "error", err)
	}
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Service loads a share, checks it can sync and runs the engine for its
// skill type. Syncs of the same share never overlap.
type Service struct {
	shares   types.ShareRegistry
	director *Director
	tabular  *TabularEngine
	vector   *VectorEngine
	locks    *keyedMutex
}

func NewService(shares types.ShareRegistry, tabular *TabularEngine, vector *VectorEngine) *Service {
	return &Service{
		shares:   shares,
		director: NewDirector(shares),
		tabular:  tabular,
		vector:   vector,
		locks:    newKeyedMutex(),
	}
}

// Sync runs the engine matching the share's skill type.
func (s *Service) Sync(ctx context.Context, id types.ShareID, d types.Direction) (*Result, error) {
	return s.SyncAs(ctx, id, d, "")
}

// SyncAs runs the engine for kind, or the share's own skill type when kind
// is empty.
func (s *Service) SyncAs(ctx context.Context, id types.ShareID, d types.Direction, kind types.SkillType) (*Result, error) {
	if id == "" {
		return nil, types.Invalid("shared_skill_id", "shared_skill_id is required")
	}
	if d == "" {
		d = types.OwnerToRecipient
	}
	if _, err := types.ParseDirection(string(d)); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(string(id))
	defer unlock()

	share, err := s.shares.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if share.Status != types.ShareAccepted {
		return nil, &types.StateError{Message: "Shared skill must be accepted before syncing"}
	}
	if kind == "" {
		kind = share.SkillType
	}

	slog.Info("sync started", "shared_skill_id", id, "direction", d, "skill_type", kind, "table", share.TableName)
	var res *Result
	switch kind {
	case types.SkillVector:
		res, err = s.vector.Sync(ctx, share, d)
	case types.SkillTabular:
		res, err = s.tabular.Sync(ctx, share, d)
	default:
		return nil, fmt.Errorf("unknown skill type %q", kind)
	}
	if err != nil {
		slog.Error("sync failed", "shared_skill_id", id, "direction", d, "error", err)
		return res, err
	}
	slog.Info("sync finished", "shared_skill_id", id, "direction", d, "records_synced", res.RecordsSynced, "errors", len(res.Errors))
	return res, nil
}
