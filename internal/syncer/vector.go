package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/vault"
)

const (
	sourceQuery     = "all entries data"
	probeQueryChars = 100
)

// ErrNothingSynced means every write of a vector batch failed.
var ErrNothingSynced = errors.New("failed to sync any entries")

// IsSeed reports whether text is the placeholder written when a vector
// skill is initialized.
func IsSeed(text string) bool {
	// Casers hold state and cannot be shared between goroutines.
	return cases.Fold().String(strings.TrimSpace(text)) == "seed"
}

// VectorEngine reconciles text entries, which carry no stable id, by
// recency.
type VectorEngine struct {
	store VectorStore
	log   types.SyncLog
	limit int
}

func NewVectorEngine(store VectorStore, log types.SyncLog, searchLimit int) *VectorEngine {
	if searchLimit <= 0 {
		searchLimit = vault.DefaultSearchLimit
	}
	return &VectorEngine{store: store, log: log, limit: searchLimit}
}

// Sync copies entries from the source side of share to the destination
// side. A destination without real entries receives every real source
// entry. Otherwise only the newest source entry is copied, and only when
// it is newer than the destination's newest entry.
func (e *VectorEngine) Sync(ctx context.Context, share *types.SharedSkill, d types.Direction) (*Result, error) {
	src, dst := share.Parties(d)
	j := newJournal(e.log, share, d)
	table := share.TableName

	found, err := e.store.SearchVectors(ctx, src.Vault, table, sourceQuery, e.limit)
	if err != nil {
		j.record(ctx, false, map[string]any{"step": "search_source", "error": err.Error()}, "Failed to search source vector skill")
		return nil, fmt.Errorf("search source entries: %w", err)
	}
	if len(found) == 0 {
		j.record(ctx, true, map[string]any{"step": "search_source", "result": "no_data"}, "")
		return &Result{Success: true, Message: "No data to sync yet"}, nil
	}
	entries := realEntries(found)
	if len(entries) == 0 {
		j.record(ctx, true, map[string]any{"step": "search_source", "result": "only_seed_records"}, "")
		return &Result{Success: true, Message: "No real data to sync yet (only seed records)"}, nil
	}
	latest := entries[0]

	firstTime := true
	current, err := e.store.SearchVectors(ctx, dst.Vault, table, probeQuery(latest.Text), e.limit)
	if err != nil {
		slog.Warn("search destination entries, syncing all", "shared_skill_id", share.ID, "error", err)
	} else if dest := realEntries(current); len(dest) > 0 {
		firstTime = false
		if !latest.CreatedAt.After(dest[0].CreatedAt) {
			j.record(ctx, true, map[string]any{"step": "check_timestamp", "result": "already_synced"}, "")
			return &Result{Success: true, Message: "Destination already up to date", SyncType: Incremental}, nil
		}
	}

	res := &Result{SyncType: FirstTime}
	batch := entries
	if !firstTime {
		res.SyncType = Incremental
		batch = entries[:1]
	}
	for _, entry := range batch {
		if err := e.store.AddVector(ctx, dst.Vault, table, entry.Text, carriedMetadata(entry)); err != nil {
			res.Errors = append(res.Errors, ItemError{Entry: entry.Fields, Error: err.Error(), Operation: "add"})
			slog.Error("add vector entry", "shared_skill_id", share.ID, "error", err)
			continue
		}
		res.RecordsSynced++
	}
	res.RecordsAdded = len(batch)
	res.Success = len(res.Errors) == 0

	var failure string
	if !res.Success {
		failure = fmt.Sprintf("%d operations failed", len(res.Errors))
	}
	j.record(ctx, res.Success, map[string]any{
		"sync_type":      res.SyncType,
		"entries_synced": res.RecordsSynced,
		"total_entries":  len(batch),
		"errors":         len(res.Errors),
	}, failure)

	if res.RecordsSynced == 0 {
		res.Message = "Failed to sync any entries"
		return res, ErrNothingSynced
	}
	if res.SyncType == FirstTime {
		res.Message = fmt.Sprintf("Successfully synced all %d vector entries", res.RecordsSynced)
	} else {
		res.Message = "Successfully synced most recent vector entry"
	}
	return res, nil
}

// realEntries drops seed entries and orders the rest newest first.
func realEntries(found []vault.VectorEntry) []vault.VectorEntry {
	out := slices.DeleteFunc(slices.Clone(found), func(e vault.VectorEntry) bool {
		return e.Text == "" || IsSeed(e.Text)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func probeQuery(text string) string {
	r := []rune(text)
	if len(r) > probeQueryChars {
		r = r[:probeQueryChars]
	}
	return string(r)
}

// carriedMetadata keeps the metadata columns every vector skill shares.
func carriedMetadata(e vault.VectorEntry) map[string]any {
	meta := map[string]any{
		"category":    "general",
		"subcategory": "",
		"tags":        "",
		"location":    "",
		"people":      "",
		"context":     "",
	}
	for key := range meta {
		if v, ok := e.Fields[key]; ok && v != nil && v != "" {
			meta[key] = v
		}
	}
	return meta
}
