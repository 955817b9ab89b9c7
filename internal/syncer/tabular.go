package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/vault"
)

const sharedTableNotes = "This is a shared skill. Data syncs bidirectionally."

// TabularEngine reconciles structured rows by id and recency.
type TabularEngine struct {
	reader Reader
	writer TableWriter
	log    types.SyncLog
}

func NewTabularEngine(reader Reader, writer TableWriter, log types.SyncLog) *TabularEngine {
	return &TabularEngine{reader: reader, writer: writer, log: log}
}

type rowUpdate struct {
	source vault.Record
	destID any
}

// Sync copies rows from the source side of share to the destination side.
// A destination without the table receives every row, the first one
// creating the table. Otherwise only the most recently changed source row
// is written: in place when the destination has its id, appended if not.
func (e *TabularEngine) Sync(ctx context.Context, share *types.SharedSkill, d types.Direction) (*Result, error) {
	src, dst := share.Parties(d)
	j := newJournal(e.log, share, d)
	table := share.TableName

	skills, err := e.reader.ListSkills(ctx, src.UserID)
	if err != nil {
		j.record(ctx, false, map[string]any{"step": "list_source", "error": err.Error()}, "Failed to list source skills")
		return nil, fmt.Errorf("list source skills: %w", err)
	}
	if !slices.Contains(skills, table) {
		j.record(ctx, false, map[string]any{"step": "list_source", "result": "skill_missing"}, "Skill not found in source vault")
		return nil, &vault.MissingSkillError{
			Message:   fmt.Sprintf("Skill %q not found in owner's vault", table),
			Available: skills,
		}
	}

	rows, err := e.reader.TabularItems(ctx, src.UserID, table)
	if err != nil {
		j.record(ctx, false, map[string]any{"step": "read_source", "error": err.Error()}, "Failed to read from source vault")
		return nil, fmt.Errorf("read source rows: %w", err)
	}
	if len(rows) == 0 {
		j.record(ctx, true, map[string]any{"step": "read_source", "result": "no_data"}, "")
		return &Result{Success: true, Message: "No data to sync yet"}, nil
	}

	destSkills, err := e.reader.ListSkills(ctx, dst.UserID)
	if err != nil {
		j.record(ctx, false, map[string]any{"step": "list_destination", "error": err.Error()}, "Failed to sync to destination")
		return nil, fmt.Errorf("list destination skills: %w", err)
	}
	exists := slices.Contains(destSkills, table)

	var (
		updates []rowUpdate
		inserts []vault.Record
	)
	res := &Result{SyncType: FirstTime}
	if !exists {
		inserts = rows
	} else {
		res.SyncType = Incremental
		latest := mostRecentRow(rows)
		destRows, err := e.reader.TabularItems(ctx, dst.UserID, table)
		if err != nil {
			slog.Warn("read destination rows, inserting latest", "shared_skill_id", share.ID, "error", err)
			inserts = []vault.Record{latest}
		} else if match := findByID(destRows, latest); match != nil {
			updates = []rowUpdate{{source: latest, destID: match.ID()}}
		} else {
			inserts = []vault.Record{latest}
		}
	}

	for _, u := range updates {
		data := u.source.Data()
		if err := e.writer.UpdateRecord(ctx, dst.Vault, table, u.destID, data); err != nil {
			res.Errors = append(res.Errors, ItemError{Record: data, Error: err.Error(), Operation: "update"})
			slog.Error("update row", "shared_skill_id", share.ID, "id", u.destID, "error", err)
			continue
		}
		res.RecordsSynced++
	}
	for i, row := range inserts {
		data := row.Data()
		up := vault.Upsert{TableName: table, Data: data}
		if !exists && i == 0 {
			up.Columns = vault.ColumnsFor(data)
			up.Skill = &vault.TableSpec{
				Description:   "Shared from " + src.Vault,
				Examples:      []string{},
				Relationships: []string{},
				Notes:         sharedTableNotes,
			}
		}
		if err := e.writer.UpsertRecord(ctx, dst.Vault, up); err != nil {
			res.Errors = append(res.Errors, ItemError{Record: data, Error: err.Error(), Operation: "add"})
			slog.Error("insert row", "shared_skill_id", share.ID, "error", err)
			continue
		}
		res.RecordsSynced++
	}

	res.RecordsUpdated = len(updates)
	res.RecordsAdded = len(inserts)
	res.Success = len(res.Errors) == 0
	switch {
	case !res.Success:
		res.Message = fmt.Sprintf("Synced %d records with %d errors", res.RecordsSynced, len(res.Errors))
	case len(updates)+len(inserts) > 0:
		res.Message = fmt.Sprintf("Successfully synced %d operation(s) (%d updated, %d added)", res.RecordsSynced, res.RecordsUpdated, res.RecordsAdded)
	default:
		res.Message = "No changes to sync"
	}

	var failure string
	if !res.Success {
		failure = fmt.Sprintf("%d operations failed", len(res.Errors))
	}
	j.record(ctx, res.Success, map[string]any{
		"sync_type":       res.SyncType,
		"records_read":    len(rows),
		"records_updated": res.RecordsUpdated,
		"records_added":   res.RecordsAdded,
		"records_synced":  res.RecordsSynced,
		"errors":          res.Errors,
	}, failure)
	return res, nil
}

// mostRecentRow picks the row with the latest updated_at, or created_at
// when a row was never updated. Ties keep source order.
func mostRecentRow(rows []vault.Record) vault.Record {
	sorted := slices.Clone(rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Changed().After(sorted[j].Changed())
	})
	return sorted[0]
}

func findByID(rows []vault.Record, target vault.Record) vault.Record {
	for _, r := range rows {
		if r.SameID(target) {
			return r
		}
	}
	return nil
}
