// Package state provides SQLite-backed storage implementations built on bun.
package state

import "github.com/xbora/mio/internal/types"

// Compile-time interface compliance checks.
var _ types.ActionStore = (*ActionStore)(nil)
var _ types.ShareRegistry = (*ShareRegistry)(nil)
var _ types.SyncLog = (*SyncLog)(nil)
var _ types.UserDirectory = (*UserDirectory)(nil)
