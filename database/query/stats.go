// SPDX-License-Identifier: MIT

package query

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// RelayStats are the aggregate counters for the admin side-channel.
type RelayStats struct {
	EventCount     int64 `json:"eventCount"`
	WhitelistCount int64 `json:"whitelistCount"`
	StorageBytes   int64 `json:"storageBytes"`
}

func (db *dbClient) Stats(ctx context.Context) (*RelayStats, error) {
	const stmt = `select
	(select count(id) from events) as event_count,
	(select count(pubkey) from whitelist_entries where expires_at is null or expires_at > :now) as whitelist_count,
	(select page_count * page_size from pragma_page_count(), pragma_page_size()) as storage_bytes`

	prepared, err := db.prepare(ctx, stmt, hashSQL(stmt))
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare stats query")
	}

	var row struct {
		EventCount     int64 `db:"event_count"`
		WhitelistCount int64 `db:"whitelist_count"`
		StorageBytes   int64 `db:"storage_bytes"`
	}
	if err = prepared.GetContext(ctx, &row, map[string]any{"now": time.Now().Unix()}); err != nil {
		return nil, errors.Wrap(err, "failed to query relay stats")
	}

	return &RelayStats{
		EventCount:     row.EventCount,
		WhitelistCount: row.WhitelistCount,
		StorageBytes:   row.StorageBytes,
	}, nil
}
