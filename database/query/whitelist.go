// SPDX-License-Identifier: MIT

package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

type (
	// WhitelistEntry is the durable authorization record for an author.
	// Cohorts are opaque group names consumed by the application layer.
	WhitelistEntry struct {
		PubKey    string   `json:"pubkey"`
		Cohorts   []string `json:"cohorts"`
		AddedBy   string   `json:"addedBy"`
		CreatedAt int64    `json:"createdAt"`
		UpdatedAt int64    `json:"updatedAt"`
		ExpiresAt *int64   `json:"expiresAt,omitempty"`
	}

	// WhitelistedProfile is a listing row: the entry plus the author's most
	// recent profile-metadata content, resolved in the same query.
	WhitelistedProfile struct {
		WhitelistEntry
		ProfileContent string `json:"profileContent,omitempty"`
	}

	databaseWhitelistEntry struct {
		PubKey    string
		Cohorts   string
		AddedBy   string
		CreatedAt int64
		UpdatedAt int64
		ExpiresAt sql.NullInt64
		Profile   sql.NullString
	}
)

var ErrWhitelistEntryNotFound = errors.New("whitelist entry not found")

func (e *databaseWhitelistEntry) toEntry() (*WhitelistEntry, error) {
	entry := &WhitelistEntry{
		PubKey:    e.PubKey,
		AddedBy:   e.AddedBy,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.ExpiresAt.Valid {
		entry.ExpiresAt = &e.ExpiresAt.Int64
	}
	if err := json.Unmarshal([]byte(e.Cohorts), &entry.Cohorts); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal cohorts %q", e.Cohorts)
	}

	return entry, nil
}

// GetWhitelistEntry is a point lookup by pubkey. Expired entries are absent.
func (db *dbClient) GetWhitelistEntry(ctx context.Context, pubkey string) (*WhitelistEntry, error) {
	const stmt = `select pubkey, cohorts, added_by, created_at, updated_at, expires_at
from whitelist_entries
where pubkey = :pubkey and (expires_at is null or expires_at > :now)`

	prepared, err := db.prepare(ctx, stmt, hashSQL(stmt))
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare whitelist lookup")
	}

	var dbEntry databaseWhitelistEntry
	err = prepared.GetContext(ctx, &dbEntry, map[string]any{"pubkey": pubkey, "now": time.Now().Unix()})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWhitelistEntryNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to lookup whitelist entry for %q", pubkey)
	}

	return dbEntry.toEntry()
}

// IsWhitelisted is the hot-path form of GetWhitelistEntry used by the access
// control gate.
func (db *dbClient) IsWhitelisted(ctx context.Context, pubkey string) (bool, error) {
	_, err := db.GetWhitelistEntry(ctx, pubkey)
	if errors.Is(err, ErrWhitelistEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (db *dbClient) UpsertWhitelistEntry(ctx context.Context, entry *WhitelistEntry) error {
	const stmt = `insert into whitelist_entries
	(pubkey, cohorts, added_by, created_at, updated_at, expires_at)
values
	(:pubkey, :cohorts, :added_by, :created_at, :updated_at, :expires_at)
on conflict (pubkey) do update set
	cohorts = excluded.cohorts,
	updated_at = excluded.updated_at,
	expires_at = excluded.expires_at`

	cohorts := entry.Cohorts
	if cohorts == nil {
		cohorts = []string{}
	}
	jcohorts, err := json.Marshal(cohorts)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cohorts")
	}

	now := time.Now().Unix()
	dbEntry := databaseWhitelistEntry{
		PubKey:    entry.PubKey,
		Cohorts:   string(jcohorts),
		AddedBy:   entry.AddedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if entry.ExpiresAt != nil {
		dbEntry.ExpiresAt = sql.NullInt64{Int64: *entry.ExpiresAt, Valid: true}
	}

	if _, err = db.exec(ctx, stmt, dbEntry); err != nil {
		return errors.Wrapf(err, "failed to upsert whitelist entry for %q", entry.PubKey)
	}

	return nil
}

func (db *dbClient) DeleteWhitelistEntry(ctx context.Context, pubkey string) error {
	const stmt = `delete from whitelist_entries where pubkey = :pubkey`

	if _, err := db.exec(ctx, stmt, map[string]any{"pubkey": pubkey}); err != nil {
		return errors.Wrapf(err, "failed to delete whitelist entry for %q", pubkey)
	}

	return nil
}

// ListWhitelistEntries returns a page of unexpired entries newest-first, each
// joined with the author's stored profile-metadata content. One query, not a
// round trip per entry.
func (db *dbClient) ListWhitelistEntries(ctx context.Context, limit, offset int64) ([]*WhitelistedProfile, error) {
	const stmt = `select
	w.pubkey,
	w.cohorts,
	w.added_by,
	w.created_at,
	w.updated_at,
	w.expires_at,
	p.content as profile
from whitelist_entries w
left join events p on p.pubkey = w.pubkey and p.kind = :profile_kind
where (w.expires_at is null or w.expires_at > :now)
order by w.created_at desc, w.pubkey
limit :limit offset :offset`

	prepared, err := db.prepare(ctx, stmt, hashSQL(stmt))
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare whitelist listing")
	}

	rows, err := prepared.QueryxContext(ctx, map[string]any{
		"profile_kind": nostr.KindProfileMetadata,
		"now":          time.Now().Unix(),
		"limit":        limit,
		"offset":       offset,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query whitelist entries")
	}
	defer rows.Close()

	profiles := make([]*WhitelistedProfile, 0, limit)
	for rows.Next() {
		var dbEntry databaseWhitelistEntry
		if err = rows.StructScan(&dbEntry); err != nil {
			return nil, errors.Wrap(err, "failed to scan whitelist entry")
		}
		entry, err := dbEntry.toEntry()
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, &WhitelistedProfile{
			WhitelistEntry: *entry,
			ProfileContent: dbEntry.Profile.String,
		})
	}

	return profiles, errors.Wrap(rows.Err(), "failed to iterate whitelist entries")
}
