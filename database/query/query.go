// SPDX-License-Identifier: MIT

package query

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/nbd-wtf/go-nostr"

	"github.com/hearthside/relay/model"
)

const (
	selectDefaultBatchLimit = 100

	// selectMaxLimit caps every query regardless of the client-requested limit.
	selectMaxLimit = 5000
)

var errEventIteratorInterrupted = errors.New("interrupted")

type databaseEvent struct {
	model.Event
	SystemCreatedAt int64
	Jtags           string
	DTag            string
}

type EventIterator iter.Seq2[*model.Event, error]

// AcceptEvent applies the event's storage policy. Ephemeral events are never
// persisted, deletions remove the author's referenced events, everything else
// is inserted under its treatment's replacement semantics.
func (db *dbClient) AcceptEvent(ctx context.Context, event *model.Event) error {
	if event.IsEphemeral() {
		return nil
	}
	if event.Kind == nostr.KindDeletion {
		refs, err := model.ParseEventReference(event.Tags)
		if err != nil {
			return errors.Wrap(err, "failed to detect events for delete")
		}
		if len(refs) == 0 {
			// A deletion only touches what it references. Without references
			// the where clause would degenerate to match-all and wipe the
			// author's whole history.
			return nil
		}
		filters := model.Filters{}
		for _, r := range refs {
			filters = append(filters, r.Filter())
		}
		if err = db.DeleteEvents(ctx, &model.Subscription{Filters: filters}, event.PubKey); err != nil {
			return errors.Wrapf(err, "failed to delete events %+v", filters)
		}

		return nil
	}

	return db.saveEvent(ctx, event)
}

func (db *dbClient) saveEvent(ctx context.Context, event *model.Event) error {
	jtags, err := json.Marshal(event.Tags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal tags")
	}
	dbEvent := databaseEvent{
		Event:           *event,
		SystemCreatedAt: time.Now().UnixNano(),
		Jtags:           string(jtags),
		DTag:            event.DTag(),
	}

	if !event.IsReplaceable() {
		const stmt = `insert into events
	(kind, created_at, system_created_at, id, pubkey, sig, content, tags, d_tag)
values
	(:kind, :created_at, :system_created_at, :id, :pubkey, :sig, :content, :jtags, :d_tag)
on conflict (id) do nothing`

		rowsAffected, execErr := db.exec(ctx, stmt, dbEvent)
		if execErr != nil {
			return errors.Wrap(execErr, "failed to exec insert event sql")
		}
		if rowsAffected == 0 {
			return model.ErrDuplicate
		}

		return nil
	}

	return db.saveReplaceableEvent(ctx, &dbEvent, event.Treatment() == model.TreatmentParameterizedReplaceable)
}

// saveReplaceableEvent deletes older events in the same scope, then inserts
// unless a newer-or-equal one already exists there. Ties on created_at are
// broken by id ordering, lower id wins. Both statements run in one
// transaction so two concurrent replaces cannot both believe they are newest.
func (db *dbClient) saveReplaceableEvent(ctx context.Context, dbEvent *databaseEvent, parameterized bool) error {
	scope := `pubkey = :pubkey and kind = :kind`
	if parameterized {
		scope += ` and d_tag = :d_tag`
	}
	deleteOlder := `delete from events where ` + scope +
		` and (created_at < :created_at or (created_at = :created_at and id > :id))`
	insertUnlessNewer := `insert into events
	(kind, created_at, system_created_at, id, pubkey, sig, content, tags, d_tag)
select
	:kind, :created_at, :system_created_at, :id, :pubkey, :sig, :content, :jtags, :d_tag
where not exists (select 1 from events where ` + scope +
		` and (created_at > :created_at or (created_at = :created_at and id <= :id)))`

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin replace tx")
	}
	defer tx.Rollback() //nolint:errcheck // Noop after commit.

	if _, err = tx.NamedExecContext(ctx, deleteOlder, dbEvent); err != nil {
		return errors.Wrap(err, "failed to delete older events in scope")
	}
	result, err := tx.NamedExecContext(ctx, insertUnlessNewer, dbEvent)
	if err != nil {
		return errors.Wrap(err, "failed to insert replaceable event")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to process rows affected")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit replace tx")
	}
	if rowsAffected == 0 {
		return model.ErrSuperseded
	}

	return nil
}

func (db *dbClient) SelectEvents(ctx context.Context, subscription *model.Subscription) EventIterator {
	limit := int64(selectMaxLimit)
	hasLimitFilter := subscription != nil && len(subscription.Filters) > 0 && subscription.Filters[0].Limit > 0
	if hasLimitFilter && int64(subscription.Filters[0].Limit) < limit {
		limit = int64(subscription.Filters[0].Limit)
	}

	it := &eventBatcher{
		single: hasLimitFilter && limit <= selectDefaultBatchLimit,
		nextBatch: func(pivot int64) (*sqlx.Rows, error) {
			if limit <= 0 {
				return nil, nil
			}

			sql, params, err := generateSelectEventsSQL(subscription, pivot, min(selectDefaultBatchLimit, limit))
			if err != nil {
				return nil, err
			}

			stmt, err := db.prepare(ctx, sql, hashSQL(sql))
			if err != nil {
				return nil, errors.Wrapf(err, "failed to prepare query sql: %q", sql)
			}

			rows, err := stmt.QueryxContext(ctx, params)
			if err != nil {
				err = errors.Wrapf(err, "failed to query events sql: %q", sql)
			}
			if err == nil {
				limit -= selectDefaultBatchLimit
			}

			return rows, err
		}}

	return func(yield func(*model.Event, error) bool) {
		err := it.run(ctx, func(event *model.Event) error {
			if !yield(event, nil) {
				return errEventIteratorInterrupted
			}

			return nil
		})

		if err != nil && !errors.Is(err, errEventIteratorInterrupted) {
			yield(nil, errors.Wrap(err, "failed to iterate events"))
		}
	}
}

func (db *dbClient) DeleteEvents(ctx context.Context, subscription *model.Subscription, ownerPubKey string) error {
	where, params, err := generateEventsWhereClause(subscription)
	if err != nil {
		return errors.Wrap(err, "failed to generate events where clause")
	}

	params["owner_pub_key"] = ownerPubKey
	if _, err = db.exec(ctx, fmt.Sprintf(`delete from events where (%v) AND pubkey = :owner_pub_key`, where), params); err != nil {
		return errors.Wrap(err, "failed to exec delete events sql")
	}

	return nil
}

func (db *dbClient) CountEvents(ctx context.Context, subscription *model.Subscription) (count int64, err error) {
	where, params, err := generateEventsWhereClause(subscription)
	if err != nil {
		return -1, errors.Wrap(err, "failed to generate events where clause")
	}

	sql := `select count(id) from events e where ` + where

	stmt, err := db.prepare(ctx, sql, hashSQL(sql))
	if err != nil {
		return -1, errors.Wrapf(err, "failed to prepare query sql: %q", sql)
	}

	err = stmt.GetContext(ctx, &count, params)
	if err != nil {
		err = errors.Wrapf(err, "failed to query events count sql: %q", sql)
	}

	return count, err
}

func generateSelectEventsSQL(subscription *model.Subscription, systemCreatedAtPivot, limit int64) (sql string, params map[string]any, err error) {
	where, params, err := generateEventsWhereClause(subscription)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to generate events where clause")
	}

	var systemCreatedAtFilter string
	if systemCreatedAtPivot != 0 {
		systemCreatedAtFilter = " (system_created_at < :system_created_at_pivot) AND "
		params["system_created_at_pivot"] = systemCreatedAtPivot
	}

	var limitQuery string
	if limit > 0 {
		params["mainlimit"] = limit
		limitQuery = " limit :mainlimit"
	}

	return `
select
	e.kind,
	e.created_at,
	e.system_created_at,
	e.id,
	e.pubkey,
	e.sig,
	e.content,
	tags as jtags
from
	events e
where ` + systemCreatedAtFilter + `(` + where + `)
order by
	system_created_at desc
` + limitQuery, params, nil
}

func generateEventsWhereClause(subscription *model.Subscription) (clause string, params map[string]any, err error) {
	var filters []model.Filter

	if subscription != nil {
		filters = subscription.Filters
	}

	return newWhereBuilder().Build(filters...)
}
