// SPDX-License-Identifier: MIT

package query

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/hearthside/relay/model"
)

// eventBatcher walks a select in fixed-size batches. Rows come back ordered
// by system_created_at descending, so the smallest value seen in a batch is
// the pivot the next batch resumes below. A batch that cannot move the pivot
// means the result set is drained.
type eventBatcher struct {
	nextBatch func(pivot int64) (*sqlx.Rows, error)
	// single skips the follow-up batches when the caller's limit already
	// fits into one.
	single bool
}

func (b *eventBatcher) run(ctx context.Context, fn func(*model.Event) error) error {
	var pivot int64

	for ctx.Err() == nil {
		moved, err := b.batch(ctx, fn, &pivot)
		if err != nil {
			return err
		}
		if !moved || b.single {
			return nil
		}
	}

	return ctx.Err()
}

func (b *eventBatcher) batch(ctx context.Context, fn func(*model.Event) error, pivot *int64) (moved bool, err error) {
	rows, err := b.nextBatch(*pivot)
	if err != nil {
		return false, errors.Wrap(err, "failed to fetch events batch")
	} else if rows == nil {
		return false, nil
	}
	defer rows.Close()

	for rows.Next() && ctx.Err() == nil {
		event, err := b.scanRow(rows)
		if err != nil {
			return false, err
		}

		if *pivot == 0 || event.SystemCreatedAt < *pivot {
			*pivot = event.SystemCreatedAt
			moved = true
		}

		if err = fn(&event.Event); err != nil {
			return false, errors.Wrap(err, "failed to process event")
		}
	}

	return moved, nil
}

func (b *eventBatcher) scanRow(rows *sqlx.Rows) (*databaseEvent, error) {
	var ev databaseEvent
	if err := rows.StructScan(&ev); err != nil {
		return nil, errors.Wrap(err, "failed to scan event row")
	}
	if len(ev.Jtags) > 0 {
		if err := ev.Tags.Scan(ev.Jtags); err != nil {
			return nil, errors.Wrap(err, "failed to decode event tags")
		}
	}

	return &ev, nil
}
