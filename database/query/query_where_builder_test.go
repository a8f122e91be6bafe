package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/relay/model"
)

func TestWhereBuilderStmt(t *testing.T) {
	t.Parallel()

	t.Run("no filters fall back to default", func(t *testing.T) {
		where, params, err := newWhereBuilder().Build()
		require.NoError(t, err)
		require.Equal(t, whereBuilderDefaultWhere, where)
		require.Empty(t, params)
	})
	t.Run("single values use equality", func(t *testing.T) {
		where, params, err := newWhereBuilder().Build(model.Filter{Kinds: []int{1}, Authors: []string{"aa"}})
		require.NoError(t, err)
		require.Contains(t, where, "kind = :filter0_kind")
		require.Contains(t, where, "pubkey = :filter0_pubkey")
		require.Equal(t, 1, params["filter0_kind"])
		require.Equal(t, "aa", params["filter0_pubkey"])
	})
	t.Run("multiple values use IN with deduplication", func(t *testing.T) {
		where, params, err := newWhereBuilder().Build(model.Filter{Kinds: []int{1, 7, 1}})
		require.NoError(t, err)
		require.Contains(t, where, "kind IN (:filter0_kind0,:filter0_kind1)")
		require.Len(t, params, 2)
	})
	t.Run("filters are ORed", func(t *testing.T) {
		where, _, err := newWhereBuilder().Build(model.Filter{Kinds: []int{1}}, model.Filter{Kinds: []int{7}})
		require.NoError(t, err)
		require.Contains(t, where, ") OR (")
	})
	t.Run("empty filter emits a match-all clause", func(t *testing.T) {
		where, params, err := newWhereBuilder().Build(model.Filter{})
		require.NoError(t, err)
		require.Equal(t, "(1=1)", where)
		require.Empty(t, params)
	})
	t.Run("empty filter keeps the union whole regardless of position", func(t *testing.T) {
		where, _, err := newWhereBuilder().Build(model.Filter{Kinds: []int{1}}, model.Filter{})
		require.NoError(t, err)
		require.Equal(t, "(kind = :filter0_kind) OR (1=1)", where)

		where, _, err = newWhereBuilder().Build(model.Filter{}, model.Filter{Kinds: []int{1}})
		require.NoError(t, err)
		require.Equal(t, "(1=1) OR (kind = :filter1_kind)", where)
	})
	t.Run("inverted time range is rejected", func(t *testing.T) {
		since, until := model.Timestamp(100), model.Timestamp(50)
		_, _, err := newWhereBuilder().Build(model.Filter{Since: &since, Until: &until})
		require.ErrorIs(t, err, ErrWhereBuilderInvalidTimeRange)
	})
	t.Run("every client value is a bound parameter", func(t *testing.T) {
		since := model.Timestamp(100)
		where, params, err := newWhereBuilder().Build(model.Filter{
			IDs:     []string{`ab'; drop table events; --`},
			Authors: []string{`x" OR "1"="1`},
			Since:   &since,
			Tags:    model.TagMap{"p": {`%`, `_`, `'`}},
		})
		require.NoError(t, err)
		for _, hostile := range []string{"drop table", `"1"="1`, "%", "'"} {
			require.NotContains(t, strings.ToLower(where), strings.ToLower(hostile))
		}
		require.Len(t, params, 7)
	})
	t.Run("hostile tag names match nothing instead of erroring", func(t *testing.T) {
		where, params, err := newWhereBuilder().Build(model.Filter{
			Tags: model.TagMap{`p"; select 1; --`: {"deadbeef"}},
		})
		require.NoError(t, err)
		require.Equal(t, "(1=0)", where)
		require.Empty(t, params)
	})
}

func TestWhereBuilderInjectionResistance(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	now := time.Now().Unix()
	db := helperNewClient(t)

	tagged := helperEvent(nostr.KindTextNote, "author-1", now, model.Tags{{"t", "golang"}})
	wildcarded := helperEvent(nostr.KindTextNote, "author-1", now, model.Tags{{"t", "go%"}})
	require.NoError(t, db.AcceptEvent(ctx, tagged))
	require.NoError(t, db.AcceptEvent(ctx, wildcarded))

	t.Run("wildcards in tag values are literals", func(t *testing.T) {
		stored := helperSelectAll(t, db, model.Filter{Tags: model.TagMap{"t": {"go%"}}})
		require.Len(t, stored, 1)
		require.Equal(t, wildcarded.ID, stored[0].ID)
	})
	t.Run("quotes and comments in values match nothing", func(t *testing.T) {
		for _, hostile := range []string{`'; drop table events; --`, `" OR 1=1 --`, `go_ang`} {
			require.Empty(t, helperSelectAll(t, db, model.Filter{Tags: model.TagMap{"t": {hostile}}}))
		}
		// The table is still intact afterwards.
		require.Len(t, helperSelectAll(t, db, model.Filter{Kinds: []int{nostr.KindTextNote}}), 2)
	})
	t.Run("hostile tag names return no rows", func(t *testing.T) {
		require.Empty(t, helperSelectAll(t, db, model.Filter{Tags: model.TagMap{`t'--`: {"golang"}}}))
	})
	t.Run("hostile ids and authors return no rows", func(t *testing.T) {
		require.Empty(t, helperSelectAll(t, db, model.Filter{IDs: []string{`' OR '1'='1`}}))
		require.Empty(t, helperSelectAll(t, db, model.Filter{Authors: []string{`%`}}))
	})
}
