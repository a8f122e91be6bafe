package model

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	t.Parallel()

	t.Run("event", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["EVENT",{"id":"abc","pubkey":"def","created_at":1700000000,"kind":1,"tags":[["p","x"]],"content":"hi","sig":"00"}]`))
		require.NoError(t, err)
		ev, ok := env.(*nostr.EventEnvelope)
		require.True(t, ok)
		require.Equal(t, "abc", ev.Event.ID)
		require.Equal(t, 1, ev.Event.Kind)
	})
	t.Run("req with multiple filters", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["REQ","sub-1",{"kinds":[1,7],"limit":10},{"authors":["aa"],"#p":["bb"]}]`))
		require.NoError(t, err)
		req, ok := env.(*ReqEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub-1", req.SubscriptionID)
		require.Len(t, req.Filters, 2)
		require.Equal(t, []int{1, 7}, req.Filters[0].Kinds)
		require.Equal(t, 10, req.Filters[0].Limit)
		require.Equal(t, []string{"bb"}, req.Filters[1].Tags["p"])
	})
	t.Run("req without filters", func(t *testing.T) {
		_, err := ParseMessage([]byte(`["REQ","sub-1"]`))
		require.ErrorIs(t, err, ErrParseMessage)
	})
	t.Run("close", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["CLOSE","sub-1"]`))
		require.NoError(t, err)
		cl, ok := env.(*nostr.CloseEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub-1", string(*cl))
	})
	t.Run("count", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["COUNT","sub-2",{"kinds":[1]}]`))
		require.NoError(t, err)
		cnt, ok := env.(*CountEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub-2", cnt.SubscriptionID)
		require.Len(t, cnt.Filters, 1)
	})
	t.Run("unknown label", func(t *testing.T) {
		_, err := ParseMessage([]byte(`["AUTH","challenge"]`))
		require.ErrorIs(t, err, ErrUnknownMessage)
	})
	t.Run("not an envelope", func(t *testing.T) {
		_, err := ParseMessage([]byte(`{"hello":"world"}`))
		require.ErrorIs(t, err, ErrUnknownMessage)
	})
}
