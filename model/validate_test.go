package model

import (
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"pgregory.net/rand"
)

func helperShapedEvent(kind Kind, now time.Time) *Event {
	var ev Event
	ev.ID = strings.Repeat("ab", 32)
	ev.PubKey = strings.Repeat("cd", 32)
	ev.Sig = strings.Repeat("ef", 64)
	ev.Kind = kind
	ev.CreatedAt = nostr.Timestamp(now.Unix())
	ev.Tags = Tags{}
	ev.Content = "hello"

	return &ev
}

func TestValidateShape(t *testing.T) {
	t.Parallel()
	now := time.Now()

	t.Run("well formed", func(t *testing.T) {
		require.NoError(t, helperShapedEvent(nostr.KindTextNote, now).Validate(now))
	})
	t.Run("kind out of range", func(t *testing.T) {
		ev := helperShapedEvent(nostr.KindTextNote, now)
		ev.Kind = maxKind + 1
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)
		ev.Kind = -1
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)
	})
	t.Run("fixed length hex fields", func(t *testing.T) {
		for _, mutate := range []func(*Event){
			func(e *Event) { e.ID = e.ID[:63] },
			func(e *Event) { e.ID = strings.Repeat("z", 64) },
			func(e *Event) { e.PubKey += "00" },
			func(e *Event) { e.Sig = e.Sig[:127] },
			func(e *Event) { e.Sig = strings.Repeat("g", 128) },
		} {
			ev := helperShapedEvent(nostr.KindTextNote, now)
			mutate(ev)
			require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)
		}
	})
	t.Run("content ceiling is asymmetric", func(t *testing.T) {
		payload := make([]byte, maxContentLenRegistration+1)
		rand.Read(payload)
		for i := range payload {
			payload[i] = 'a' + payload[i]%26
		}

		ev := helperShapedEvent(KindRegistrationRequest, now)
		ev.Content = string(payload)
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)

		ev = helperShapedEvent(nostr.KindProfileMetadata, now)
		ev.Content = string(payload)
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)

		// The same payload is fine for ordinary kinds.
		ev = helperShapedEvent(nostr.KindTextNote, now)
		ev.Content = string(payload)
		require.NoError(t, ev.Validate(now))

		ev = helperShapedEvent(nostr.KindTextNote, now)
		ev.Content = strings.Repeat("a", maxContentLen+1)
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)
	})
	t.Run("tag limits", func(t *testing.T) {
		ev := helperShapedEvent(nostr.KindTextNote, now)
		for i := 0; i <= maxTagCount; i++ {
			ev.Tags = append(ev.Tags, Tag{"t", "v"})
		}
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)

		ev = helperShapedEvent(nostr.KindTextNote, now)
		ev.Tags = Tags{{"t", strings.Repeat("v", maxTagValueLen+1)}}
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)

		ev = helperShapedEvent(nostr.KindTextNote, now)
		ev.Tags = Tags{{}}
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)
	})
	t.Run("timestamp drift", func(t *testing.T) {
		ev := helperShapedEvent(nostr.KindTextNote, now)
		ev.CreatedAt = nostr.Timestamp(now.Add(-maxCreatedAtDrift - time.Hour).Unix())
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)

		ev.CreatedAt = nostr.Timestamp(now.Add(maxCreatedAtDrift + time.Hour).Unix())
		require.ErrorIs(t, ev.Validate(now), ErrEventInvalidShape)

		ev.CreatedAt = nostr.Timestamp(now.Add(-maxCreatedAtDrift + time.Hour).Unix())
		require.NoError(t, ev.Validate(now))
	})
}

func TestTreatmentForKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind     Kind
		expected EventTreatment
	}{
		{nostr.KindProfileMetadata, TreatmentReplaceable},
		{nostr.KindTextNote, TreatmentRegular},
		{nostr.KindFollowList, TreatmentReplaceable},
		{nostr.KindReaction, TreatmentRegular},
		{10_002, TreatmentReplaceable},
		{KindRegistrationRequest, TreatmentReplaceable},
		{19_999, TreatmentReplaceable},
		{20_000, TreatmentEphemeral},
		{29_999, TreatmentEphemeral},
		{30_000, TreatmentParameterizedReplaceable},
		{39_999, TreatmentParameterizedReplaceable},
		{40_000, TreatmentRegular},
	}
	for _, c := range cases {
		require.Equalf(t, c.expected, TreatmentForKind(c.kind), "kind %d", c.kind)
	}

	require.True(t, (&Event{Event: nostr.Event{Kind: 20_001}}).IsEphemeral())
	require.True(t, (&Event{Event: nostr.Event{Kind: 30_001}}).IsReplaceable())
	require.False(t, (&Event{Event: nostr.Event{Kind: 1}}).IsReplaceable())
}
