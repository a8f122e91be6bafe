// SPDX-License-Identifier: MIT

package model

import "github.com/nbd-wtf/go-nostr"

// EventTreatment is the storage policy selected by an event's kind, per the
// NIP-01 kind ranges.
type EventTreatment uint8

const (
	TreatmentRegular EventTreatment = iota
	TreatmentReplaceable
	TreatmentEphemeral
	TreatmentParameterizedReplaceable
)

func (t EventTreatment) String() string {
	switch t {
	case TreatmentRegular:
		return "regular"
	case TreatmentReplaceable:
		return "replaceable"
	case TreatmentEphemeral:
		return "ephemeral"
	case TreatmentParameterizedReplaceable:
		return "parameterized-replaceable"
	}

	return "unknown"
}

func TreatmentForKind(kind Kind) EventTreatment {
	switch {
	case kind == nostr.KindProfileMetadata || kind == nostr.KindFollowList:
		return TreatmentReplaceable
	case kind >= 10_000 && kind < 20_000:
		return TreatmentReplaceable
	case kind >= 20_000 && kind < 30_000:
		return TreatmentEphemeral
	case kind >= 30_000 && kind < 40_000:
		return TreatmentParameterizedReplaceable
	}

	return TreatmentRegular
}

func (e *Event) Treatment() EventTreatment {
	return TreatmentForKind(e.Kind)
}

func (e *Event) IsEphemeral() bool {
	return e.Treatment() == TreatmentEphemeral
}

// IsReplaceable reports whether the event is subject to any replacement
// policy, scoped either per (pubkey, kind) or per (pubkey, kind, d tag).
func (e *Event) IsReplaceable() bool {
	t := e.Treatment()

	return t == TreatmentReplaceable || t == TreatmentParameterizedReplaceable
}
