// SPDX-License-Identifier: MIT

package model

import (
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

type (
	TagMap    = nostr.TagMap
	Tag       = nostr.Tag
	Tags      = nostr.Tags
	Timestamp = nostr.Timestamp
	Kind      = int
	Filter    = nostr.Filter
	Filters   = nostr.Filters

	Subscription struct {
		Filters Filters
	}

	EventReference interface {
		Filter() Filter
	}
	ReplaceableEventReference struct {
		PubKey string
		DTag   string
		Kind   int
	}
	PlainEventReference struct {
		EventIDs []string
	}
)

var (
	ErrDuplicate  = errors.New("duplicate event")
	ErrSuperseded = errors.New("event superseded by a newer one")
)

const (
	// KindRegistrationRequest is the replaceable kind used by not-yet-whitelisted
	// authors to ask for access. The latest request per author wins.
	KindRegistrationRequest Kind = 11950
)

// RegistrationKinds are the kinds an unknown author must be able to publish
// before anyone has whitelisted them. Kept narrow on purpose.
func RegistrationKinds() []Kind {
	return []Kind{nostr.KindProfileMetadata, KindRegistrationRequest}
}
