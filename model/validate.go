// SPDX-License-Identifier: MIT

package model

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/gookit/goutil/errorx"
	"github.com/nbd-wtf/go-nostr"
)

const (
	maxKind = 65535

	// Registration kinds stay cheap to spam-filter before the author is trusted.
	maxContentLenRegistration = 8 << 10
	maxContentLen             = 64 << 10

	maxTagCount    = 2000
	maxTagValueLen = 1 << 10

	// Author-supplied created_at must stay within this window of the relay clock,
	// in both directions.
	maxCreatedAtDrift = 7 * 24 * time.Hour
)

var ErrEventInvalidShape = errors.New("event does not satisfy structural limits")

// Validate enforces the structural limits, cheapest check first. It is pure
// and performs no cryptographic work; VerifyIdentity runs separately and only
// after this passed.
func (e *Event) Validate(now time.Time) error {
	if e.Kind < 0 || e.Kind > maxKind {
		return errorx.Withf(ErrEventInvalidShape, "kind %d out of range", e.Kind)
	}
	if len(e.ID) != 64 || !isHex(e.ID) {
		return errorx.Withf(ErrEventInvalidShape, "id must be 64 hex characters")
	}
	if len(e.PubKey) != 64 || !isHex(e.PubKey) {
		return errorx.Withf(ErrEventInvalidShape, "pubkey must be 64 hex characters")
	}
	if len(e.Sig) != 128 || !isHex(e.Sig) {
		return errorx.Withf(ErrEventInvalidShape, "sig must be 128 hex characters")
	}
	if maxLen := contentCeiling(e.Kind); len(e.Content) > maxLen {
		return errorx.Withf(ErrEventInvalidShape, "content exceeds %d bytes for kind %d", maxLen, e.Kind)
	}
	if len(e.Tags) > maxTagCount {
		return errorx.Withf(ErrEventInvalidShape, "more than %d tags", maxTagCount)
	}
	for _, tag := range e.Tags {
		if len(tag) == 0 || tag.Key() == "" {
			return errorx.Withf(ErrEventInvalidShape, "tag without a name")
		}
		for _, value := range tag {
			if len(value) > maxTagValueLen {
				return errorx.Withf(ErrEventInvalidShape, "tag value exceeds %d bytes", maxTagValueLen)
			}
		}
	}
	drift := now.Sub(e.CreatedAt.Time())
	if drift > maxCreatedAtDrift || drift < -maxCreatedAtDrift {
		return errorx.Withf(ErrEventInvalidShape, "created_at %d is too far from relay time", e.CreatedAt)
	}

	return nil
}

func contentCeiling(kind Kind) int {
	if kind == nostr.KindProfileMetadata || kind == KindRegistrationRequest {
		return maxContentLenRegistration
	}

	return maxContentLen
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)

	return err == nil
}
