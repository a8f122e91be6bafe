// SPDX-License-Identifier: MIT

package model

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

type Event struct {
	nostr.Event
}

var (
	ErrInvalidID        = errors.New("event id does not match content hash")
	ErrInvalidSignature = errors.New("event signature is invalid")
)

// VerifyIdentity recomputes the canonical serialization digest and compares it
// against the declared id, then verifies the schnorr signature over that digest.
// It is the most expensive step of the pipeline and must run only after the
// cheap structural checks passed.
func (e *Event) VerifyIdentity() error {
	hash := sha256.Sum256(e.Serialize())
	if id := hex.EncodeToString(hash[:]); id != e.ID {
		return errors.Wrapf(ErrInvalidID, "declared %q, computed %q", e.ID, id)
	}
	ok, err := e.CheckSignature()
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if !ok {
		return ErrInvalidSignature
	}

	return nil
}

func (e *Event) GetTag(tagName string) Tag {
	for _, tag := range e.Tags {
		if tag.Key() == tagName {
			return tag
		}
	}

	return nil
}

// DTag returns the first value of the "d" tag, the scope key for
// parameterized-replaceable events. Empty when absent.
func (e *Event) DTag() string {
	if tag := e.GetTag("d"); len(tag) > 1 {
		return tag[1]
	}

	return ""
}
