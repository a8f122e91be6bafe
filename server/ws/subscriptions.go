// SPDX-License-Identifier: MIT

package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gookit/goutil/errorx"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"

	"github.com/hearthside/relay/gate"
	"github.com/hearthside/relay/model"

	"log"
)

// handleEvent is the publish pipeline. Checks run cheapest-first: the address
// quota and structural shape before any whitelist lookup, the signature only
// for authors that are allowed to write at all. Exactly one OK per event is
// written by the caller, the returned error becomes its reason.
func (h *handler) handleEvent(ctx context.Context, event *model.Event, addr string) error {
	if h.limiter != nil && !h.limiter.CheckEventLimit(limitKeyAddr+addr) {
		return errorx.Errorf("rate-limited: too many events from this address")
	}
	if err := event.Validate(time.Now()); err != nil {
		return errorx.Withf(err, "invalid: malformed event")
	}
	if h.auth != nil {
		if err := h.auth.IsAuthorized(ctx, event.PubKey, event.Kind); err != nil {
			if errors.Is(err, gate.ErrNotAuthorized) {
				return errorx.Withf(err, "blocked: author is not whitelisted")
			}

			return errorx.Withf(err, "error: failed to check authorization")
		}
	}
	if err := event.VerifyIdentity(); err != nil {
		return errorx.Withf(err, "invalid: bad id or signature")
	}
	if h.limiter != nil && !h.limiter.CheckEventLimit(limitKeyPubkey+event.PubKey) {
		return errorx.Errorf("rate-limited: too many events from this author")
	}

	if wsEventListener == nil {
		log.Panic(errorx.Errorf("wsEventListener to store events not set"))
	}
	if saveErr := wsEventListener(ctx, event); saveErr != nil {
		switch {
		case errors.Is(saveErr, model.ErrDuplicate), errors.Is(saveErr, model.ErrSuperseded):
			// Accepted but already known (or obsolete), nothing to broadcast.
			return nil
		default:
			return errorx.Withf(saveErr, "error: failed to store event")
		}
	}

	if err := h.notifyListenersAboutNewEvent(event); err != nil {
		log.Printf("ERROR:%v", errorx.Withf(err, "failed to notify subscribers about new event %v", event.ID))
	}

	return nil
}

func (h *handler) handleReq(ctx context.Context, respWriter Writer, sub *subscription) error {
	if wsSubscriptionListener != nil {
		var mErr *multierror.Error
		for event, err := range wsSubscriptionListener(ctx, sub.Subscription) {
			if err != nil {
				return errorx.Withf(err, "failed to query events for subscription req %+v", sub)
			}
			mErr = multierror.Append(mErr, h.writeResponse(respWriter, &nostr.EventEnvelope{SubscriptionID: &sub.SubscriptionID, Event: event.Event}))
		}
		if mErr.ErrorOrNil() != nil {
			return errorx.Withf(mErr, "failed to write events for subscription %+v", sub)
		}
	} else {
		log.Printf("WARN: RegisterWSSubscriptionListener not registered, ignoring query part")
	}

	eos := nostr.EOSEEnvelope(sub.SubscriptionID)
	err := h.writeResponse(respWriter, &eos)

	h.subListenersMx.Lock()
	defer h.subListenersMx.Unlock()
	subsFromCurrConnection, ok := h.subListeners[respWriter]
	if !ok {
		subsFromCurrConnection = make(map[string]*subscription)
		if h.subListeners == nil {
			h.subListeners = make(map[Writer]map[string]*subscription)
		}
		h.subListeners[respWriter] = subsFromCurrConnection
	}
	subsFromCurrConnection[sub.SubscriptionID] = sub

	return err
}

func (h *handler) handleCount(ctx context.Context, envelope *model.CountEnvelope) error {
	if wsCountListener == nil {
		return errorx.Errorf("counting is not supported")
	}
	count, err := wsCountListener(ctx, &model.Subscription{Filters: envelope.Filters})
	if err != nil {
		return errorx.Withf(err, "failed to count events for %+v", envelope)
	}
	envelope.Count = &count

	return nil
}

func (h *handler) notifyListenersAboutNewEvent(ev *model.Event) error {
	h.subListenersMx.Lock()
	defer h.subListenersMx.Unlock()

	var err *multierror.Error
	for writer, subs := range h.subListeners {
		for _, sub := range subs {
			if sub.Filters.Match(&ev.Event) {
				err = multierror.Append(
					err,
					h.writeResponse(writer, &nostr.EventEnvelope{SubscriptionID: &sub.SubscriptionID, Event: ev.Event}),
				)
			}
		}
	}

	return err.ErrorOrNil()
}

func (h *handler) CancelSubscription(_ context.Context, respWriter Writer, subID *string) error {
	h.subListenersMx.Lock()
	defer h.subListenersMx.Unlock()
	if subs, found := h.subListeners[respWriter]; found {
		if subID == nil {
			delete(h.subListeners, respWriter)
		} else {
			delete(subs, *subID)
			if len(subs) == 0 {
				delete(h.subListeners, respWriter)
			}
			if err := h.writeResponse(respWriter, &nostr.ClosedEnvelope{SubscriptionID: *subID, Reason: ""}); err != nil {
				return errorx.Withf(err, "failed to write CLOSED message")
			}
		}
	}

	return nil
}
