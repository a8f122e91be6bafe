// SPDX-License-Identifier: MIT

package ws

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"

	"github.com/hearthside/relay/database/query"
	"github.com/hearthside/relay/gate"
	"github.com/hearthside/relay/model"
	"github.com/hearthside/relay/ratelimit"
	"github.com/hearthside/relay/server/ws/internal"

	"log"
)

type (
	EventGetter  func(context.Context, *model.Subscription) query.EventIterator
	EventCounter func(context.Context, *model.Subscription) (int64, error)
)

var (
	wsEventListener        func(context.Context, *model.Event) error
	wsSubscriptionListener EventGetter
	wsCountListener        EventCounter
)

func RegisterWSEventListener(listen func(context.Context, *model.Event) error) {
	wsEventListener = listen
}

func RegisterWSSubscriptionListener(listen EventGetter) {
	wsSubscriptionListener = listen
}

func RegisterWSCountListener(listen EventCounter) {
	wsCountListener = listen
}

func NewHandler(auth *gate.Gate, limiter *ratelimit.Limiter) WSHandler {
	return &handler{auth: auth, limiter: limiter}
}

func New(cfg *Config, routes internal.RegisterRoutes) Server {
	return internal.NewWSServer(routes, cfg)
}

func WithWS(wsHandler WSHandler, httpHandler http.Handler) gin.HandlerFunc {
	return internal.WithWS(wsHandler, httpHandler)
}

func (h *handler) Read(ctx context.Context, stream internal.WS) {
	addr := remoteHost(stream.RemoteAddr())
	if h.limiter != nil && !h.limiter.TrackConnection(addr) {
		notice := nostr.NoticeEnvelope("rate-limited: too many concurrent connections")
		if err := h.writeResponse(stream, &notice); err != nil {
			log.Printf("ERROR:%v", errors.Wrap(err, "failed to write rate-limit notice"))
		}

		return
	}
	defer func() {
		if h.limiter != nil {
			h.limiter.ReleaseConnection(addr)
		}
	}()

	for {
		t, msgBytes, err := stream.ReadMessage()
		if err != nil {
			closed := new(wsutil.ClosedError)
			if errors.As(err, closed) {
				if closed.Code != ws.StatusNormalClosure &&
					closed.Code != ws.StatusGoingAway &&
					closed.Code != ws.StatusAbnormalClosure &&
					closed.Code != ws.StatusNoStatusRcvd {
					log.Printf("WARN: unexpected close code %v", closed.Code)
				}
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("WARN: unexpected read error: %v", err)
			}

			break
		}
		if len(msgBytes) > 0 && ws.OpCode(t) == ws.OpText {
			h.Handle(ctx, stream, msgBytes, addr)
		}
	}
	if err := h.CancelSubscription(ctx, stream, nil); err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "failed to cancel subscriptions opened on closing conn"))
	}
}

func (h *handler) Handle(ctx context.Context, respWriter Writer, msgBytes []byte, addr string) {
	input, err := model.ParseMessage(msgBytes)
	if err != nil {
		notice := nostr.NoticeEnvelope(err.Error())
		log.Printf("ERROR:%v", multierror.Append(err, h.writeResponse(respWriter, &notice)).ErrorOrNil())

		return
	}

	switch e := input.(type) {
	case *nostr.EventEnvelope:
		err = h.handleEvent(ctx, &model.Event{Event: e.Event}, addr)
		resp := &nostr.OKEnvelope{
			EventID: e.Event.ID,
			OK:      true,
		}
		if err != nil {
			log.Printf("ERROR: failed to handle event %v: %v", e.Event.ID, err)
			resp.OK = false
			resp.Reason = err.Error()
		}
		if wErr := h.writeResponse(respWriter, resp); wErr != nil {
			log.Printf("ERROR: write event response for %v: %v", e.Event.ID, wErr)
		}

		return
	case *model.ReqEnvelope:
		err = h.handleReq(ctx, respWriter, &subscription{
			Subscription:   &model.Subscription{Filters: e.Filters},
			SubscriptionID: e.SubscriptionID,
		})
	case *model.CountEnvelope:
		if err = h.handleCount(ctx, e); err != nil {
			closedEnvelope := nostr.ClosedEnvelope{
				SubscriptionID: e.SubscriptionID,
				Reason:         err.Error(),
			}
			err = h.writeResponse(respWriter, &closedEnvelope)
		} else {
			err = h.writeResponse(respWriter, e)
		}
	case *nostr.CloseEnvelope:
		subID := string(*e)
		err = h.CancelSubscription(ctx, respWriter, &subID)
	default:
		err = errors.Errorf("unknown message type %v", input.Label())
	}

	if err != nil {
		err = errors.Wrapf(err, "failed to handle %v", input.Label())
		notice := nostr.NoticeEnvelope(err.Error())
		log.Printf("ERROR:%v", multierror.Append(err, h.writeResponse(respWriter, &notice)).ErrorOrNil())
	}
}

func (h *handler) writeResponse(respWriter Writer, envelope nostr.Envelope) error {
	b, err := envelope.MarshalJSON()
	if err != nil {
		return errors.Wrapf(err, "failed to serialize %+v into json", envelope)
	}

	return respWriter.WriteMessage(int(ws.OpText), b)
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}

	return host
}
