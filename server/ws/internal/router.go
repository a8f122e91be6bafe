// SPDX-License-Identifier: MIT

package internal

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gookit/goutil/errorx"

	"github.com/hearthside/relay/server/ws/internal/adapters"

	"log"
)

// WithWS multiplexes the root endpoint: websocket upgrade requests go to the
// ws handler, everything else falls through to the plain http handler.
func WithWS(wsHandler WSHandler, httpHandler http.Handler) gin.HandlerFunc {
	return func(ginCtx *gin.Context) {
		if strings.EqualFold(ginCtx.Request.Header.Get("Upgrade"), "websocket") {
			server(ginCtx.Request.Context()).handleWebsocket(wsHandler, ginCtx.Writer, ginCtx.Request)

			return
		}
		if httpHandler != nil {
			httpHandler.ServeHTTP(ginCtx.Writer, ginCtx.Request)

			return
		}
		ginCtx.AbortWithStatus(http.StatusMethodNotAllowed)
	}
}

func server(ctx context.Context) *srv {
	return ctx.Value(adapters.CtxKeyServer).(*srv)
}

func (s *srv) handleWebsocket(wsHandler WSHandler, writer http.ResponseWriter, req *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(req, writer)
	if err != nil {
		log.Printf("ERROR:%v", errorx.Withf(err, "upgrading websocket failed"))
		writer.WriteHeader(http.StatusBadRequest)

		return
	}
	// The request context dies when this handler returns, the connection
	// must not.
	wsocket, ctx := adapters.NewWebSocketAdapter(context.WithoutCancel(req.Context()), conn, s.cfg.ReadTimeout, s.cfg.WriteTimeout)
	go func() {
		defer func() {
			if clErr := wsocket.Close(); clErr != nil {
				log.Printf("ERROR:%v", errorx.With(clErr, "failed to close websocket conn"))
			}
		}()
		go wsocket.Write(ctx)
		wsHandler.Read(ctx, wsocket)
	}()
}
