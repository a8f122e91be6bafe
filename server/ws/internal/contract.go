// SPDX-License-Identifier: MIT

package internal

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/hearthside/relay/server/ws/internal/adapters"
	"github.com/hearthside/relay/server/ws/internal/config"
)

type (
	Router = gin.Engine
	Server interface {
		// ListenAndServe starts everything and blocks until ctx is done or a
		// termination signal arrives.
		ListenAndServe(ctx context.Context, cancel context.CancelFunc)
	}
	RegisterRoutes interface {
		RegisterRoutes(router *Router)
	}

	WSHandler = adapters.WSHandler
	WS        = adapters.WS
)

type (
	srv struct {
		server      *http.Server
		router      *Router
		cfg         *config.Config
		quit        chan<- os.Signal
		routesSetup RegisterRoutes
	}
)
