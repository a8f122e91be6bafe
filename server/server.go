// SPDX-License-Identifier: MIT

package server

import (
	"context"

	httpserver "github.com/hearthside/relay/server/http"
	wsserver "github.com/hearthside/relay/server/ws"
)

type (
	Config struct {
		wsserver.Config `yaml:",inline" mapstructure:",squash"`
		NIP11           httpserver.NIP11Config `yaml:"nip11" mapstructure:"nip11"`
		AdminPubkeys    []string               `yaml:"adminPubkeys" mapstructure:"adminPubkeys"`
	}
	router struct {
		cfg       *Config
		wsHandler wsserver.WSHandler
	}
)

func ListenAndServe(ctx context.Context, cancel context.CancelFunc, cfg *Config, wsHandler wsserver.WSHandler) {
	wsserver.New(&cfg.Config, &router{cfg: cfg, wsHandler: wsHandler}).ListenAndServe(ctx, cancel)
}

func (r *router) RegisterRoutes(routes *wsserver.Router) {
	routes.Any("/", wsserver.WithWS(r.wsHandler, httpserver.NewNIP11Handler(&r.cfg.NIP11)))

	admin := httpserver.NewAdminHandler()
	authorized := routes.Group("/admin", httpserver.WithAuth(httpserver.NewAuth(), r.cfg.AdminPubkeys))
	authorized.GET("/whitelist", admin.ListWhitelist())
	authorized.GET("/whitelist/:pubkey", admin.GetWhitelistEntry())
	authorized.PUT("/whitelist/:pubkey", admin.UpsertWhitelistEntry())
	authorized.DELETE("/whitelist/:pubkey", admin.DeleteWhitelistEntry())
	authorized.GET("/stats", admin.Stats())
}
