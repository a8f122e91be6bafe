// SPDX-License-Identifier: MIT

package main

import (
	"context"

	"github.com/gookit/goutil/errorx"
	"github.com/spf13/cobra"

	"github.com/hearthside/relay/cfg"
	"github.com/hearthside/relay/database/query"
	"github.com/hearthside/relay/gate"
	"github.com/hearthside/relay/model"
	"github.com/hearthside/relay/ratelimit"
	"github.com/hearthside/relay/server"
	wsserver "github.com/hearthside/relay/server/ws"

	"log"
)

var (
	configPath string
	port       int16
	cert       string
	key        string

	hearthside = &cobra.Command{
		Use:   "hearthside",
		Short: "whitelist-gated nostr relay",
		Run: func(_ *cobra.Command, _ []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			cfg.MustInit(configPath)

			query.MustInit(cfg.MustGet[query.Config]().Path)

			limiter := ratelimit.New(*cfg.MustGet[ratelimit.Config]())
			defer limiter.Close()

			auth := mustNewGate(ctx)

			wsserver.RegisterWSEventListener(func(ctx context.Context, event *model.Event) error {
				if err := query.AcceptEvent(ctx, event); err != nil {
					return errorx.Withf(err, "failed to query.AcceptEvent(%#v)", event)
				}

				return nil
			})
			wsserver.RegisterWSSubscriptionListener(query.GetStoredEvents)
			wsserver.RegisterWSCountListener(query.CountEvents)

			serverCfg := cfg.MustGet[server.Config]()
			if port != 0 {
				serverCfg.Port = uint16(port)
			}
			if cert != "" {
				serverCfg.CertPath = cert
			}
			if key != "" {
				serverCfg.KeyPath = key
			}
			server.ListenAndServe(ctx, cancel, serverCfg, wsserver.NewHandler(auth, limiter))
		},
	}

	initFlags = func() {
		hearthside.Flags().StringVar(&configPath, "config", "", "path to the application yaml")
		hearthside.Flags().StringVar(&cert, "cert", "", "path to tls certificate for the http/ws server (TLS)")
		hearthside.Flags().StringVar(&key, "key", "", "path to tls key for the http/ws server (TLS)")
		hearthside.Flags().Int16Var(&port, "port", 0, "port to communicate with clients (http/websocket)")
	}
)

func mustNewGate(ctx context.Context) *gate.Gate {
	gateCfg := cfg.MustGet[gate.Config]()
	exemptKinds := gateCfg.ExemptKinds
	if len(exemptKinds) == 0 {
		exemptKinds = model.RegistrationKinds()
	}

	var static []string
	if gateCfg.AllowListPath != "" {
		var err error
		if static, err = gate.LoadStaticAllowList(gateCfg.AllowListPath); err != nil {
			log.Panic(errorx.Withf(err, "failed to load static allow-list from %v", gateCfg.AllowListPath))
		}
	}

	auth := gate.New(static, exemptKinds, query.IsWhitelisted)
	if gateCfg.AllowListPath != "" {
		if err := auth.WatchStaticAllowList(ctx, gateCfg.AllowListPath); err != nil {
			log.Panic(errorx.Withf(err, "failed to watch static allow-list at %v", gateCfg.AllowListPath))
		}
	}

	return auth
}

func init() {
	initFlags()
}

func main() {
	if err := hearthside.Execute(); err != nil {
		log.Panic(err)
	}
}
