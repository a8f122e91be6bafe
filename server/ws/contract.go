// SPDX-License-Identifier: MIT

package ws

import (
	"sync"

	"github.com/hearthside/relay/gate"
	"github.com/hearthside/relay/model"
	"github.com/hearthside/relay/ratelimit"
	"github.com/hearthside/relay/server/ws/internal"
	"github.com/hearthside/relay/server/ws/internal/adapters"
	"github.com/hearthside/relay/server/ws/internal/config"
)

type (
	Writer    = adapters.WSWriter
	Config    = config.Config
	Router    = internal.Router
	Server    = internal.Server
	WSHandler = internal.WSHandler
)

type (
	subscription struct {
		*model.Subscription
		SubscriptionID string
	}

	handler struct {
		auth           *gate.Gate
		limiter        *ratelimit.Limiter
		subListenersMx sync.Mutex
		subListeners   map[Writer]map[string]*subscription
	}
)

// Rate-limit key namespaces, address and author quotas never collide.
const (
	limitKeyAddr   = "addr:"
	limitKeyPubkey = "pubkey:"
)
