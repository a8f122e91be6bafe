// SPDX-License-Identifier: MIT

// Package gate decides whether an event's author may write to the relay.
// Authorization is the union of a static allow-list, the storage-backed
// whitelist, and a narrow registration bypass for the kinds an unknown author
// must be able to publish before anyone can approve them.
package gate

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hearthside/relay/model"
)

// WhitelistLookup answers whether the pubkey currently has an unexpired
// whitelist entry. It is consulted live, so approvals take effect without a
// restart.
type WhitelistLookup func(ctx context.Context, pubkey string) (bool, error)

// Config is the yaml shape consumed by the entrypoint. An empty ExemptKinds
// means the default registration kinds.
type Config struct {
	AllowListPath string       `yaml:"allowListPath" mapstructure:"allowListPath"`
	ExemptKinds   []model.Kind `yaml:"exemptKinds" mapstructure:"exemptKinds"`
}

type Gate struct {
	lookup      WhitelistLookup
	staticMx    sync.RWMutex
	static      map[string]struct{}
	exemptKinds map[model.Kind]struct{}
}

var ErrNotAuthorized = errors.New("author is not whitelisted")

// New builds a gate from explicit inputs. Nothing is read from the ambient
// environment.
func New(staticPubkeys []string, exemptKinds []model.Kind, lookup WhitelistLookup) *Gate {
	g := &Gate{
		lookup:      lookup,
		static:      make(map[string]struct{}, len(staticPubkeys)),
		exemptKinds: make(map[model.Kind]struct{}, len(exemptKinds)),
	}
	for _, pubkey := range staticPubkeys {
		g.static[pubkey] = struct{}{}
	}
	for _, kind := range exemptKinds {
		g.exemptKinds[kind] = struct{}{}
	}

	return g
}

// IsAuthorized runs after structural validation and before the expensive
// signature check. The registration bypass is scoped strictly to the exempt
// kinds; everything else requires a whitelist hit.
func (g *Gate) IsAuthorized(ctx context.Context, pubkey string, kind model.Kind) error {
	if _, exempt := g.exemptKinds[kind]; exempt {
		return nil
	}

	g.staticMx.RLock()
	_, found := g.static[pubkey]
	g.staticMx.RUnlock()
	if found {
		return nil
	}

	if g.lookup != nil {
		whitelisted, err := g.lookup(ctx, pubkey)
		if err != nil {
			return errors.Wrapf(err, "failed to check dynamic whitelist for %q", pubkey)
		}
		if whitelisted {
			return nil
		}
	}

	return errors.Wrapf(ErrNotAuthorized, "pubkey %q, kind %d", pubkey, kind)
}

// ReplaceStatic swaps the static allow-list, used by the file watcher.
func (g *Gate) ReplaceStatic(pubkeys []string) {
	static := make(map[string]struct{}, len(pubkeys))
	for _, pubkey := range pubkeys {
		static[pubkey] = struct{}{}
	}

	g.staticMx.Lock()
	g.static = static
	g.staticMx.Unlock()
}

func (g *Gate) StaticSize() int {
	g.staticMx.RLock()
	defer g.staticMx.RUnlock()

	return len(g.static)
}
