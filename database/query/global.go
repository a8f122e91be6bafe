package query

import (
	"context"
	"sync"

	"github.com/hearthside/relay/model"
)

// Config is the yaml shape consumed by the entrypoint. An empty Path keeps
// everything in memory.
type Config struct {
	Path string `yaml:"path" mapstructure:"path"`
}

var globalDB struct {
	Client *dbClient
	Once   sync.Once
}

func MustInit(url ...string) {
	target := ":memory:"

	if len(url) > 0 && url[0] != "" {
		target = url[0]
	}

	globalDB.Once.Do(func() {
		globalDB.Client = openDatabase(target, true)
	})
}

func AcceptEvent(ctx context.Context, event *model.Event) error {
	return globalDB.Client.AcceptEvent(ctx, event)
}

func GetStoredEvents(ctx context.Context, subscription *model.Subscription) EventIterator {
	return globalDB.Client.SelectEvents(ctx, subscription)
}

func CountEvents(ctx context.Context, subscription *model.Subscription) (int64, error) {
	return globalDB.Client.CountEvents(ctx, subscription)
}

func IsWhitelisted(ctx context.Context, pubkey string) (bool, error) {
	return globalDB.Client.IsWhitelisted(ctx, pubkey)
}

func GetWhitelistEntry(ctx context.Context, pubkey string) (*WhitelistEntry, error) {
	return globalDB.Client.GetWhitelistEntry(ctx, pubkey)
}

func UpsertWhitelistEntry(ctx context.Context, entry *WhitelistEntry) error {
	return globalDB.Client.UpsertWhitelistEntry(ctx, entry)
}

func DeleteWhitelistEntry(ctx context.Context, pubkey string) error {
	return globalDB.Client.DeleteWhitelistEntry(ctx, pubkey)
}

func ListWhitelistEntries(ctx context.Context, limit, offset int64) ([]*WhitelistedProfile, error) {
	return globalDB.Client.ListWhitelistEntries(ctx, limit, offset)
}

func Stats(ctx context.Context) (*RelayStats, error) {
	return globalDB.Client.Stats(ctx)
}
