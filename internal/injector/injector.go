//go:build wireinject
// +build wireinject

// The build tag keeps the stubs out of the final build; `wire` generates the
// real initializers from them.

package injector

import (
	"github.com/google/wire"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/adapter"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/conflict"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/engine"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/events/bus"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/identity"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/store"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/version"
)

func provideLogger() log.Log {
	return log.New(log.LevelInfo)
}

func provideAdapters(config engine.Config, id identity.Provider, recordStore store.RecordStore, hub *adapter.BroadcastHub, logger log.Log) map[string]adapter.SyncAdapter {
	adapters := map[string]adapter.SyncAdapter{
		"broadcast": adapter.NewBroadcastAdapter(hub, id.UserName(), logger),
		"local":     adapter.NewLocalAdapter(recordStore, id.UserName(), logger),
		"backend":   adapter.NewBackendAdapter(id.UserName(), logger),
	}
	if config.EnableRealtime {
		adapters["realtime"] = adapter.NewRealtimeAdapter(config.Realtime, id.UserName(), logger)
	}
	return adapters
}

var engineSet = wire.NewSet(
	provideLogger,
	provideAdapters,
	adapter.NewBroadcastHub,
	store.NewMemoryStore,
	wire.Bind(new(store.RecordStore), new(*store.MemoryStore)),
	version.NewTracker,
	conflict.NewResolver,
	bus.New,
	engine.NewManager,
)

// ProvideManager assembles a fully wired sync manager for one identity.
func ProvideManager(config engine.Config, id identity.Provider) (*engine.Manager, error) {
	wire.Build(engineSet)
	return nil, nil
}
