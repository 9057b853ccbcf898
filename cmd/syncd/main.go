// Command syncd runs a sync engine instance for one household member and
// prints the event stream. Useful for exercising the transports locally;
// real applications embed the engine instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/adapter"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/conflict"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/engine"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/events/bus"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/identity"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/store"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/version"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML sync config")
		household  = flag.String("household", "household:demo", "household scope")
		user       = flag.String("user", "user:demo", "user id")
		name       = flag.String("name", "demo", "display name")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	level := log.LevelInfo
	if *debug {
		level = log.LevelDebug
	}
	logger := log.New(level)

	config := engine.DefaultConfig()
	if *configPath != "" {
		loaded, err := engine.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error loading config:", err)
			os.Exit(1)
		}
		config = loaded
	}

	id := identity.Static{User: *user, Name: *name, Household: *household}
	manager, err := buildManager(config, id, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building sync manager:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	if err := manager.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error starting sync manager:", err)
		os.Exit(1)
	}

	<-stopCh
	cancel()
	if err := manager.Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error stopping sync manager:", err)
	}
}

// buildManager assembles the engine by hand, mirroring the injector wiring.
func buildManager(config engine.Config, id identity.Static, logger log.Log) (*engine.Manager, error) {
	hub := adapter.NewBroadcastHub()
	adapters := map[string]adapter.SyncAdapter{
		"broadcast": adapter.NewBroadcastAdapter(hub, id.UserName(), logger),
		"local":     adapter.NewLocalAdapter(store.NewMemoryStore(), id.UserName(), logger),
		"backend":   adapter.NewBackendAdapter(id.UserName(), logger),
	}
	if config.EnableRealtime {
		adapters["realtime"] = adapter.NewRealtimeAdapter(config.Realtime, id.UserName(), logger)
	}

	events := bus.New(logger)
	events.Subscribe(bus.KindAll, func(e bus.Event) error {
		logger.Info("Sync event", log.String("kind", e.Kind), log.Any("data", e.Data))
		return nil
	})

	return engine.NewManager(
		config,
		adapters,
		id,
		version.NewTracker(logger),
		conflict.NewResolver(logger),
		events,
		logger,
	)
}
