// Command relayd runs the websocket relay that fans envelopes out between
// the devices of each household.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/relay"
)

func main() {
	var (
		addr  = flag.String("addr", ":8787", "listen address")
		token = flag.String("token", "", "shared token required from connecting devices")
		debug = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	level := log.LevelInfo
	if *debug {
		level = log.LevelDebug
	}

	config := relay.DefaultConfig()
	config.Addr = *addr
	config.Token = *token

	r := relay.NewRelay(config, log.New(level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	if err := r.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error starting relay:", err)
		os.Exit(1)
	}

	<-stopCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := r.Stop(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error stopping relay:", err)
	}
}
