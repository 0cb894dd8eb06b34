package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/ts-console/internal/api"
	"github.com/technosupport/ts-console/internal/config"
	"github.com/technosupport/ts-console/internal/conn"
	"github.com/technosupport/ts-console/internal/engine"
	"github.com/technosupport/ts-console/internal/metrics"
	"github.com/technosupport/ts-console/internal/normalize"
	"github.com/technosupport/ts-console/internal/pull"
	"github.com/technosupport/ts-console/internal/registry"
	"github.com/technosupport/ts-console/internal/relay"
	"github.com/technosupport/ts-console/internal/store"
)

func main() {
	configPath := flag.String("config", "console.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if cfg.LogDebug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	met := metrics.New()
	st := store.New(cfg.StoreCapacity)
	reg := registry.New()
	norm := normalize.New()

	// Optional relay: sibling consoles consume the merged timeline.
	var sink engine.IncidentSink
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Fatalf("NATS connect error: %v", err)
		}
		defer nc.Close()
		sink = relay.NewPublisher(nc, cfg.NATSSubject, 3)
	}

	eng := engine.New(engine.Config{
		PullInterval: cfg.PullInterval,
	}, st, reg, norm, pull.NewClient(cfg.PullURL), met, sink)

	mgr := conn.NewManager(conn.Config{
		URL:       cfg.PushURL,
		BaseDelay: cfg.ReconnectBase,
		MaxDelay:  cfg.ReconnectCap,
		Handler:   eng.HandleFrame,
		OnStateChange: func(s conn.State) {
			met.ConnectionState.Set(float64(s))
			if s == conn.StateConnecting {
				met.Reconnects.Inc()
			}
		},
	})

	// Reload-safe config fields only; URLs require a restart.
	config.StartWatcher(ctx, *configPath, func(next config.Config) {
		eng.SetPullInterval(next.PullInterval)
	})

	go eng.Run(ctx)
	mgr.Open()

	handler := api.NewHandler(eng, mgr.State, met.Handler())
	srv := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: handler.Routes(),
	}

	go func() {
		log.Printf("Console API listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Teardown order: stop the push channel first so no frame races the
	// loop exit, then stop the loop, then the API.
	mgr.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] API shutdown: %v", err)
	}
}
