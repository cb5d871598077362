//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Command flowmesh runs the workflow runtime as an HTTP server with the
// builtin node catalog.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowmesh/flowmesh/engine"
	"github.com/flowmesh/flowmesh/event"
	"github.com/flowmesh/flowmesh/log"
	_ "github.com/flowmesh/flowmesh/node/builtin"
	"github.com/flowmesh/flowmesh/registry"
	"github.com/flowmesh/flowmesh/server"
	"github.com/flowmesh/flowmesh/ws"
)

func main() {
	addr := flag.String("addr", ":3013", "listen address")
	timeout := flag.Duration("execution-timeout", 5*time.Minute, "per-execution deadline, 0 disables")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel("debug")
	}

	reg := registry.New()
	count, err := reg.DiscoverFromPackages()
	if err != nil {
		log.Fatalf("registering nodes: %v", err)
	}
	log.Infof("registered %d nodes", count)

	bus := event.NewBus()
	eng, err := engine.New(reg,
		engine.WithBus(bus),
		engine.WithTimeout(*timeout),
	)
	if err != nil {
		log.Fatalf("creating engine: %v", err)
	}
	defer eng.Close()

	hub := ws.NewHub()
	hub.Attach(bus)
	defer hub.Close()

	srv := server.New(eng, reg, server.WithHub(hub))
	httpServer := &http.Server{
		Addr:    *addr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Infof("listening on %s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
