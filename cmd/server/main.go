// cmd/server is the main entrypoint for a store node: it loads
// configuration, hosts one dstore.Store, and serves both the REST and
// WebSocket front-ends concurrently until a shutdown signal arrives.
//
// Example:
//
//	./server -store-id S1 -root /r -home /r/a -rest-addr :8080 -ws-addr :8081
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dstore/internal/config"
	"dstore/internal/restapi"
	"dstore/internal/wsapi"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	manager := restapi.NewManager(log)
	defer manager.CloseAll()

	if err := manager.Create(cfg.StoreID, cfg.Root, cfg.Home, cfg.CacheSize); err != nil {
		log.WithError(err).Fatal("failed to create store")
	}

	restServer := &http.Server{
		Addr:         cfg.RESTAddr,
		Handler:      restapi.NewRouter(manager, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	wsServer := &http.Server{
		Addr:    cfg.WSAddr,
		Handler: wsapi.NewHandler(manager, log),
	}

	go serve(restServer, "rest", log)
	go serve(wsServer, "ws", log)

	log.WithFields(logrus.Fields{
		"store_id":  cfg.StoreID,
		"root":      cfg.Root,
		"home":      cfg.Home,
		"rest_addr": cfg.RESTAddr,
		"ws_addr":   cfg.WSAddr,
	}).Info("store node ready")

	waitForShutdown(log, restServer, wsServer)
}

func serve(server *http.Server, name string, log *logrus.Logger) {
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).WithField("server", name).Fatal("server stopped unexpectedly")
	}
}

func waitForShutdown(log *logrus.Logger, servers ...*http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}
}
