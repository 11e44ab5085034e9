// Command shardnode runs a reference backend shard: one process exposing
// internal/backend.Store over the HTTP wire protocol internal/shardclient
// speaks. It exists so the Operation Coordinator can be driven end-to-end
// against a real (if unpersisted) process, the way the teacher's node
// binary let the Torua coordinator be driven against a real key/value
// store. spec.md explicitly scopes production-grade shard backends out of
// this repository; this binary is the reference implementation a
// deployment's actual shards are expected to look like from the wire in.
//
// Configuration:
//   - SHARDNODE_LISTEN: listen address (default ":8090")
//
// Example usage:
//
//	SHARDNODE_LISTEN=:8090 ./shardnode
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/accesscoordinator/internal/backend"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	listen := getenv("SHARDNODE_LISTEN", ":8090")

	store := backend.New()

	mux := http.NewServeMux()
	backend.RegisterRoutes(mux, store, logger)

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("shard node listening", zap.String("addr", listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("shard node stopped")
}
