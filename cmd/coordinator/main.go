// Package main implements the access coordinator service: the single
// ingress point that dispatches identity and authorization operations
// across a partitioned fleet of backend shards, per spec.md.
//
// The coordinator is the control plane for the distributed
// authorization system, responsible for:
//   - Routing single-shard reads and writes to the owning shard (P1-P3)
//   - Fanning out cluster-wide operations and unioning/racing results (P4-P6)
//   - Resolving transitive group membership across shard boundaries
//   - Serving as the one place callers target regardless of topology
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│            Coordinator                   │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /users, /groups       - CRUD + query │
//	│    /*/has-access         - P6 authz     │
//	│    /*/accessible-*       - P6 authz     │
//	│    /admin/shards/refresh - reconfigure  │
//	│    /health                              │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    shardmgr.Manager   - client fleet    │
//	│    coordinator.Coordinator - dispatch   │
//	└─────────────────────────────────────────┘
//
// Configuration is a YAML (or JSON) file loaded with viper, shaped as:
//
//	listen: ":8080"
//	shards:
//	  - element: user
//	    op: event
//	    hash_range_start: 0
//	    description: "UserEventShard0"
//	    client:
//	      base_url: "http://localhost:9001"
//	      retry_count: 5
//	      retry_interval_seconds: 2
//
// Example usage:
//
//	coordinator serve --config topology.yaml
//	coordinator validate-config --config topology.yaml
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/dreamware/accesscoordinator/internal/coordinator"
	"github.com/dreamware/accesscoordinator/internal/metrics"
	"github.com/dreamware/accesscoordinator/internal/shardclient"
	"github.com/dreamware/accesscoordinator/internal/shardconfig"
	"github.com/dreamware/accesscoordinator/internal/shardmgr"
)

// withRequestID generates a correlation id for every inbound request,
// logs it, and attaches it to the request context so
// internal/shardclient forwards it as the X-Torua-Request-ID header on
// every shard call the Coordinator makes while handling it.
func withRequestID(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Torua-Request-ID", id)
		logger.Info("request received",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		ctx := shardclient.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Access coordinator: routes identity and authorization operations across shards",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the shard topology configuration file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newValidateConfigCmd(&configPath))
	return root
}

func newValidateConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the shard topology configuration without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, set, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: %d shards\n", set.Len())
			return nil
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the coordinator HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func clientFactory(cfg shardconfig.ClientConfig) (shardclient.Client, error) {
	return shardclient.NewClient(cfg)
}

func runServe(configPath string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	listen, set, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	mgr, err := shardmgr.New(set, clientFactory)
	if err != nil {
		return fmt.Errorf("building shard client manager: %w", err)
	}
	defer mgr.Close()

	// No stats reporter is wired in by default: the example corpus this
	// repository is grounded on does not carry a tally-compatible
	// reporter dependency. A real deployment supplies one here.
	scope, closer := tally.NewRootScope(tally.ScopeOptions{Reporter: tally.NullStatsReporter}, time.Second)
	defer closer.Close()

	coord := coordinator.New(mgr, metrics.New(scope), logger)

	mux := http.NewServeMux()
	registerCoordinatorRoutes(mux, coord, mgr, logger)

	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           withRequestID(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("coordinator listening", zap.String("addr", listen))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("coordinator stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
