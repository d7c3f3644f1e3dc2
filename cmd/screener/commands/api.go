package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradelens/screener/internal/api"
	"github.com/tradelens/screener/internal/api/handlers"
	"github.com/tradelens/screener/internal/screener"
	"github.com/tradelens/screener/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the HTTP API server",
	Long: `Start the REST API server.

Endpoints:
  GET  /health                       - Health check
  GET  /api/v1/screeners/{name}      - Run a named screen
  GET  /api/v1/metrics/latest        - Latest persisted metrics date
  GET  /api/v1/metrics/{symbol}      - One security's metrics row
  GET  /api/v1/breadth               - Breadth snapshot
  POST /api/v1/pipeline/calculate    - Trigger a calculation run
  GET  /api/v1/pipeline/progress     - Progress stream (websocket)

Example:
  go run ./cmd/screener api
  go run ./cmd/screener api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	cache := redis.NewCache(a.redis, "screener")
	screenEngine := screener.NewEngine(a.metricsStore, a.refs, a.sectorRepo, a.breadthRepo, cache, a.log)

	screenerHandler := handlers.NewScreenerHandler(screenEngine, a.log)
	metricsHandler := handlers.NewMetricsHandler(a.metricsStore, a.breadthRepo, a.log)
	pipelineHandler := handlers.NewPipelineHandler(a.engine, a.progress, a.log)

	router := api.NewRouter(screenerHandler, metricsHandler, pipelineHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
