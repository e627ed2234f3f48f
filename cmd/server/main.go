/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the SSN filing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment (.env) and parse command-line flags
  2. Initialize SQLite store, regulator client and rollup lock
  3. Create API handler with dependencies
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: $PORT or 8080)
  -db      SQLite database path (default: $DATABASE_PATH or ssn.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database and Redis connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ssn.db"

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  See config/config.go. SSN_BASE_URL, SSN_USERNAME, SSN_PASSWORD and
  SSN_CIA are required to reach the regulator.

SEE ALSO:
  - api/server.go: Router configuration
  - app/app.go: Service wiring
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/warp/ssn-filing/api"
	"github.com/warp/ssn-filing/app"
	"github.com/warp/ssn-filing/config"
)

func main() {
	cfg := config.Load()

	// Flags override the environment
	defaultPort, _ := strconv.Atoi(cfg.Port)
	port := flag.Int("port", defaultPort, "HTTP server port")
	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	flag.Parse()
	cfg.DatabasePath = *dbPath

	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize")
	}
	defer application.Close()

	router := api.NewRouter(api.NewHandler(application.Lifecycle, logger))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", *port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}

	logger.Info("server stopped")
}
