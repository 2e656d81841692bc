package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"parking-display-backend/config"
	"parking-display-backend/internal/api"
	"parking-display-backend/internal/db"
	"parking-display-backend/internal/dispatch"
	"parking-display-backend/internal/engine"
	"parking-display-backend/internal/ingest"
	"parking-display-backend/internal/ledger"
	"parking-display-backend/internal/metrics"
	"parking-display-backend/internal/policy"
	"parking-display-backend/internal/queue"
)

func main() {
	logger := log.New(os.Stdout, "parking-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Gateway.URL == "" {
		logger.Fatalf("gateway.url must be configured: the dispatch worker needs a network server to send downlinks through")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queueMetrics := metrics.NewQueueMetrics(prometheus.DefaultRegisterer)
	downlinkQueue := queue.New(gormDB, queue.Config{
		MaxAttempts:           cfg.Queue.MaxAttempts,
		BackoffBase:           cfg.Queue.BackoffBase,
		BackoffCap:            cfg.Queue.BackoffCap,
		GatewaySendsPerMinute: cfg.Queue.GatewaySendsPerMinute,
		GatewayBurst:          cfg.Queue.GatewayBurst,
	}, queueMetrics)

	reservationLedger := ledger.New(gormDB)
	policyStore := policy.NewStore(gormDB)
	recomputer := engine.NewRecomputer(gormDB, reservationLedger, policyStore, downlinkQueue)
	intake := ingest.NewService(gormDB, recomputer)

	sender := dispatch.NewHTTPSender(cfg.Gateway.URL, cfg.Gateway.Headers, cfg.Dispatch.SendTimeout)
	worker := dispatch.NewWorker(downlinkQueue, sender, dispatch.Config{
		Interval:    cfg.Dispatch.Interval,
		SendTimeout: cfg.Dispatch.SendTimeout,
		PoolSize:    cfg.Dispatch.PoolSize,
		BatchSize:   cfg.Dispatch.BatchSize,
	})
	go worker.Run(ctx)

	handler := api.NewHandler(gormDB, reservationLedger, intake, recomputer, downlinkQueue, policyStore)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
