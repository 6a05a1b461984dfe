// Package main is the entry point for the execution bridge service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitaliisemenov/execution-bridge/internal/api"
	"github.com/vitaliisemenov/execution-bridge/internal/batch"
	"github.com/vitaliisemenov/execution-bridge/internal/config"
	"github.com/vitaliisemenov/execution-bridge/internal/database"
	"github.com/vitaliisemenov/execution-bridge/internal/database/postgres"
	"github.com/vitaliisemenov/execution-bridge/internal/performance"
	"github.com/vitaliisemenov/execution-bridge/internal/poolmonitor"
	"github.com/vitaliisemenov/execution-bridge/internal/publish"
	"github.com/vitaliisemenov/execution-bridge/internal/security"
	"github.com/vitaliisemenov/execution-bridge/internal/store"
	"github.com/vitaliisemenov/execution-bridge/internal/tradeclient"
	"github.com/vitaliisemenov/execution-bridge/pkg/logger"
)

const serviceName = "execution-bridge"

func main() {
	var (
		configPath  = flag.String("config", "", "path to config.yaml")
		showVersion = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, cfg.App.Version)
		os.Exit(0)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(log)

	log.Info("starting execution bridge", "service", serviceName, "version", cfg.App.Version)

	ctx := context.Background()

	dbConfig := &postgres.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.Username,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConnections,
		MinConns:        cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}
	pool := postgres.NewPostgresPool(dbConfig, log)
	if err := pool.Connect(ctx); err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("connected to postgres")

	if err := database.RunMigrations(ctx, pool, log); err != nil {
		log.Error("failed to run database migrations", "error", err)
		log.Warn("continuing without migrations applied; manual intervention may be required")
	}

	executionStore := store.New(pool.Pool(), log)

	enricher, err := security.New(security.Config{
		BaseURL:    cfg.SecurityService.BaseURL,
		TTL:        cfg.SecurityService.TTL,
		MaxEntries: cfg.SecurityService.MaxEntries,
		Timeout:    cfg.SecurityService.Timeout,
	}, log)
	if err != nil {
		log.Error("failed to build security enricher", "error", err)
		os.Exit(1)
	}

	publisher, err := publish.New(publish.Config{
		Brokers:               cfg.Kafka.Brokers,
		DLQSuffix:             cfg.Kafka.DLQSuffix,
		EnableDeadLetterQueue: cfg.Kafka.EnableDeadLetterQueue,
		Retry: publish.RetryConfig{
			MaxAttempts:  cfg.Kafka.RetryMaxAttempts,
			InitialDelay: cfg.Kafka.RetryInitialDelay,
			MaxDelay:     cfg.Kafka.RetryMaxDelay,
			Multiplier:   cfg.Kafka.RetryMultiplier,
			Jitter:       cfg.Kafka.RetryJitter,
		},
		Breaker: publish.CircuitBreakerConfig{
			FailureThreshold: cfg.Kafka.BreakerThreshold,
			SuccessThreshold: cfg.Kafka.BreakerSuccessReset,
			Timeout:          cfg.Kafka.BreakerTimeout,
		},
	}, log)
	if err != nil {
		log.Error("failed to build kafka publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	tradeClient := tradeclient.New(tradeclient.Config{
		BaseURL:     cfg.TradeService.BaseURL,
		Timeout:     cfg.TradeService.Timeout,
		MaxAttempts: cfg.TradeService.MaxAttempts,
	}, log)

	fillApplier := batch.NewFillApplier(executionStore, tradeClient, log)

	optimizer := performance.New(performance.Config{
		MinBatchSize:     cfg.Performance.MinBatchSize,
		MaxBatchSize:     cfg.Performance.MaxBatchSize,
		InitialBatchSize: cfg.Performance.InitialBatchSize,
		WindowSize:       cfg.Performance.WindowSize,
		AdjustEvery:      cfg.Performance.AdjustEvery,
	})

	monitor := poolmonitor.New(pool.Pool(), cfg.Performance.PoolSampleEvery, log)
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go monitor.Run(monitorCtx)

	pipeline := batch.New(executionStore, publisher, enricher, optimizer, monitor, batch.Config{
		Topic:            cfg.Kafka.Topic,
		EnableAsyncKafka: cfg.Batch.EnableAsyncKafka,
	}, log)

	handlers := api.NewExecutionHandlers(executionStore, enricher, pipeline, fillApplier, optimizer, log)

	routerConfig := api.DefaultRouterConfig(log)
	routerConfig.Handlers = handlers
	routerConfig.PoolHealth = monitor
	router := api.NewRouter(routerConfig)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: metricsMux,
		}
		go func() {
			log.Info("metrics server starting", "addr", metricsServer.Addr, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed to start", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server forced to shutdown", "error", err)
		}
	}

	log.Info("server exited")
}
