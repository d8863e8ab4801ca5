// Package main is the entry point for the gridpulse detector service.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite store and the Redis device registry
//   - Build the anomaly engine with configured thresholds
//   - Consume telemetry samples from RabbitMQ and run them through the engine
//   - Serve the REST API, WebSocket findings stream, and Prometheus metrics
//   - Implement graceful shutdown with context cancellation
//
// Pipeline Flow:
//  1. RabbitMQ queue → sample decode/validate → anomaly engine
//  2. Engine findings → SQLite history, device registry, WebSocket fan-out
//  3. REST API exposes status, anomaly history, and device management
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gridpulse/gridpulse-detector/internal/broker"
	"github.com/gridpulse/gridpulse-detector/internal/config"
	"github.com/gridpulse/gridpulse-detector/internal/db"
	"github.com/gridpulse/gridpulse-detector/internal/detector"
	"github.com/gridpulse/gridpulse-detector/internal/logging"
	"github.com/gridpulse/gridpulse-detector/internal/registry"
	"github.com/gridpulse/gridpulse-detector/internal/server"
)

func main() {
	configPath := flag.String("config", "/etc/gridpulse/config.yaml", "path to config file")
	flag.Parse()

	ctx := context.Background()

	mgr, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)

	log, err := logging.NewLogger(&logging.Config{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := db.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close()

	reg := registry.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer reg.Close()

	engine := detector.NewEngine(detector.Config{
		HistoryCapacity:            cfg.Detector.HistoryCapacity,
		StatisticalFloor:           cfg.Detector.StatisticalFloor,
		ZScoreThreshold:            cfg.Detector.ZScoreThreshold,
		ZScoreHighThreshold:        cfg.Detector.ZScoreHighThreshold,
		IQRMultiplier:              cfg.Detector.IQRMultiplier,
		MinTrainingSize:            cfg.Detector.MinTrainingSize,
		RetrainInterval:            time.Duration(cfg.Detector.RetrainIntervalMin) * time.Minute,
		RelativeErrorThreshold:     cfg.Detector.RelativeError,
		RelativeErrorHighThreshold: cfg.Detector.RelativeErrorHigh,
	}, log)
	if cfg.DetectorConfigured() {
		log.Info("detector thresholds tuned from defaults")
	}

	srv, err := server.NewServer(&server.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, engine, store, reg, log)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	consumer, err := broker.NewConsumer(broker.Config{
		URL:        cfg.Broker.URL,
		Exchange:   cfg.Broker.Exchange,
		Queue:      cfg.Broker.Queue,
		RoutingKey: cfg.Broker.RoutingKey,
		Prefetch:   cfg.Broker.Prefetch,
	}, engine, log,
		broker.NewStoreSink(store, log),
		broker.NewRegistrySink(reg, log),
		srv.Hub(),
	)
	if err != nil {
		log.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer consumer.Close()

	if err := srv.Start(); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumer.Run(runCtx)
	}()

	log.Info("detector started",
		zap.Int("port", cfg.Server.Port),
		zap.String("queue", cfg.Broker.Queue))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("received shutdown signal")
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("broker consumer stopped", zap.Error(err))
		}
	}

	cancel()
	if err := srv.Stop(); err != nil {
		log.Warn("error stopping server", zap.Error(err))
	}

	log.Info("shutdown complete")
}
