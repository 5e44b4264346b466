package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/raidsync/internal/app"
	"example.com/raidsync/internal/config"
	"example.com/raidsync/internal/consumer"
	httptransport "example.com/raidsync/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stderr, "[raidsync-worker] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open stores: %v", err)
	}
	defer stores.Close()

	pipeline, err := app.NewPipeline(cfg, stores.Users, logger)
	if err != nil {
		logger.Fatalf("failed to build sync pipeline: %v", err)
	}

	metricsServer := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if err := httptransport.Serve(ctx, metricsServer, 5*time.Second, logger); err != nil {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	reader := consumer.NewKafkaReader(cfg.KafkaBrokers, cfg.SyncRequestTopic, cfg.ConsumerGroupID)
	defer reader.Close()

	proc := consumer.NewProcessor(reader, consumer.NewSyncHandler(pipeline.Sync, logger), consumer.WithLogger(logger))

	logger.Printf("consumer started (topic=%s, group=%s)", cfg.SyncRequestTopic, cfg.ConsumerGroupID)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("consumer stopped with error: %v", err)
		stop()
	}

	<-metricsDone
	logger.Println("shutdown complete")
}
