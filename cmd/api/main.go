package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/raidsync/internal/api"
	"example.com/raidsync/internal/app"
	"example.com/raidsync/internal/auth"
	"example.com/raidsync/internal/authz"
	"example.com/raidsync/internal/commands"
	"example.com/raidsync/internal/config"
	"example.com/raidsync/internal/outbox"
	httptransport "example.com/raidsync/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stderr, "[raidsync-api] ", log.LstdFlags)

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

	exchanger := authz.NewOAuth2Exchanger(authz.ExchangerConfig{
		ClientID:     cfg.BungieClientID,
		ClientSecret: cfg.BungieClientSecret,
		AuthURL:      cfg.BungieAuthorizationURL,
		TokenURL:     cfg.BungieTokenURL,
		RedirectURL:  cfg.OAuthCallbackURL,
	}, &http.Client{Timeout: cfg.BungieHTTPTimeout})
	linker := authz.NewLinker(stores.Authorizations, exchanger,
		authz.NewStateCodec(cfg.JWTSecret, cfg.OAuthStateTTL), logger)
	gate := authz.NewGate(stores.Authorizations, exchanger,
		authz.WithRefreshTimeout(cfg.TokenRefreshTimeout),
		authz.WithLogger(logger),
	)

	registry := commands.NewRegistry(map[string]commands.Handler{
		commands.CommandAuthorize: commands.NewAuthorizeHandler(linker),
		commands.CommandRaidStats: commands.Gated(gate, commands.NewRaidStatsHandler(stores.Authorizations, stores.Users)),
	})

	var background sync.WaitGroup
	if stores.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		dispatcher := outbox.NewDispatcher(outbox.NewPostgresSource(stores.Pool), producer,
			cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithLogger(logger))
		go dispatcher.Start(ctx)
		defer dispatcher.Wait()
	} else {
		logger.Printf("store backend %s: outbox dispatcher disabled", cfg.StoreBackend)
	}

	handler := api.NewHandler(pipeline.Sync, pipeline.Manifest, registry, linker)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		authMiddleware.Wrap(httptransport.RequestLogger(logger, mux)))

	metricsServer := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
	background.Add(1)
	go func() {
		defer background.Done()
		if err := httptransport.Serve(ctx, metricsServer, 5*time.Second, logger); err != nil {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	if err := httptransport.Serve(ctx, server, 15*time.Second, logger); err != nil {
		logger.Printf("server error: %v", err)
		stop()
	}

	background.Wait()
	gate.Wait()
	logger.Println("shutdown complete")
}
