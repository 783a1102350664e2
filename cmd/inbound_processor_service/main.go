package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/maxnutrition/whatsapp-gateway/internal/platform/config"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/database"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/logger"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/messagebroker"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/redisclient"

	inboundapp "github.com/maxnutrition/whatsapp-gateway/internal/inbound_processor_service/app"
	flowredis "github.com/maxnutrition/whatsapp-gateway/internal/inbound_processor_service/repository/redis"
	msgapp "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/app"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/provider"
	msgpostgres "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository/postgres"
)

const serviceName = "inbound_processor_service"

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Starting service...")

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	nc, err := messagebroker.NewNATSClient(cfg.NATSUrl, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	redisClient, err := redisclient.New(mainCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		appLogger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	httpClient := &http.Client{Timeout: cfg.ProviderHTTPTimeout()}
	adapters := map[string]provider.Adapter{
		"whapi":     provider.NewWhapiProvider(appLogger, cfg.WhapiAPIURL, cfg.WhapiToken, cfg.WhapiChannelID, httpClient),
		"evolution": provider.NewEvolutionProvider(appLogger, cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance, httpClient),
	}

	deliveryLogRepo := msgpostgres.NewPgDeliveryLogRepository(dbPool, appLogger)
	wellnessRepo := msgpostgres.NewPgWellnessRepository(dbPool, appLogger)
	flowRepo := flowredis.NewRedisFlowRepository(redisClient, cfg.FlowTTL(), appLogger)

	dispatcher, err := msgapp.NewDispatcher(adapters, cfg.ProviderPriority, deliveryLogRepo, appLogger)
	if err != nil {
		appLogger.Error("Failed to build dispatcher", "error", err)
		os.Exit(1)
	}

	rawEventsChan := make(chan inboundapp.RawWebhookEvent, cfg.InboundProcessorChannelBufferSize)
	consumer := inboundapp.NewWebhookConsumer(nc, appLogger, rawEventsChan)
	processor := inboundapp.NewWebhookProcessor(adapters, flowRepo, wellnessRepo, dispatcher, appLogger)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return consumer.StartConsuming(groupCtx, "whatsapp.incoming.raw.*", cfg.InboundProcessorQueueGroup)
	})

	g.Go(func() error {
		processor.Start(groupCtx, rawEventsChan)
		return groupCtx.Err()
	})

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.InboundProcessorMetricsPort),
		Handler: promhttp.Handler(),
	}
	g.Go(func() error {
		appLogger.Info("Metrics server listening", "port", cfg.InboundProcessorMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return metricsServer.Shutdown(context.Background())
	})

	appLogger.Info("Service components initialized, ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info("Received termination signal", "signal", sig.String())
	case <-groupCtx.Done():
		appLogger.Error("A critical component failed, initiating shutdown")
	}

	mainCancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Error during graceful shutdown", "error", err)
	}
	appLogger.Info("Service shutdown complete")
}
