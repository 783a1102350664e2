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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maxnutrition/whatsapp-gateway/internal/platform/config"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/database"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/logger"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/messagebroker"

	msgapp "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/app"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/provider"
	msgpostgres "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository/postgres"
	transporthttp "github.com/maxnutrition/whatsapp-gateway/internal/public_api_service/transport/http"
)

const serviceName = "public_api_service"

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

	httpClient := &http.Client{Timeout: cfg.ProviderHTTPTimeout()}
	adapters := map[string]provider.Adapter{
		"whapi":     provider.NewWhapiProvider(appLogger, cfg.WhapiAPIURL, cfg.WhapiToken, cfg.WhapiChannelID, httpClient),
		"evolution": provider.NewEvolutionProvider(appLogger, cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance, httpClient),
	}

	deliveryLogRepo := msgpostgres.NewPgDeliveryLogRepository(dbPool, appLogger)
	wellnessRepo := msgpostgres.NewPgWellnessRepository(dbPool, appLogger)

	dispatcher, err := msgapp.NewDispatcher(adapters, cfg.ProviderPriority, deliveryLogRepo, appLogger)
	if err != nil {
		appLogger.Error("Failed to build dispatcher", "error", err)
		os.Exit(1)
	}

	webhookHandler := transporthttp.NewWebhookHandler(nc, appLogger)
	notifyHandler := transporthttp.NewNotifyHandler(dispatcher, wellnessRepo, appLogger)
	router := transporthttp.NewRouter(webhookHandler, notifyHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.PublicAPIServicePort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "port", cfg.PublicAPIServicePort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
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
