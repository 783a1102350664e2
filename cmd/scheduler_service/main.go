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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/maxnutrition/whatsapp-gateway/internal/platform/config"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/database"
	"github.com/maxnutrition/whatsapp-gateway/internal/platform/logger"

	msgapp "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/app"
	msgdomain "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/provider"
	msgpostgres "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository/postgres"
	schedapp "github.com/maxnutrition/whatsapp-gateway/internal/scheduler_service/app"
	scheddomain "github.com/maxnutrition/whatsapp-gateway/internal/scheduler_service/domain"
)

const serviceName = "scheduler_service"

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

	location, err := cfg.Location()
	if err != nil {
		appLogger.Error("Invalid timezone configuration", "error", err)
		os.Exit(1)
	}

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

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

	weighingWeekday := time.Weekday(cfg.WeighingReminderWeekday)
	schedule := scheddomain.Schedule{
		Location: location,
		Throttle: cfg.ReminderThrottle(),
		Jobs: []scheddomain.JobSchedule{
			{
				Job:      msgdomain.ReminderJobWater,
				Hours:    cfg.WaterReminderHours,
				Cooldown: time.Duration(cfg.WaterReminderCooldownHours) * time.Hour,
			},
			{
				Job:      msgdomain.ReminderJobWeighing,
				Hours:    []int{cfg.WeighingReminderHour},
				Weekday:  &weighingWeekday,
				Cooldown: time.Duration(cfg.WeighingReminderCooldownHours) * time.Hour,
			},
			{
				Job:      msgdomain.ReminderJobGreeting,
				Hours:    []int{cfg.GreetingHour},
				Cooldown: 20 * time.Hour,
			},
			{
				Job:      msgdomain.ReminderJobCheckin,
				Hours:    []int{cfg.CheckinHour},
				Cooldown: 20 * time.Hour,
			},
			{
				Job:      msgdomain.ReminderJobSummary,
				Hours:    []int{cfg.SummaryHour},
				Cooldown: 20 * time.Hour,
			},
		},
	}

	scheduler := schedapp.NewReminderScheduler(
		wellnessRepo,
		dispatcher,
		schedule,
		time.Duration(cfg.SchedulerTickSeconds)*time.Second,
		appLogger,
	)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return scheduler.Run(groupCtx)
	})

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.SchedulerServiceMetricsPort),
		Handler: promhttp.Handler(),
	}
	g.Go(func() error {
		appLogger.Info("Metrics server listening", "port", cfg.SchedulerServiceMetricsPort)
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
