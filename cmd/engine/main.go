package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"lessonbook/internal/audit"
	"lessonbook/internal/calendar"
	"lessonbook/internal/config"
	"lessonbook/internal/events"
	"lessonbook/internal/idempotency"
	"lessonbook/internal/lock"
	"lessonbook/internal/metrics"
	"lessonbook/internal/notify"
	"lessonbook/internal/repository"
	"lessonbook/internal/service"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("LESSONBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Database.DSN == "" {
		logger.Fatal().Msg("set database.dsn in config")
	}

	database, err := repository.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database error")
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bookingRepo := repository.NewBookingRepository(database.DB)
	scheduleRepo := repository.NewScheduleRepository(database.DB)
	creditRepo := repository.NewCreditRepository(database.DB)
	calendarRepo := repository.NewCalendarRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)
	idemRepo := repository.NewIdempotencyRepository(database.DB)
	userRepo := repository.NewUserRepository(database.DB)

	var providers []calendar.Provider
	if cfg.Google.Enabled {
		google, err := calendar.NewGoogleProvider(ctx, cfg.Google.CredentialsPath, calendarRepo)
		if err != nil {
			logger.Fatal().Err(err).Msg("google calendar setup error")
		}
		providers = append(providers, google)
	}
	calendarSvc := calendar.NewService(providers, calendarRepo, &logger)

	refresher := calendar.NewRefresher(calendarSvc, calendarRepo, cfg.RefreshHorizon(), &logger)
	if len(providers) > 0 {
		if err := refresher.Start(ctx, cfg.Calendar.RefreshSchedule); err != nil {
			logger.Fatal().Err(err).Msg("calendar refresher setup error")
		}
		defer refresher.Stop()
	}

	var notifier notify.Notifier = notify.LogNotifier{Logger: &logger}
	if cfg.Telegram.Enabled {
		notifier, err = notify.NewTelegramNotifier(cfg.Telegram.BotToken, userRepo, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram setup error")
		}
	}
	dispatcher := notify.NewDispatcher(cfg.Notifications.MaxConcurrent, cfg.NotificationTimeout(), &logger)
	defer dispatcher.Wait()

	bus := events.NewBus(&logger)
	service.RegisterEffects(bus, dispatcher, notifier, calendarSvc, &logger)

	bookingSvc := service.NewBookingService(service.Deps{
		Bookings:      bookingRepo,
		TutorSchedule: scheduleRepo,
		Credits:       creditRepo,
		Calendar:      calendarSvc,
		Locker:        lock.NewCalendarLock(rdb, cfg.LockTTL()),
		Audit:         audit.NewRecorder(auditRepo, &logger),
		Events:        bus,
		Idempotency:   idempotency.NewService(idemRepo, &logger),
		Checkout:      service.StaticCheckout{BaseURL: cfg.Booking.CheckoutBaseURL},
		Logger:        &logger,
	})
	go bookingSvc.RunCompletionLoop(ctx, 5*time.Minute)

	auditSvc := audit.NewService(&audit.Config{
		RetentionDays: cfg.Audit.RetentionDays,
		ArchiveDir:    cfg.Audit.ArchiveDir,
		ExportOnStart: cfg.Audit.ExportOnStart,
	}, auditRepo, audit.NewExcelizeWriter, auditRepo, &logger)
	auditSvc.Start()
	defer auditSvc.Stop()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("booking engine started")
	<-ctx.Done()
	logger.Info().Msg("booking engine shutting down")
}

func startHealthServer(ctx context.Context, port int, database *repository.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(ctxPing).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
