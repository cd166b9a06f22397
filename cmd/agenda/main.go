package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"agenda/internal/access"
	"agenda/internal/api"
	"agenda/internal/audit"
	"agenda/internal/booking"
	"agenda/internal/cache"
	"agenda/internal/config"
	"agenda/internal/db"
	"agenda/internal/events"
	"agenda/internal/google"
	"agenda/internal/metrics"
	"agenda/internal/notify"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("AGENDA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid time zone")
	}

	database, err := db.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the schedule from file; rows edited through the API are kept.
	if sched, err := config.LoadScheduleConfig(cfg.ScheduleConfigPath); err != nil {
		logger.Error().Err(err).Msg("failed to load schedule config")
	} else {
		if err := database.SeedWorkingHours(ctx, sched.Week()); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed working hours")
		}
		if err := database.SeedSettings(ctx, sched.Settings()); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed settings")
		}
	}

	bookingSvc := booking.NewService(database, database, database, database, booking.Options{
		Location:   loc,
		MinAdvance: cfg.BookingMinAdvance(),
		MaxAdvance: cfg.BookingMaxAdvance(),
		MaxPeople:  cfg.MaxPeople(),
	}, logger)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		bookingSvc.SetCache(cache.NewAvailability(rdb, cfg.CacheTTL(), logger))
	}

	bus := events.NewBus(logger)
	bus.Subscribe(metrics.CountEvent)
	bookingSvc.SetPublisher(bus)

	if err := config.WatchSchedule(ctx, cfg.ScheduleConfigPath, 30*time.Second, func(updated *config.ScheduleConfig) {
		if updated == nil {
			return
		}
		if err := bookingSvc.UpdateSchedule(ctx, updated.Week()); err != nil {
			logger.Error().Err(err).Msg("failed to reapply working hours")
			return
		}
		if err := bookingSvc.UpdateSettings(ctx, updated.Settings()); err != nil {
			logger.Error().Err(err).Msg("failed to reapply settings")
			return
		}
		logger.Info().Time("reloaded_at", time.Now()).Msg("schedule config reloaded")
	}); err != nil {
		logger.Error().Err(err).Msg("schedule watch failed")
	}

	accessSvc := access.NewService(database, database, logger)
	if err := accessSvc.SeedAdmins(ctx, cfg.Admins); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed admins")
	}

	if cfg.Telegram.Enabled {
		startNotifier(ctx, cfg, loc, bus, bookingSvc, &logger)
	}
	if cfg.Google.Enabled {
		startSheetsMirror(ctx, cfg, loc, bus, &logger)
	}

	exporter := audit.NewExporter(database, loc, logger)
	if cfg.Audit.Enabled {
		job := audit.NewMonthlyJob(exporter, database, cfg.Audit.ExportPath, cfg.AuditRetention(), logger)
		go job.Run(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		go startBackupLoop(ctx, database, cfg, &logger)
	}

	perSecond, burst := cfg.RateLimit()
	server := api.NewServer(bookingSvc, accessSvc, exporter, api.Config{
		AdminAPIKey:    cfg.HTTP.AdminAPIKey,
		RatePerSecond:  perSecond,
		RateBurst:      burst,
		RequestTimeout: cfg.RequestTimeout(),
		TrustProxy:     cfg.HTTP.TrustProxy,
	}, logger)
	go server.PruneLimiter(ctx)

	if cfg.HTTP.AdminAPIKey == "" {
		logger.Warn().Msg("http.admin_api_key is empty, admin routes are disabled")
	}

	logger.Info().Str("address", cfg.HTTP.Address).Str("timezone", loc.String()).Msg("agenda started")
	serve(ctx, &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}, "api", &logger)
}

func startNotifier(ctx context.Context, cfg *config.Config, loc *time.Location, bus *events.Bus, days notify.DaySource, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken == "" {
		logger.Error().Msg("telegram.enabled is set but telegram.bot_token is empty")
		return
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("create telegram bot error")
		return
	}

	notifier := notify.NewNotifier(bot, notify.Config{
		ChatIDs:       cfg.Telegram.OwnerChatIDs,
		RatePerSecond: cfg.Telegram.RatePerSecond,
		Location:      loc,
	}, *logger)
	bus.Subscribe(notifier.HandleEvent, notify.EventTypes...)
	go notifier.Run(ctx)
	go notifier.RunDigest(ctx, days, cfg.Telegram.DigestHour)

	logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(cfg.Telegram.OwnerChatIDs)).Msg("telegram notifications enabled")
}

func startSheetsMirror(ctx context.Context, cfg *config.Config, loc *time.Location, bus *events.Bus, logger *zerolog.Logger) {
	mirror, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.SheetName, loc, *logger)
	if err != nil {
		logger.Error().Err(err).Msg("google sheets disabled")
		return
	}
	if err := mirror.Init(ctx); err != nil {
		logger.Error().Err(err).Msg("google sheets init failed")
		return
	}
	bus.Subscribe(mirror.HandleEvent)
	go mirror.Run(ctx)
	logger.Info().Str("spreadsheet", cfg.Google.SpreadsheetID).Msg("google sheets mirror enabled")
}

func startBackupLoop(ctx context.Context, database *db.DB, cfg *config.Config, logger *zerolog.Logger) {
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "backups"
	}
	if cfg.Backup.IntervalHours <= 0 {
		cfg.Backup.IntervalHours = 24
	}
	if cfg.Backup.RetentionDays <= 0 {
		cfg.Backup.RetentionDays = 14
	}

	if err := os.MkdirAll(cfg.Backup.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create backup directory")
		return
	}

	// Run first backup after a short delay
	select {
	case <-time.After(1 * time.Minute):
	case <-ctx.Done():
		return
	}

	database.BackupLoop(ctx, cfg.Backup.Path,
		time.Duration(cfg.Backup.IntervalHours)*time.Hour,
		time.Duration(cfg.Backup.RetentionDays)*24*time.Hour)
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
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
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "metrics", logger)
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, name string, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
