package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/prepbot/internal/bot"
	"github.com/example/prepbot/internal/config"
	"github.com/example/prepbot/internal/database"
	"github.com/example/prepbot/internal/quiz"
	"github.com/example/prepbot/internal/scheduler"
	"github.com/example/prepbot/internal/spaced_repetition"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the reminder job and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	cmd.Flags().String("metrics-addr", ":9090", "address of the Prometheus /metrics endpoint, empty to disable")
	cmd.Flags().String("reminder-cron", "", "cron expression for the reminder check (default hourly)")
	if err := v.BindPFlag(config.KeyMetricsAddr, cmd.Flags().Lookup("metrics-addr")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag(config.KeyReminderCron, cmd.Flags().Lookup("reminder-cron")); err != nil {
		panic(err)
	}
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, log, err := loadApp(v)
	if err != nil {
		return err
	}
	if cfg.TelegramToken == "" {
		return fail(log, "missing configuration", errors.New("TELEGRAM_BOT_TOKEN is not set"))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DBType, cfg.DatabaseURL)
	if err != nil {
		return fail(log, "failed to connect to database", err)
	}
	defer db.Close()
	log.Info("database ready", "type", cfg.DBType)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := newBotApp(cfg, log, db, reg)
	if err != nil {
		return err
	}
	api, b, reminders := app.api, app.bot, app.reminders

	if err := reminders.Start(); err != nil {
		return fail(log, "failed to start reminders", err)
	}
	defer reminders.Stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := api.GetUpdatesChan(updateConfig)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	log.Info("bot started, press Ctrl+C to stop")
	b.Run(ctx, updates)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error during metrics shutdown", "error", err)
		}
	}
	log.Info("bot stopped successfully")
	return nil
}


// botApp is the Telegram side of the application wired to the database
type botApp struct {
	api       *tgbotapi.BotAPI
	bot       *bot.Bot
	reminders *scheduler.Scheduler
}

func newBotApp(cfg *config.Config, log *slog.Logger, db *sqlx.DB, reg prometheus.Registerer) (*botApp, error) {
	records := database.NewReviewRecordRepository(db)
	items := database.NewItemRepository(db)
	users := database.NewUserRepository(db)

	model, err := spaced_repetition.NewSM2(cfg.SRS)
	if err != nil {
		return nil, fail(log, "invalid scheduling policy", err)
	}
	sched := spaced_repetition.NewScheduler(model, records, spaced_repetition.WithCatalog(items))

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fail(log, "unable to create bot", err)
	}
	log.Info("authorized on telegram", "account", api.Self.UserName)

	b, err := bot.New(bot.Config{
		DefaultItemsPerSession:  cfg.SessionSize,
		DefaultNotificationHour: cfg.DefaultReminderHour,
		SessionDuration:         cfg.SessionDuration,
		MaxItemsPerSession:      bot.DefaultConfig().MaxItemsPerSession,
		DailyTarget:             cfg.DailyTarget,
	}, bot.Deps{
		API:         api,
		Users:       users,
		Items:       items,
		Scheduler:   sched,
		Coordinator: spaced_repetition.NewCoordinator(sched),
		Questions:   quiz.NewBuilder(items, time.Now().UnixNano()),
		Metrics:     bot.NewMetrics(reg),
		Logger:      log,
	})
	if err != nil {
		return nil, fail(log, "failed to create bot", err)
	}

	reminders := scheduler.New(scheduler.Config{
		Cron:         cfg.ReminderCron,
		StartHour:    cfg.NotificationStartHour,
		EndHour:      cfg.NotificationEndHour,
		DefaultLimit: cfg.SessionSize,
	}, users, sched, b, log)

	return &botApp{api: api, bot: b, reminders: reminders}, nil
}
