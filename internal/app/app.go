// Package app wires the calendar service, the reminder pipeline, the sync
// engine and the outer surfaces into one process.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hray3182/calendard/internal/api"
	"github.com/hray3182/calendard/internal/bot"
	"github.com/hray3182/calendard/internal/bot/handlers"
	"github.com/hray3182/calendard/internal/calendar"
	"github.com/hray3182/calendard/internal/config"
	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/metrics"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/notify"
	"github.com/hray3182/calendard/internal/reminder"
	"github.com/hray3182/calendard/internal/remote"
	"github.com/hray3182/calendard/internal/repository"
	"github.com/hray3182/calendard/internal/scheduler"
	"github.com/hray3182/calendard/internal/syncer"
	"github.com/hray3182/calendard/internal/trigger"
)

type App struct {
	cfg         *config.Config
	manager     *sql.DB
	calendar    *calendar.Service
	timers      *trigger.Timers
	triggers    *trigger.Scheduler
	deriver     *reminder.Deriver
	dispatcher  *notify.Dispatcher
	scheduler   *scheduler.Scheduler
	coordinator *syncer.Coordinator
	bot         *bot.Bot
	api         *api.Server
	closers     []func()
}

// New opens the stores and builds every component. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	manager, err := database.OpenSQLite(ctx, filepath.Join(cfg.DataDir, "manager.db"), database.SchemaManager)
	if err != nil {
		return fmt.Errorf("failed to open manager store: %w", err)
	}
	a.manager = manager
	a.closers = append(a.closers, func() { manager.Close() })
	log.Println("Manager store ready")

	a.calendar = calendar.NewService(manager, cfg.DataDir, cfg.Locale)
	a.closers = append(a.closers, func() { a.calendar.Close() })

	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		metricsHandler = promhttp.Handler()
		log.Println("Metrics enabled")
	}

	a.timers = trigger.NewTimers(repository.NewTriggerDefinitionRepository(manager))
	a.triggers = trigger.NewScheduler(a.timers, sink)
	a.deriver = reminder.NewDeriver(a.triggers, cfg.RemindInterval, sink)

	// Left nil without a backend so that every consumer sees a nil interface.
	var syncs scheduler.SyncRequester
	if cfg.RemoteBackend != "" {
		rs, err := a.openRemote(ctx)
		if err != nil {
			return err
		}
		workDir := filepath.Join(cfg.DataDir, "sync")
		if err := os.MkdirAll(workDir, 0o700); err != nil {
			return fmt.Errorf("failed to create sync dir: %w", err)
		}
		engine := syncer.NewEngine(a.calendar, rs, workDir, sink)
		a.coordinator = syncer.NewCoordinator(engine, cfg.SyncDebounce)
		a.closers = append(a.closers, a.coordinator.Stop)
		syncs = a.coordinator
		log.Printf("Remote backend %s configured", cfg.RemoteBackend)
	}

	var botAPI *tgbotapi.BotAPI
	var notifier notify.Notifier = &logNotifier{}
	if cfg.TelegramToken != "" {
		botAPI, err = bot.NewAPI(cfg.TelegramToken)
		if err != nil {
			return err
		}
		notifier = bot.NewNotifier(botAPI, cfg.TelegramChatID)
	} else {
		log.Println("Telegram not configured, reminders are logged only")
	}

	rederive := &rederiver{}
	a.dispatcher = notify.NewDispatcher(notifyStores{a.calendar}, notifier, a.triggers, rederive, sink)
	a.scheduler = scheduler.New(schedulerAccounts{a.calendar}, a.deriver, a.triggers, a.dispatcher, syncs,
		cfg.RemindInterval, cfg.UploadInterval)
	rederive.sched = a.scheduler

	a.timers.SetHandler(a.scheduler.HandleTrigger)
	a.calendar.SetListener(a.scheduler)

	if botAPI != nil {
		h := handlers.New(botAPI, cfg.TelegramChatID, a.calendar, a.dispatcher, syncs, cfg.Location())
		a.bot = bot.New(botAPI, h)
	}

	if _, err := a.calendar.EnsureDefaultAccount(ctx); err != nil {
		return fmt.Errorf("failed to create default account: %w", err)
	}
	if cfg.RemoteBackend != "" {
		_, err := a.calendar.EnsureAccount(ctx, &models.Account{
			AccountID:        cfg.NetworkAccountID,
			Name:             "Network",
			Type:             models.AccountNetwork,
			SyncEnabled:      true,
			Direction:        models.SyncBoth,
			DownloadInterval: cfg.DownloadInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to create network account: %w", err)
		}
	}

	a.api = api.NewServer(a.calendar, syncs, metricsHandler, cfg.Location())
	return nil
}

func (a *App) openRemote(ctx context.Context) (remote.Store, error) {
	switch a.cfg.RemoteBackend {
	case "s3":
		return remote.NewS3Store(ctx, remote.S3Config{
			Region:    a.cfg.S3Region,
			Endpoint:  a.cfg.S3Endpoint,
			Bucket:    a.cfg.S3Bucket,
			AccessKey: a.cfg.S3AccessKey,
			SecretKey: a.cfg.S3SecretKey,
		})
	case "postgres":
		db, err := database.New(ctx, a.cfg.RemoteDatabaseURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Println("Remote database migrations completed")
		return remote.NewPostgresStore(db), nil
	}
	return nil, fmt.Errorf("unknown remote backend %q", a.cfg.RemoteBackend)
}

// Run starts every component and blocks until ctx is canceled or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	run("trigger facility", a.timers.Run)
	run("http api", func(ctx context.Context) error {
		return a.api.Run(ctx, a.cfg.HTTPAddr)
	})
	if a.bot != nil {
		run("bot", a.bot.Start)
	}
	if a.coordinator != nil {
		changes, unsubscribe := a.coordinator.Subscribe()
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.followSync(ctx, changes)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Start(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Printf("Shutting down after failure: %v", err)
	}
	cancel()
	wg.Wait()
	return err
}

func (a *App) followSync(ctx context.Context, changes <-chan syncer.StateChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			a.scheduler.HandleSyncResult(change.AccountID, change.Direction, change.Err)
		}
	}
}

// Close releases stores in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
