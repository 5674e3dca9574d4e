package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"idx-flow/api"
	"idx-flow/auth"
	"idx-flow/cache"
	"idx-flow/config"
	"idx-flow/database"
	"idx-flow/marketdata"
	"idx-flow/notifications"
	"idx-flow/pipeline"
	"idx-flow/realtime"
	"idx-flow/storage"
	"idx-flow/tracker"
)

// App represents the main application
type App struct {
	config    *config.Config
	db        *database.Database
	directory *database.DB
	redis     *cache.RedisClient
	objects   storage.ObjectStore
	runs      tracker.Reader
	hub       *realtime.Hub
	broker    *realtime.Broker
	runner    *pipeline.Runner
	apiServer *api.Server
	scheduler *Scheduler
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
		hub:    realtime.NewHub(),
		broker: realtime.NewBroker(),
	}
}

// Start wires every component, serves until SIGINT/SIGTERM and shuts down.
func (a *App) Start() error {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database
	if err := a.connectDatabase(ctx); err != nil {
		return err
	}

	// 2. Object store
	if a.config.ObjectStore == "postgres" {
		a.objects = storage.NewPostgresStore(a.db)
		log.Info().Msg("🗄️  Object store: postgres")
	} else {
		a.objects = storage.NewMemoryStore()
		log.Warn().Msg("⚠️  Object store: memory, artifacts are lost on exit")
	}

	// 3. Instrument source
	source, err := a.instrumentSource()
	if err != nil {
		return err
	}

	// 4. Redis
	log.Info().Msg("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(a.config.RedisHost, a.config.RedisPort, a.config.RedisPassword)
	if a.redis == nil {
		log.Warn().Msg("⚠️  Redis connection failed. Run cache is in-memory, event publish disabled.")
	}

	// 5. Tracker and run-event fan-out
	go a.broker.Run(ctx)
	notifiers := []tracker.Notifier{a.hub, a.broker}
	lastRuns := tracker.NewRedisNotifier(a.redis, "pipeline:events")
	if lastRuns != nil {
		notifiers = append(notifiers, lastRuns)
	}
	if wm := notifications.NewWebhookManager(a.webhooks()); wm != nil {
		notifiers = append(notifiers, wm)
		log.Info().Msgf("🔔 %d run webhooks configured", len(a.config.Webhook.URLs))
	}

	var inner tracker.Tracker
	if a.db != nil {
		gt := tracker.NewGormTracker(database.NewRunRepository(a.db))
		inner, a.runs = gt, gt
	} else {
		mt := tracker.NewMemoryTracker()
		inner, a.runs = mt, mt
	}

	// 6. Market data client and runner
	tokens := auth.NewTokenSource(a.config.MarketData.APIToken, a.config.MarketData.TokenFile)
	client := marketdata.NewClient(a.config.MarketData.BaseURL, tokens, a.config.MarketData.FetchTimeout)

	pc := a.config.Pipeline
	a.runner = pipeline.NewRunner(a.objects, client, source, tracker.NewSafe(inner, notifiers...), pipeline.Options{
		BatchSize:                pc.BatchSize,
		Concurrency:              pc.Concurrency,
		YieldDelay:               pc.YieldDelay,
		LookbackDays:             pc.LookbackDays,
		AccumulationBackfillDays: pc.AccumulationBackfillDays,
		InventoryDays:            pc.InventoryDays,
	})
	if a.redis != nil {
		redis, ttl := a.redis, pc.RunCacheTTL
		a.runner.WithRunCache(func(runID string) cache.RunCache { return cache.NewRunCache(redis, runID, ttl) })
	}

	var wg sync.WaitGroup

	// 7. API server
	a.apiServer = api.NewServer(ctx, a.runs, a.runner, a.objects, a.hub, a.broker)
	if lastRuns != nil {
		a.apiServer.WithLastRuns(lastRuns)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.apiServer.Start(a.config.APIPort); err != nil {
			log.Error().Err(err).Msg("⚠️  API Server failed")
		}
	}()

	// 8. Scheduler
	if pc.ScheduleEnabled {
		a.scheduler = NewScheduler(a.runner, pc.ScheduleInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.scheduler.Start(ctx)
		}()
	} else {
		log.Info().Msg("ℹ️  Scheduler DISABLED, runs are manual only")
	}

	// 9. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// connectDatabase opens the gorm connection. Without it the tracker falls back to
// memory, which is only acceptable when postgres is not the object store.
func (a *App) connectDatabase(ctx context.Context) error {
	log.Info().Msg("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err == nil {
		err = db.InitSchema()
	}
	if err != nil {
		if a.config.ObjectStore == "postgres" || a.config.InstrumentSource == "db" {
			return fmt.Errorf("database connection failed: %w", err)
		}
		log.Warn().Err(err).Msg("⚠️  Database unavailable, run history is in-memory")
		return nil
	}
	a.db = db

	n, err := database.NewRunRepository(db).FailStaleRuns(ctx, database.StaleRunAge)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  Could not close abandoned runs")
	} else if n > 0 {
		log.Info().Msgf("🧹 Marked %d abandoned runs as failed", n)
	}
	log.Info().Msg("✅ Database ready")
	return nil
}

func (a *App) webhooks() []notifications.Webhook {
	wc := a.config.Webhook
	hooks := make([]notifications.Webhook, 0, len(wc.URLs))
	for _, url := range wc.URLs {
		hooks = append(hooks, notifications.Webhook{
			URL:        url,
			AuthValue:  wc.AuthToken,
			Retries:    wc.Retries,
			RetryDelay: wc.RetryDelay,
		})
	}
	return hooks
}

func (a *App) instrumentSource() (pipeline.InstrumentSource, error) {
	if a.config.InstrumentSource != "db" {
		log.Info().Msgf("📋 Instruments from %s", a.config.ReferenceFile)
		return pipeline.FileSource{Path: a.config.ReferenceFile}, nil
	}

	directory, err := database.NewConnection(database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return nil, fmt.Errorf("instrument directory: %w", err)
	}
	a.directory = directory
	log.Info().Msg("📋 Instruments from the instruments table")
	return pipeline.DBSource{DB: directory, ReferencePath: a.config.ReferenceFile}, nil
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	log.Info().Msg("🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop the scheduler and any run in progress
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.apiServer != nil {
			if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Error stopping API server")
			}
		}
		a.hub.Close()

		// Wait for an interrupted run to record its outcome before closing stores
		for a.runner != nil && a.runner.Busy() {
			select {
			case <-shutdownCtx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}

		if a.directory != nil {
			if err := a.directory.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing instrument directory")
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing database")
			} else {
				log.Info().Msg("✅ Database connection closed")
			}
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing redis")
			} else {
				log.Info().Msg("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		log.Info().Msg("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn().Msg("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
