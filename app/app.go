package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"competitive-insights/cache"
	"competitive-insights/config"
	"competitive-insights/database"
	"competitive-insights/llm"
	"competitive-insights/metrics"
	"competitive-insights/notifications"
	"competitive-insights/ratelimit"
	"competitive-insights/report"
	"competitive-insights/websocket"
)

// App represents the main application
type App struct {
	config   *config.Config
	logger   *zap.Logger
	db       *database.Database
	redis    *redis.Client
	groups   *database.GroupStore
	service  *Service
	webhooks *notifications.WebhookDispatcher
	stream   *websocket.ConnectionManager
	monitor  *Monitor
}

// New creates a new application instance
func New(cfg *config.Config, logger *zap.Logger) *App {
	return &App{config: cfg, logger: logger}
}

// Service returns the wired service. Valid after Bootstrap.
func (a *App) Service() *Service {
	return a.service
}

// Groups returns the group store. Valid after Bootstrap.
func (a *App) Groups() *database.GroupStore {
	return a.groups
}

// Bootstrap connects backing services and wires the components
func (a *App) Bootstrap(ctx context.Context) error {
	metrics.Init(prometheus.DefaultRegisterer)

	// 1. Database Connection
	a.logger.Info("🗄️  Connecting to database...")
	db, err := database.Connect(a.dbConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db
	if err := db.InitSchema(ctx, a.logger); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Redis Connection (optional)
	var cacheStore cache.Store = cache.NewMemoryStore()
	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	cacheOpts := []cache.Option{
		cache.WithGrace(a.config.Cache.Grace),
		cache.WithOpTimeout(a.config.Cache.OpTimeout),
	}
	if a.config.Redis.Host != "" {
		a.logger.Info("🧠 Connecting to Redis...")
		client, err := cache.NewRedisClient(cache.RedisOptions{
			Host:     a.config.Redis.Host,
			Port:     a.config.Redis.Port,
			Password: a.config.Redis.Password,
			DB:       a.config.Redis.DB,
		}, a.logger)
		if err != nil {
			a.logger.Warn("⚠️  Redis connection failed. Using in-process cache and limiter.", zap.Error(err))
		} else {
			a.redis = client
			cacheStore = cache.NewRedisStore(client)
			limitStore = ratelimit.NewRedisStore(client)
			cacheOpts = append(cacheOpts, cache.WithLocker(cache.NewRedisLocker(client), a.config.Cache.LockTTL, a.config.Cache.LockTTL))
		}
	}
	layer := cache.NewLayer(cacheStore, a.logger, cacheOpts...)
	limiter := ratelimit.NewLimiter(limitStore, a.logger,
		ratelimit.WithFailOpen(a.config.RateLimit.FailOpen),
		ratelimit.WithTimeout(a.config.RateLimit.Timeout))

	// 3. Narrative service
	var narrator report.NarrativeService
	if a.config.LLM.Enabled {
		client := llm.NewClient(a.config.LLM.Endpoint, a.config.LLM.APIKey, a.config.LLM.Model)
		narrator = llm.NewNarrator(client, llm.BreakerSettings{
			ConsecutiveFailures: uint32(a.config.LLM.BreakerFailures),
			OpenTimeout:         a.config.LLM.BreakerOpenAfter,
		}, a.logger)
		a.logger.Info("✅ LLM narrative ENABLED", zap.String("model", a.config.LLM.Model))
	} else {
		a.logger.Info("ℹ️  LLM narrative DISABLED, reports use the structured template")
	}
	assembler := report.NewAssembler(narrator, a.logger,
		report.WithLimiter(limiter, a.config.RateLimit.KeyID, a.config.RateLimit.Tier),
		report.WithTimeout(a.config.LLM.Timeout))

	// 4. Alert dispatchers
	a.webhooks = notifications.NewWebhookDispatcher(database.NewWebhookStore(db), layer, a.logger)
	dispatchers := notifications.Fanout{a.webhooks}
	if a.config.Stream.URL != "" {
		a.stream = websocket.NewConnectionManager(a.config.Stream.URL, a.config.Stream.Token, a.config.Stream.PingInterval, a.logger)
		dispatchers = append(dispatchers, notifications.NewSocketDispatcher(a.stream, a.logger))
	}

	a.groups = database.NewGroupStore(db)
	a.service = NewService(Deps{
		Snapshots:  database.NewSnapshotStore(db),
		Groups:     a.groups,
		Alerts:     database.NewAlertStore(db),
		Results:    database.NewResultStore(db),
		Assembler:  assembler,
		Dispatcher: dispatchers,
		Cache:      layer,
		TTL: TTLs{
			Analysis: a.config.Cache.AnalysisTTL,
			Report:   a.config.Cache.ReportTTL,
			Alerts:   a.config.Cache.AlertsTTL,
		},
	}, a.logger)
	return nil
}

func (a *App) dbConfig() database.Config {
	return database.Config{
		Host:     a.config.Database.Host,
		Port:     a.config.Database.Port,
		User:     a.config.Database.User,
		Password: a.config.Database.Password,
		DBName:   a.config.Database.Name,
		SSLMode:  a.config.Database.SSLMode,
	}
}

// Start runs the monitor, snapshot listener and metrics endpoint until interrupted
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Bootstrap(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	// Snapshot notifications
	if a.config.Monitor.Listen {
		listener := database.NewSnapshotListener(a.dbConfig().DSN(), a.service.OnSnapshotInserted, a.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil {
				a.logger.Error("❌ Snapshot listener failed", zap.Error(err))
			}
		}()
	}

	// Periodic detection and analysis
	a.monitor = NewMonitor(a.service, a.groups, a.config.Monitor.Interval, a.logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Start(ctx)
	}()

	// Metrics endpoint
	var server *http.Server
	if a.config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		server = &http.Server{Addr: a.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("📈 Metrics server listening", zap.String("addr", a.config.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("⚠️  Metrics server failed", zap.Error(err))
			}
		}()
	}

	err := a.gracefulShutdown(cancel, server)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc, server *http.Server) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	a.logger.Info("🛑 Shutdown signal received, initiating graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		defer close(shutdownComplete)
		if a.monitor != nil {
			a.monitor.Stop()
		}
		if server != nil {
			_ = server.Shutdown(shutdownCtx)
		}
		if a.webhooks != nil {
			a.webhooks.Wait()
		}
		a.Close()
	}()

	select {
	case <-shutdownComplete:
		a.logger.Info("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		a.logger.Warn("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// Close releases connections. Safe to call after a partial Bootstrap.
func (a *App) Close() {
	if a.webhooks != nil {
		a.webhooks.Wait()
	}
	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			a.logger.Warn("Error closing alert stream", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Error closing database", zap.Error(err))
		} else {
			a.logger.Info("✅ Database connection closed")
		}
		a.db = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Error closing redis", zap.Error(err))
		} else {
			a.logger.Info("✅ Redis connection closed")
		}
		a.redis = nil
	}
}
