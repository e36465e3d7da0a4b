package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tabula-sync/tabula/internal/config"
	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/favorites"
	"github.com/tabula-sync/tabula/internal/httpserver"
	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/identity"
	"github.com/tabula-sync/tabula/internal/index"
	"github.com/tabula-sync/tabula/internal/logger"
	"github.com/tabula-sync/tabula/internal/pending"
	"github.com/tabula-sync/tabula/internal/redis"
	"github.com/tabula-sync/tabula/internal/scheduler"
	"github.com/tabula-sync/tabula/internal/store"
	redisstore "github.com/tabula-sync/tabula/internal/store/redis"
	"github.com/tabula-sync/tabula/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	couchClient *couch.Client
	prober      *couch.Prober
	service     *favorites.Service
	monitor     *scheduler.ConnectivityMonitor
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Durable local storage. Without Redis the daemon still runs, but
	// identity and the favorites cache die with the process.
	var (
		redisClient *goredis.Client
		syncedKV    store.KV
		localKV     store.KV
	)
	if cfg.RedisAddr != "" {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		redisClient = client
		syncedKV = redisstore.NewSynced(client)
		localKV = redisstore.NewLocal(client)
		loggerClient.Info("Redis initialized successfully")
	} else {
		loggerClient.Warn("no redis configured, storage is in-memory only")
		syncedKV = store.NewMemory()
		localKV = store.NewMemory()
	}
	couchClient := couch.NewClient(couch.Config{
		URL:      cfg.CouchURL,
		Username: cfg.CouchUser,
		Password: cfg.CouchPassword,
	}, loggerClient)

	prober := couch.NewProber(couchClient, cfg.ProbeTimeout, loggerClient)
	ident := identity.NewManager(syncedKV, loggerClient)
	queue := pending.NewQueue()
	memIndex := index.NewMemoryIndex()

	service := favorites.NewService(couchClient, prober, ident, queue, memIndex, syncedKV, loggerClient)

	monitor := scheduler.NewConnectivityMonitor(prober, service, loggerClient, cfg.ProbeInterval)

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		Favorites:      service,
		Identity:       ident,
		Prober:         prober,
		Monitor:        monitor,
		Synced:         syncedKV,
		Local:          localKV,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		couchClient: couchClient,
		prober:      prober,
		service:     service,
		monitor:     monitor,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting tabulad v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("tabulad %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bootstrap the view definitions when the store is reachable; a store
	// that is down right now gets them on a later sync pass.
	if a.prober.Check(ctx) {
		if err := a.couchClient.EnsureViews(ctx); err != nil {
			a.logger.Warn("failed to initialize store views", logger.Error(err))
		} else {
			a.logger.Info("store views initialized")
		}
	} else {
		a.logger.Info("store unreachable, skipping view initialization")
	}

	// Start the connectivity monitor (periodic probe + queue drain)
	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start connectivity monitor: %w", err)
	}
	a.logger.Info("connectivity monitor started",
		logger.Duration("interval", a.cfg.ProbeInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ tabulad stopped cleanly")
	return nil
}
