package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taplist/internal/config"
	"taplist/internal/expiry"
	httpserver "taplist/internal/http"
	"taplist/internal/http/handlers"
	"taplist/internal/notify"
	"taplist/internal/scheduler"
	"taplist/internal/service"
	"taplist/internal/store"
	"taplist/internal/telemetry"
)

// App wires the taplist dependency graph.
type App struct {
	server      *httpserver.Server
	coordinator *expiry.Coordinator
	notifier    *notify.Notifier
	sched       *scheduler.Redis
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := store.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := store.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	docs := store.NewPostgres(sqlDB, redisClient, logger)
	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := docs.Migrate(migrateCtx); err != nil {
		redisClient.Close()
		sqlDB.Close()
		return nil, err
	}

	metrics := telemetry.NewMetrics()
	store.OnConflict = metrics.TxnConflicts.Inc

	attempts := cfg.Engine.TransactAttempts
	stationsSvc := service.NewStationsService(docs, attempts, logger)
	usersSvc := service.NewUsersService(docs, attempts, logger)
	waitlistSvc := service.NewWaitlistService(docs, attempts, logger)
	sessionsSvc := service.NewSessionsService(docs, attempts, metrics, logger)

	sched := scheduler.NewRedis(redisClient, cfg.PollInterval(), logger)
	coordinator := expiry.NewCoordinator(docs, sessionsSvc, sched, cfg.SweepInterval(), metrics, logger)
	sched.Handle(coordinator.HandleTask)

	pushClient := notify.NewPushClient(cfg.Push.URL, cfg.PushTimeout(), logger)
	notifier := notify.NewNotifier(docs, pushClient, metrics, logger)

	routes := httpserver.Routes{
		Stations: handlers.NewStationsHandler(stationsSvc, logger),
		Waitlist: handlers.NewWaitlistHandler(waitlistSvc, logger),
		Sessions: handlers.NewSessionsHandler(sessionsSvc, logger),
		Users:    handlers.NewUsersHandler(usersSvc, logger),
		Watch:    handlers.NewWatchHandler(docs, logger),
		Metrics:  metrics.Handler(),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		coordinator: coordinator,
		notifier:    notifier,
		sched:       sched,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server and the background reactors, returning the
// first terminal error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 4)
	launch := func(name string, fn func(context.Context) error) {
		go func() {
			err := fn(ctx)
			if err != nil && ctx.Err() == nil {
				a.logger.Error("component stopped", zap.String("component", name), zap.Error(err))
			}
			errCh <- err
		}()
	}

	launch("http", a.server.Run)
	launch("scheduler", a.sched.Run)
	launch("expiry", a.coordinator.Run)
	launch("notifier", a.notifier.Run)

	err := <-errCh
	cancel()
	for i := 0; i < 3; i++ {
		<-errCh
	}
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
