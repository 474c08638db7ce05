// Package server initializes and runs the application: database and queue
// connections, migrations, the linking worker pool, and the HTTP server,
// with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/email"
	"github.com/dmitrijs2005/tglinker/internal/server/httpapi"
	"github.com/dmitrijs2005/tglinker/internal/server/queue"
	"github.com/dmitrijs2005/tglinker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tglinker/internal/server/services"
	"github.com/dmitrijs2005/tglinker/internal/server/telegram"
	"github.com/dmitrijs2005/tglinker/internal/server/worker"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	dialer telegram.Dialer

	db     *sql.DB
	redis  *redis.Client
	router *httpapi.Router
	pool   *worker.Pool
}

// NewApp wires the full server. The telegram dialer is injected so the
// binary can plug in a concrete client while tests use fakes.
func NewApp(cfg *config.Config, dialer telegram.Dialer, logger logging.Logger) (*App, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURI)
	if err != nil {
		return nil, fmt.Errorf("redis url error: %w", err)
	}
	rdb := redis.NewClient(opts)

	q := queue.NewRedisQueue(rdb, cfg.QueueName, logger)
	mailer := email.NewSender(cfg, logger)

	tokens := services.NewTokenService(db, rm, cfg, logger)
	auth := services.NewAuthService(db, rm, tokens, mailer, cfg, logger)
	accounts := services.NewLinkedAccountService(db, rm, q, cfg, logger)

	pool := worker.NewPool(db, rm, q, dialer, cfg, logger)
	router := httpapi.NewRouter(auth, tokens, accounts, cfg, logger)

	return &App{
		config: cfg,
		logger: logger,
		dialer: dialer,
		db:     db,
		redis:  rdb,
		router: router,
		pool:   pool,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.HTTPAddr,
		Handler: app.router.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, "http server error", "error", err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.pool.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.redis.Close(); err != nil {
		app.logger.Error(ctx, "redis close error", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
	app.logger.Info(ctx, "app stopped")
}
