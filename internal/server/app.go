// Package server wires configuration, storage, services and the gRPC
// endpoint into a runnable application with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authmaker/internal/logging"
	"github.com/dmitrijs2005/authmaker/internal/server/config"
	"github.com/dmitrijs2005/authmaker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authmaker/internal/server/services"

	gs "github.com/dmitrijs2005/authmaker/internal/server/grpc"
)

var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}

	newRepositoryManager = repomanager.NewPostgresRepositoryManager
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	userService   *services.UserService
	avatarService *services.AvatarService
}

// NewApp connects to the database, applies migrations and builds the
// services. The caller owns the returned App and must Close it.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm, err := newRepositoryManager(db, c.ScopeFanOut)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	resolver := services.NewScopeResolver(db, rm, logger)
	us := services.NewUserService(db, rm, resolver, c, logger)
	as := services.NewAvatarService(us, c, logger)

	return &App{config: c, logger: logger, db: db, userService: us, avatarService: as}, nil
}

func (app *App) Close() error {
	return app.db.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.userService, app.avatarService, app.config.SecretKey)
	if err != nil {
		cancelFunc()
		return err
	}

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return err
	}
	return nil
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
	return runErr
}
