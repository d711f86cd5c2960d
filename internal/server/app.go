// Package server initializes and runs the control server. It opens the
// registry database, applies migrations, seeds the bootstrap admin,
// connects the object archive and the compute provisioner, and starts
// the gRPC endpoint with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/worldkeeper/internal/logging"
	"github.com/dmitrijs2005/worldkeeper/internal/server/archive"
	"github.com/dmitrijs2005/worldkeeper/internal/server/auth"
	"github.com/dmitrijs2005/worldkeeper/internal/server/config"
	"github.com/dmitrijs2005/worldkeeper/internal/server/provisioner"
	"github.com/dmitrijs2005/worldkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/worldkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/worldkeeper/internal/server/grpc"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sql.DB
	userService     *services.UserService
	instanceService *services.InstanceService
	gate            *auth.Gate
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	arch, err := archive.NewS3Archive(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("archive init error: %w", err)
	}

	prov, err := provisioner.NewEC2Provisioner(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("provisioner init error: %w", err)
	}

	us := services.NewUserService(db, rm, c)
	if err := us.EnsureBootstrapAdmin(ctx, c.BootstrapAdminUsername, c.BootstrapAdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap admin error: %w", err)
	}

	is := services.NewInstanceService(db, rm, prov, arch, logger, c)

	return &App{
		config:          c,
		logger:          logger,
		db:              db,
		userService:     us,
		instanceService: is,
		gate:            auth.NewGate([]byte(c.SecretKey)),
	}, nil
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.userService, app.instanceService, app.gate)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
