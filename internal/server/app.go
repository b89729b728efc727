// Package server initializes and runs the main application server.
// It opens the database, applies migrations, validates the schema and wires
// the document lifecycle services, handling graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/landvault/internal/logging"
	"github.com/dmitrijs2005/landvault/internal/server/config"
	"github.com/dmitrijs2005/landvault/internal/server/notifications"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/landvault/internal/server/services"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	versionService *services.VersionService
	reviewService  *services.ReviewService
}

func NewApp(c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	notifier := notifications.NewLogDispatcher(logger)

	vs := services.NewVersionService(db, m, c, logger, notifier)
	rs := services.NewReviewService(db, m, c, logger, notifier)

	return &App{config: c, logger: logger, db: db, versionService: vs, reviewService: rs}, nil
}

// VersionService exposes the version lifecycle manager to transport layers.
func (app *App) VersionService() *services.VersionService {
	return app.versionService
}

// ReviewService exposes the review lock manager to transport layers.
func (app *App) ReviewService() *services.ReviewService {
	return app.reviewService
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

// prepareDatabase applies pending migrations and verifies the resulting
// schema before the services accept any work.
func (app *App) prepareDatabase(ctx context.Context) error {
	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	if err := m.ValidateSchema(ctx, app.db); err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	return nil
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.prepareDatabase(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		return
	}

	app.initSignalHandler(cancelFunc)

	app.logger.Info(ctx, "Ready")

	<-ctx.Done()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}

	app.logger.Info(ctx, "Stopped")
}
