package core

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vrsandeep/mylist-go/internal/assets"
	"github.com/vrsandeep/mylist-go/internal/config"
	"github.com/vrsandeep/mylist-go/internal/db"
	"github.com/vrsandeep/mylist-go/internal/fetcher"
	"github.com/vrsandeep/mylist-go/internal/jobs"
	"github.com/vrsandeep/mylist-go/internal/logging"
	"github.com/vrsandeep/mylist-go/internal/lookup"
	"github.com/vrsandeep/mylist-go/internal/reconcile"
	"github.com/vrsandeep/mylist-go/internal/refresh"
	"github.com/vrsandeep/mylist-go/internal/retry"
	"github.com/vrsandeep/mylist-go/internal/store"
	"github.com/vrsandeep/mylist-go/internal/util"
	"github.com/vrsandeep/mylist-go/internal/webclient"
	"github.com/vrsandeep/mylist-go/internal/websocket"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config       *config.Config
	db           *sql.DB
	store        *store.Store
	registry     *fetcher.Registry
	orchestrator *refresh.Orchestrator
	wsHub        *websocket.Hub
	jobManager   *jobs.JobManager
	Version      string
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(cfg.Log.Level)

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	client, err := webclient.New(webclient.Options{
		Timeout:           cfg.Fetch.Timeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		UserAgent:         cfg.Fetch.UserAgent,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	app := NewWith(cfg, database, NewRegistry(cfg, client))
	log.Info("Core application setup complete.", "database", cfg.Database.Path)
	return app, nil
}

// NewRegistry builds both fetch strategies on top of a shared client.
func NewRegistry(cfg *config.Config, client *webclient.Client) *fetcher.Registry {
	policy := retry.DefaultPolicy()
	if cfg.Fetch.Attempts > 0 {
		policy.Attempts = cfg.Fetch.Attempts
	}
	if cfg.Fetch.RetryDelay > 0 {
		policy.Delay = cfg.Fetch.RetryDelay
	}
	opts := fetcher.Options{Policy: policy, LookupConcurrency: cfg.Fetch.LookupConcurrency}
	svc := lookup.NewThumbInfoClient(client, cfg.Site.LookupBaseURL)

	return fetcher.NewRegistry(
		fetcher.NewFullScan(client, fetcher.NewRenderer(cfg.Fetch.RenderTimeout), svc, opts),
		fetcher.NewFeedScan(client, svc, opts),
	)
}

// NewWith assembles an App around an already migrated database and a fetch
// registry. Tests use it to substitute fake fetchers.
func NewWith(cfg *config.Config, database *sql.DB, registry *fetcher.Registry) *App {
	st := store.New(database)
	defaultInterval, err := util.ParseInterval(cfg.Refresh.DefaultCheckInterval)
	if err != nil {
		log.Warn("Invalid default check interval, using 15分", "interval", cfg.Refresh.DefaultCheckInterval, "err", err)
		defaultInterval = 15 * time.Minute
	} else {
		st.SetDefaultCheckInterval(cfg.Refresh.DefaultCheckInterval)
	}

	app := &App{
		config:   cfg,
		db:       database,
		store:    st,
		registry: registry,
		wsHub:    websocket.NewHub(),
		Version:  "dev",
	}
	app.orchestrator = refresh.NewOrchestrator(st, registry, reconcile.NewEngine(), refresh.Options{
		FetchWorkers:         cfg.Refresh.FetchWorkers,
		MergeWorkers:         cfg.Refresh.MergeWorkers,
		DefaultCheckInterval: defaultInterval,
	})
	app.jobManager = jobs.NewManager(app)
	jobs.RegisterRefreshJobs(app.jobManager)
	return app
}

func (a *App) Config() *config.Config              { return a.config }
func (a *App) DB() *sql.DB                         { return a.db }
func (a *App) Store() *store.Store                 { return a.store }
func (a *App) Registry() *fetcher.Registry         { return a.registry }
func (a *App) Orchestrator() *refresh.Orchestrator { return a.orchestrator }
func (a *App) WsHub() *websocket.Hub               { return a.wsHub }
func (a *App) JobManager() *jobs.JobManager        { return a.jobManager }

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
