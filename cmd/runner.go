package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/repositories"
	"github.com/desertthunder/lbx/internal/scraper"
	"github.com/desertthunder/lbx/internal/services"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/desertthunder/lbx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, catalog client and scraper are opened on first use so commands that need none of
// them (setup config, --help) never touch the network or the disk.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db       *shared.DB
	catalog  services.Catalog
	acquirer tasks.Acquirer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Catalog, Acquirer and DB replace the configured collaborators when set.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Catalog    services.Catalog
	Acquirer   tasks.Acquirer
	DB         *shared.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		catalog:    opts.Catalog,
		acquirer:   opts.Acquirer,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, watchlistCommand, resultsCommand, filmsCommand, regionsCommand, providersCommand, tuiCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger swaps the logger, e.g. for a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// database opens the configured database and brings its schema up to date.
func (r *Runner) database() (*shared.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	cfg := r.config.Database
	db, err := shared.NewDatabase(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	return db, nil
}

func (r *Runner) catalogClient(ctx context.Context) (services.Catalog, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}

	cfg := r.config.Catalog
	client, err := services.NewTMDBClient(ctx, services.TMDBOptions{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		Language:          cfg.Language,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout.Duration,
		BreakerFailures:   cfg.BreakerFailures,
		HTTPClient:        r.httpClient,
		Logger:            shared.WithLogger(r.logger, "component", "tmdb"),
	})
	if err != nil {
		return nil, err
	}

	r.catalog = client
	return client, nil
}

func (r *Runner) scraper() tasks.Acquirer {
	if r.acquirer == nil {
		r.acquirer = scraper.New(r.config.Scraper, r.logger)
	}
	return r.acquirer
}

// engine wires a [tasks.WatchlistEngine] from the configured stores, catalog and scraper.
func (r *Runner) engine(ctx context.Context) (*tasks.WatchlistEngine, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	catalog, err := r.catalogClient(ctx)
	if err != nil {
		return nil, err
	}

	return tasks.NewWatchlistEngine(tasks.EngineOptions{
		Acquirer:         r.scraper(),
		Catalog:          catalog,
		Users:            repositories.NewUserRepository(db),
		Providers:        repositories.NewProviderRepository(db),
		Films:            repositories.NewFilmRepository(db, shared.WithLogger(r.logger, "component", "films")),
		FreshnessWindow:  r.config.Sync.FreshnessWindow.Duration,
		ShortenProviders: r.config.Sync.ShortenProviders,
		Logger:           shared.WithLogger(r.logger, "component", "engine"),
	}), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
