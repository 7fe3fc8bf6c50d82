package commands

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/teranos/shelf/am"
	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/db"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/parser"
	"github.com/teranos/shelf/pipeline"
	"github.com/teranos/shelf/store"
	"github.com/teranos/shelf/unit"
	"github.com/teranos/shelf/version"
)

// loadConfig loads and validates the configuration cascade.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// newRegistry registers the built-in units and applies the configured
// parser and analyzer sections.
func newRegistry(cfg *am.Config, log *zap.SugaredLogger) (*unit.Registry, error) {
	reg := unit.NewRegistry(version.HostVersion(), log.Named("units"))
	if err := reg.Register(parser.Name, parser.New(log.Named(parser.Name))); err != nil {
		return nil, errors.Wrap(err, "failed to register parser")
	}
	if err := reg.Register(analyzer.Name, analyzer.New(analyzer.WithLogger(log.Named(analyzer.Name)))); err != nil {
		return nil, errors.Wrap(err, "failed to register analyzer")
	}
	if err := applyUnitConfig(reg, cfg); err != nil {
		return nil, err
	}
	return reg, nil
}

// applyUnitConfig pushes the config file's unit sections into the registry.
func applyUnitConfig(reg *unit.Registry, cfg *am.Config) error {
	if err := reg.Configure(parser.Name, cfg.Parser.Options()); err != nil {
		return errors.Wrap(err, "failed to configure parser")
	}
	if err := reg.Configure(analyzer.Name, cfg.Analyzer.Options()); err != nil {
		return errors.Wrap(err, "failed to configure analyzer")
	}
	return nil
}

// openDatabase opens and migrates the database. An empty dbPath falls back
// to the configured database.path.
func openDatabase(cfg *am.Config, dbPath string) (*sql.DB, string, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}
	conn, err := db.OpenWithMigrations(dbPath, logger.ComponentLogger("db"))
	if err != nil {
		return nil, dbPath, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return conn, dbPath, nil
}

// app bundles the collaborators a command needs.
type app struct {
	cfg          *am.Config
	registry     *unit.Registry
	orchestrator *pipeline.Orchestrator
	store        *store.Store
	db           *sql.DB
	dbPath       string
	metrics      *prometheus.Registry
}

type appOptions struct {
	withStore bool
	dbPath    string
}

// newApp wires config, registry, optional store and the orchestrator.
func newApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Logger

	reg, err := newRegistry(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, registry: reg, metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orchOpts := []pipeline.Option{
		pipeline.WithLogger(log.Named("pipeline")),
		pipeline.WithMetrics(pipeline.NewMetrics(a.metrics)),
	}
	if opts.withStore {
		conn, path, err := openDatabase(cfg, opts.dbPath)
		if err != nil {
			return nil, err
		}
		a.db, a.dbPath = conn, path
		a.store = store.New(conn, log.Named("store"))
		orchOpts = append(orchOpts, pipeline.WithSink(a.store))
	}
	a.orchestrator = pipeline.NewOrchestrator(reg, orchOpts...)
	return a, nil
}

// Close releases the units and the database.
func (a *app) Close(ctx context.Context) {
	if err := a.registry.Close(ctx); err != nil {
		logger.Warnw("Failed to close units", logger.FieldError, err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warnw("Failed to close database", logger.FieldError, err)
		}
	}
}
