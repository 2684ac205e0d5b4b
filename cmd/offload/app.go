package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"offload/internal/config"
	"offload/internal/logging"
	"offload/pkg/dispatcher"
	"offload/pkg/eventlog"
	"offload/pkg/feedback"
	"offload/pkg/ollama"
	"offload/pkg/protocoltext"
	"offload/pkg/qualitygate"
	"offload/pkg/statusstore"
	"offload/pkg/validator"
	"offload/pkg/workpkg"
)

// app bundles the resolved configuration and the long-lived collaborators a
// command needs. Collaborators are built on demand.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *sql.DB
}

// loadApp resolves configuration and logging. The state database is opened
// lazily by stateDB.
func loadApp(flags *rootFlags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags != nil && flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags != nil && flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

// Close releases the database and flushes the logger.
func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.log.Sync()
}

func (a *app) stateDB() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := openStateDB(a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) client() *ollama.Client {
	cfg := ollama.Config{
		BaseURL:           a.cfg.Ollama.URL,
		Timeout:           a.cfg.Ollama.Timeout,
		Retries:           a.cfg.Ollama.Retries,
		RequestsPerMinute: a.cfg.Ollama.RequestsPerMinute,
	}
	if a.cfg.Ollama.AllowToolWrites {
		cfg.SandboxRoot = a.cfg.ResultsDir
	}
	return ollama.New(cfg, a.log.Named("ollama"))
}

func (a *app) statusStore() (*statusstore.Store, error) {
	return statusstore.New(a.cfg.StatusDir)
}

func (a *app) feedbackStore() (*feedback.Store, error) {
	db, err := a.stateDB()
	if err != nil {
		return nil, err
	}
	return feedback.NewStore(db), nil
}

func (a *app) factory() (*workpkg.Factory, error) {
	db, err := a.stateDB()
	if err != nil {
		return nil, err
	}
	return workpkg.NewFactory(workpkg.NewSQLStore(db), workpkg.WithLogger(a.log.Named("factory"))), nil
}

// pipeline is a configured, not yet started dispatcher plus the pieces
// callers report on.
type pipeline struct {
	dispatcher *dispatcher.Dispatcher
	client     *ollama.Client
	status     *statusstore.Store
	factory    *workpkg.Factory
	metrics    *dispatcher.Metrics
}

// newPipeline wires every stage. reg may be nil.
func (a *app) newPipeline(reg prometheus.Registerer) (*pipeline, error) {
	db, err := a.stateDB()
	if err != nil {
		return nil, err
	}
	status, err := a.statusStore()
	if err != nil {
		return nil, err
	}
	factory, err := a.factory()
	if err != nil {
		return nil, err
	}

	client := a.client()
	metrics := dispatcher.NewMetrics(reg)
	d, err := dispatcher.New(dispatcher.Config{
		ResultsDir:     a.cfg.ResultsDir,
		MaxQueueDepth:  a.cfg.Queue.MaxDepth,
		PackageTimeout: a.cfg.Queue.PackageTimeout,
	}, dispatcher.Deps{
		Generator: client,
		Gate: qualitygate.New(qualitygate.Config{ToolTimeout: a.cfg.Gate.ToolTimeout},
			qualitygate.WithLogger(a.log.Named("gate"))),
		Validator: validator.New(client, a.cfg.Validator.Model, a.log.Named("validator")),
		Status:    status,
		Feedback:  feedback.NewStore(db),
		Events:    eventlog.NewLog(db),
		Protocol:  protocoltext.New(a.cfg.CommandsDir),
		Metrics:   metrics,
		Logger:    a.log.Named("dispatcher"),
	})
	if err != nil {
		return nil, err
	}
	return &pipeline{dispatcher: d, client: client, status: status, factory: factory, metrics: metrics}, nil
}

// requireHealthy fails fast when the generation service is down.
func requireHealthy(ctx context.Context, c *ollama.Client) error {
	if c.Healthy(ctx) {
		return nil
	}
	return fmt.Errorf("generation service at %s is not responding: %w", c.BaseURL(), ollama.ErrServiceUnavailable)
}

var errNoInput = errors.New("no task text given (pass it as arguments or on stdin)")
