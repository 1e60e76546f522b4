package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/subtrack/internal/aggregator"
	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/invoice"
	"github.com/starford/subtrack/internal/metrics"
	"github.com/starford/subtrack/internal/sse"
	"github.com/starford/subtrack/internal/store"
	"github.com/starford/subtrack/internal/subservice"
)

// core holds the components shared by every run mode.
type core struct {
	cfg     *Config
	version string
	logger  *slog.Logger
	db      *store.DB
	metrics *metrics.Metrics
	broker  *sse.Broker
	svc     *subservice.Service
}

func newCore(opts []Option) (*core, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errors.New("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.Bool("aggregator_enabled", cfg.Aggregator.Enabled),
		slog.String("invoice_extractor", cfg.Invoice.Extractor),
		slog.String("log_level", cfg.App.LogLevel.String()))

	engine, err := detection.NewEngine(cfg.Detection)
	if err != nil {
		return nil, err
	}
	extractor, err := invoice.New(cfg.Invoice.Extractor)
	if err != nil {
		return nil, err
	}
	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	broker := sse.NewBroker(cfg.App.Events.SummaryThrottle)

	svcOpts := []subservice.Option{
		subservice.WithLogger(logger),
		subservice.WithMetrics(m),
		subservice.WithNotifier(broker),
		subservice.WithExtractor(extractor),
	}
	if cfg.Aggregator.Enabled {
		svcOpts = append(svcOpts, subservice.WithAggregator(aggregator.New(cfg.Aggregator)))
	}

	return &core{
		cfg:     cfg,
		version: app.version,
		logger:  logger,
		db:      db,
		metrics: m,
		broker:  broker,
		svc:     subservice.New(db, engine, svcOpts...),
	}, nil
}

func (c *core) close() {
	c.broker.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Warn("store close failed", slog.String("error", err.Error()))
	}
}
