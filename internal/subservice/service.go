// Package subservice coordinates persistence, ingestion and the detection
// engine behind the HTTP API, the MCP server and the inbox watcher.
package subservice

import (
	"log/slog"
	"sync"
	"time"

	"github.com/starford/subtrack/internal/aggregator"
	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/invoice"
	"github.com/starford/subtrack/internal/metrics"
	"github.com/starford/subtrack/internal/store"
)

// Notifier receives change notifications. *sse.Broker satisfies it.
type Notifier interface {
	PublishSubscriptionEvent(kind, vendorKey string)
	PublishDetection(report any)
}

// Service is the single writer for subscription state. Detection runs and
// overrides are serialized so a run never overwrites a concurrent edit.
type Service struct {
	repo       store.Repository
	engine     *detection.Engine
	metrics    *metrics.Metrics
	notifier   Notifier
	extractor  invoice.Extractor
	aggregator *aggregator.Client
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records detection and ingestion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier publishes subscription changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithExtractor sets the invoice extractor. The default is the mock.
func WithExtractor(e invoice.Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithAggregator enables SyncAggregator.
func WithAggregator(c *aggregator.Client) Option {
	return func(s *Service) { s.aggregator = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the wall clock used for timestamps and seed dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a service over repo and engine.
func New(repo store.Repository, engine *detection.Engine, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		engine:    engine,
		extractor: invoice.MockExtractor{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the detection engine.
func (s *Service) Engine() *detection.Engine {
	return s.engine
}

func (s *Service) notify(kind, vendorKey string) {
	if s.notifier != nil {
		s.notifier.PublishSubscriptionEvent(kind, vendorKey)
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
