// Package app wires the configuration into a running service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/chargeq/chargeq/config"
	"github.com/chargeq/chargeq/core/notify"
	"github.com/chargeq/chargeq/core/sched"
	corestore "github.com/chargeq/chargeq/core/store"
	"github.com/chargeq/chargeq/infra/logger"
	"github.com/chargeq/chargeq/infra/metrics"
	infranotify "github.com/chargeq/chargeq/infra/notify"
	infrastore "github.com/chargeq/chargeq/infra/store"
	"github.com/chargeq/chargeq/internal/eventbus"
	"github.com/chargeq/chargeq/jobs/maintenance"
)

// Service orchestrates the scheduling engine and its maintenance loops.
type Service struct {
	Engine *sched.Engine
	Store  corestore.Store

	bus         eventbus.EventBus
	log         logger.Logger
	promEnabled bool
	promPort    string
	maintenance maintenance.Runner
	closers     []func()
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	var st corestore.Store
	var closers []func()
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := infrastore.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		closers = append(closers, func() { _ = s.Close() })
		st = s
	default:
		st = infrastore.NewMemoryStore()
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Backend == "mqtt" {
		n, err := infranotify.NewPahoNotifier(cfg.Notify.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		closers = append(closers, n.Close)
		notifier = n
	}

	engine, err := sched.New(st, notifier, logger.New("sched"))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	engine.SetOperationTimeout(time.Duration(cfg.Engine.OperationTimeoutMS) * time.Millisecond)

	bus := eventbus.New()
	engine.SetEventBus(bus)

	if cfg.Metrics.InfluxEnabled {
		rec := metrics.NewInfluxRecorderWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		if rec != nil {
			engine.SetSessionRecorder(rec)
		}
	}

	return &Service{
		Engine:      engine,
		Store:       st,
		bus:         bus,
		log:         log,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
		maintenance: maintenance.Runner{
			Engine:       engine,
			Store:        st,
			Log:          logger.New("maintenance"),
			TickInterval: time.Duration(cfg.Maintenance.TickIntervalSeconds) * time.Second,
			ResetHourUTC: cfg.Maintenance.ResetHourUTC,
		},
		closers: closers,
	}, nil
}

// Run starts the maintenance loops and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.log.Infof("chargeq service started")
	s.maintenance.Run(ctx)
	return nil
}

// ResetQueues drains every flagged queue once. Used by the reset command.
func (s *Service) ResetQueues(ctx context.Context) error {
	return s.Engine.ResetQueues(ctx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	err := s.Engine.Close()
	s.bus.Close()
	for _, c := range s.closers {
		c()
	}
	return err
}
