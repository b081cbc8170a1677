package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/matchroom/config"
	"github.com/c360studio/matchroom/storage"
)

// App wires configuration, logging and the record store together. The
// backend is opened lazily on the first Store call.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn

	openOnce sync.Once
	store    *storage.Store
	openErr  error
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Registry returns the metrics registry the store reports to.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Store opens the configured backend on first use.
func (a *App) Store(ctx context.Context) (*storage.Store, error) {
	a.openOnce.Do(func() {
		backend, err := a.openBackend(ctx)
		if err != nil {
			a.openErr = err
			a.closeNATS()
			return
		}
		a.store = storage.NewStore(backend,
			storage.WithLogger(a.logger),
			storage.WithMetrics(storage.NewMetrics(a.registry)),
		)
		a.logger.Debug("Store opened", "backend", a.cfg.Storage.Backend)
	})
	return a.store, a.openErr
}

func (a *App) openBackend(ctx context.Context) (storage.Backend, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.logger.Warn("Using the in-memory backend, nothing will be persisted")
		return storage.NewMemoryBackend(), nil

	case config.BackendSQL:
		if a.cfg.Storage.SQL.Driver == storage.DriverSQLite {
			if err := os.MkdirAll(a.cfg.Storage.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		return storage.OpenSQL(a.cfg.Storage.SQL.Driver, a.cfg.SQLDSN())

	case config.BackendNATS:
		js, err := a.startNATS()
		if err != nil {
			return nil, err
		}
		return storage.NewKVBackend(ctx, js)
	}
	return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
}

func (a *App) startNATS() (jetstream.JetStream, error) {
	natsCfg := a.cfg.Storage.NATS
	if natsCfg.URL != "" && !natsCfg.Embedded {
		a.logger.Debug("Connecting to NATS", "url", natsCfg.URL)
		conn, err := nats.Connect(natsCfg.URL, nats.Name("matchroom"))
		if err != nil {
			return nil, wrapNATSError(err, natsCfg.URL)
		}
		a.natsConn = conn
	} else {
		storeDir := a.cfg.NATSStoreDir()
		if err := os.MkdirAll(storeDir, 0755); err != nil {
			return nil, fmt.Errorf("create NATS store dir: %w", err)
		}

		a.logger.Debug("Starting embedded NATS server", "store_dir", storeDir)
		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      server.RANDOM_PORT,
			JetStream: true,
			StoreDir:  storeDir,
			NoLog:     true,
			NoSigs:    true,
		}
		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("create embedded NATS server: %w", err)
		}
		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL(), nats.Name("matchroom"))
		if err != nil {
			return nil, fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return js, nil
}

// Shutdown closes the store and stops NATS.
func (a *App) Shutdown() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close store", "error", err)
		}
		a.store = nil
	}
	a.closeNATS()
}

func (a *App) closeNATS() {
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
		a.natsConn = nil
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
		a.embeddedServer = nil
	}
}

// WriteMetrics writes the store metrics in the Prometheus text format, for
// the node exporter textfile collector.
func (a *App) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Unset storage.nats.url to use the embedded server, or start NATS:
  docker run -p 4222:4222 nats -js`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}
