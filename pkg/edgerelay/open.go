package edgerelay

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nonibytes/edgerelay/edgerelay/agent"
	"github.com/nonibytes/edgerelay/edgerelay/config"
	"github.com/nonibytes/edgerelay/edgerelay/cov"
	"github.com/nonibytes/edgerelay/edgerelay/driver"
	"github.com/nonibytes/edgerelay/edgerelay/metrics"
	"github.com/nonibytes/edgerelay/edgerelay/pack"
	"github.com/nonibytes/edgerelay/edgerelay/storage"
	"github.com/nonibytes/edgerelay/edgerelay/storage/postgres"
	"github.com/nonibytes/edgerelay/edgerelay/storage/sqlite"
	"github.com/nonibytes/edgerelay/edgerelay/transport"
)

type OpenOptions struct {
	Logger *logrus.Logger
	// Registerer receives the agent's collector when set.
	Registerer prometheus.Registerer
	Clock      clock.Clock
	// Stdout backs the stdout transport. Defaults to os.Stdout.
	Stdout io.Writer
}

// Runtime is an assembled agent together with the resources it owns.
type Runtime struct {
	Agent     *agent.Agent
	Store     *cov.Store
	Transport transport.Transport
	Metrics   *metrics.Collector
}

// Close releases the transport and the store.
func (r *Runtime) Close() error {
	terr := r.Transport.Close()
	if err := r.Store.Close(); err != nil {
		return err
	}
	return terr
}

// NewAdapter selects the storage backend.
func NewAdapter(cfg config.StoreConfig) (storage.Adapter, error) {
	switch storage.Backend(cfg.Backend) {
	case storage.BackendSQLite:
		return sqlite.NewWithDriver(cfg.SQLitePath, cfg.SQLiteDriver), nil
	case storage.BackendPostgres:
		if !postgres.ValidSchemaName(cfg.PostgresSchema) {
			return nil, NewError(ErrConfig, fmt.Sprintf("invalid postgres schema name %q", cfg.PostgresSchema))
		}
		return postgres.New(cfg.PostgresDSN, cfg.PostgresSchema), nil
	default:
		return nil, NewError(ErrConfig, fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}

// OpenStore opens the CoV state store described by cfg.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (*cov.Store, error) {
	adapter, err := NewAdapter(cfg)
	if err != nil {
		return nil, err
	}
	return cov.Open(ctx, adapter, cov.DefaultOptions())
}

// NewDriver builds the driver for one configured device, wrapped in its
// retry policy.
func NewDriver(d config.DeviceConfig, clk clock.Clock, logger *logrus.Logger) (driver.Driver, error) {
	var base driver.Driver
	switch d.Kind {
	case config.DeviceHTTPJSON:
		p, err := driver.NewPanel(driver.PanelOptions{
			Name:         d.Name,
			IP:           d.IP,
			BaseURL:      d.BaseURL,
			DiscoverPath: d.DiscoverPath,
			ValuesPath:   d.ValuesPath,
			Timeout:      d.Timeout,
			RequestDelay: d.RequestDelay,
			SOCKS5:       d.SOCKS5,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		base = p
	case config.DeviceFile:
		device := d.IP
		if device == "" {
			device = d.Name
		}
		base = driver.NewFile(d.Name, device, d.Path)
	default:
		return nil, NewError(ErrConfig, fmt.Sprintf("device %q has unknown kind %q", d.Name, d.Kind))
	}

	policy := driver.RetryPolicy{
		Attempts: d.Retry.Attempts,
		Delay:    d.Retry.Delay,
		MaxDelay: d.Retry.MaxDelay,
		Backoff:  d.Retry.Backoff,
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return driver.WithRetry(base, policy, clk, logger), nil
}

// NewTransport builds the upstream transport. The bearer token is read
// from the environment variable named in the config.
func NewTransport(cfg config.Config, codec pack.Codec, stdout io.Writer, logger *logrus.Logger) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case config.TransportStdout:
		if stdout == nil {
			stdout = os.Stdout
		}
		return transport.NewWriter(stdout), nil
	case config.TransportHTTP:
		var token string
		if cfg.Transport.TokenEnv != "" {
			token = os.Getenv(cfg.Transport.TokenEnv)
			if token == "" {
				logger.WithField("env", cfg.Transport.TokenEnv).Warn("transport token variable is empty")
			}
		}
		return transport.NewHTTP(transport.HTTPOptions{
			URL:         cfg.Transport.URL,
			Token:       token,
			Site:        cfg.Site,
			ContentType: codec.ContentType(),
			Gzip:        cfg.Transport.Gzip,
			Timeout:     cfg.Transport.Timeout,
		})
	default:
		return nil, NewError(ErrConfig, fmt.Sprintf("unknown transport kind %q", cfg.Transport.Kind))
	}
}

// Open assembles a ready-to-run agent from cfg.
func Open(ctx context.Context, cfg config.Config, opts OpenOptions) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings() {
		opts.Logger.Warn(w)
	}

	drivers := make([]driver.Driver, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		drv, err := NewDriver(d, opts.Clock, opts.Logger)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, drv)
	}

	codec, err := pack.CodecByName(cfg.Transport.Codec)
	if err != nil {
		return nil, err
	}
	packer, err := pack.New(pack.Options{
		ByteLimit: cfg.Transport.ByteLimit,
		Codec:     codec,
		Oversize:  pack.OversizePolicy(cfg.Transport.OversizePolicy),
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if opts.Registerer != nil {
		collector = metrics.NewCollector()
		if err := opts.Registerer.Register(collector); err != nil {
			return nil, Wrap(ErrConfig, "register metrics", err)
		}
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	tr, err := NewTransport(cfg, codec, opts.Stdout, opts.Logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	ag, err := agent.New(agent.Options{
		Drivers:   drivers,
		Store:     store,
		Packer:    packer,
		Transport: tr,
		Schedule: agent.Schedule{
			CoV:       cfg.Schedule.CoVInterval(),
			FullFrame: cfg.Schedule.FullFrameInterval(),
			Restart:   cfg.Schedule.RestartInterval(),
		},
		GatherTimeout:  cfg.Gather.Timeout,
		MaxConcurrency: cfg.Gather.MaxConcurrency,
		Clock:          opts.Clock,
		Logger:         opts.Logger,
		Metrics:        collector,
	})
	if err != nil {
		tr.Close()
		store.Close()
		return nil, err
	}
	opts.Logger.WithFields(logrus.Fields{
		"store":   store.ID(),
		"devices": len(drivers),
		"codec":   codec.Name(),
	}).Debug("agent assembled")
	return &Runtime{Agent: ag, Store: store, Transport: tr, Metrics: collector}, nil
}
