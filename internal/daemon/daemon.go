package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/regbus/internal/config"
	"github.com/jmylchreest/regbus/internal/dbus"
	"github.com/jmylchreest/regbus/internal/registry"
)

const metricsShutdownTimeout = 5 * time.Second

// Daemon wires the registry, the bus session, metrics and config reloads.
type Daemon struct {
	mu     sync.Mutex
	cfg    *config.Config
	logger *slog.Logger
	level  *slog.LevelVar

	configPath string
	watch      bool

	registry *registry.Registry
	commands chan registry.Command

	promRegistry *prometheus.Registry
	metrics      *dbus.Metrics

	sessionOpts []dbus.Option
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the daemon logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) { d.logger = logger }
}

// WithLevelVar lets config reloads adjust the log level.
func WithLevelVar(level *slog.LevelVar) Option {
	return func(d *Daemon) { d.level = level }
}

// WithConfigWatch enables hot-reload of the config file at path.
func WithConfigWatch(path string) Option {
	return func(d *Daemon) {
		d.configPath = path
		d.watch = true
	}
}

// WithSessionOptions appends options passed to the bus session.
func WithSessionOptions(opts ...dbus.Option) Option {
	return func(d *Daemon) { d.sessionOpts = append(d.sessionOpts, opts...) }
}

// New creates a Daemon for the given configuration.
func New(cfg *config.Config, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:          cfg,
		registry:     registry.New(),
		commands:     make(chan registry.Command, cfg.Bus.CommandBuffer),
		promRegistry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	d.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.metrics = dbus.NewMetrics(d.promRegistry, d.registry)

	return d
}

// Registry returns the daemon's registry.
func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

// Gatherer returns the Prometheus gatherer backing the metrics endpoint.
func (d *Daemon) Gatherer() prometheus.Gatherer {
	return d.promRegistry
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Submit queues commands for the session worker.
// It blocks while the command buffer is full.
func (d *Daemon) Submit(ctx context.Context, cmds ...registry.Command) error {
	for _, cmd := range cmds {
		select {
		case d.commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Run seeds the registry, starts the bus session and blocks until ctx is
// cancelled or the session fails.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seeds, err := d.cfg.SeedValues()
	if err != nil {
		return fmt.Errorf("failed to read seeds: %w", err)
	}

	// The session is not serving yet, so seeds go straight into the registry
	for _, cmd := range SeedCommands(seeds) {
		if _, err := cmd.Apply(d.registry); err != nil {
			d.logger.Warn("failed to apply seed", "category", cmd.Category, "key", cmd.Key, "error", err)
		}
	}
	d.logger.Info("registry seeded", "categories", d.registry.Len())

	if err := d.metrics.Register(); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	opts := []dbus.Option{
		dbus.WithBusName(d.cfg.Bus.Name),
		dbus.WithBasePath(d.cfg.Bus.Path),
		dbus.WithPollInterval(d.cfg.Bus.PollInterval.Duration()),
		dbus.WithDrainLimit(d.cfg.Bus.DrainLimit),
		dbus.WithLogger(d.logger),
		dbus.WithMetrics(d.metrics),
		dbus.WithThemeDefaultsFunc(d.themeDefaults),
	}
	opts = append(opts, d.sessionOpts...)

	session, err := dbus.NewSession(d.commands, d.registry, opts...)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	var wg sync.WaitGroup
	if d.cfg.Metrics.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.serveMetrics(ctx, d.cfg.Metrics.Listen); err != nil {
				d.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if d.watch {
		watcher, err := NewConfigWatcher(d.configPath, d.logger)
		if err != nil {
			d.logger.Warn("config hot-reload disabled", "error", err)
		} else {
			watcher.SetReloadCallback(func(oldConfig, newConfig *config.Config) {
				d.reload(ctx, oldConfig, newConfig)
			})
			if err := watcher.Start(ctx, d.cfg); err != nil {
				d.logger.Warn("config hot-reload disabled", "error", err)
			} else {
				defer watcher.Stop()
			}
		}
	}

	d.logger.Info("regbusd ready", "bus", d.cfg.Bus.Name, "path", d.cfg.Bus.Path)
	err = session.Run(ctx)

	cancel()
	wg.Wait()
	d.registry.Close()

	return err
}

// themeDefaults returns the theme seeds of the active configuration.
// Called on the session worker by Reset.
func (d *Daemon) themeDefaults() map[string]registry.Value {
	seeds, err := d.Config().SeedValues()
	if err != nil {
		d.logger.Warn("failed to read theme defaults", "error", err)
		return nil
	}
	return seeds[dbus.ThemeCategory]
}

// reload turns a config change into registry commands.
func (d *Daemon) reload(ctx context.Context, oldConfig, newConfig *config.Config) {
	if oldConfig.Bus.Name != newConfig.Bus.Name || oldConfig.Bus.Path != newConfig.Bus.Path {
		d.logger.Warn("bus name and path changes require a restart",
			"name", newConfig.Bus.Name, "path", newConfig.Bus.Path)
	}

	if d.level != nil {
		d.level.Set(newConfig.Level())
	}

	// SeedValues cannot fail here, LoadConfig validated them
	oldSeeds, _ := oldConfig.SeedValues()
	newSeeds, _ := newConfig.SeedValues()

	cmds := SeedDiff(oldSeeds, newSeeds)
	d.logger.Info("applying config seed changes", "commands", len(cmds))
	if err := d.Submit(ctx, cmds...); err != nil {
		d.logger.Warn("seed changes abandoned", "error", err)
		return
	}

	d.mu.Lock()
	d.cfg = newConfig
	d.mu.Unlock()
}

// serveMetrics exposes the Prometheus registry until ctx is cancelled.
func (d *Daemon) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.promRegistry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	d.logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
