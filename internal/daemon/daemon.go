// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/sniffer/internal/capture"
	"firestige.xyz/sniffer/internal/command"
	"firestige.xyz/sniffer/internal/config"
	"firestige.xyz/sniffer/internal/device"
	"firestige.xyz/sniffer/internal/engine"
	logpkg "firestige.xyz/sniffer/internal/log"
	"firestige.xyz/sniffer/internal/metrics"
	"firestige.xyz/sniffer/internal/report"
)

// Version is reported at startup.
const Version = "0.1.0"

const shutdownTimeout = 10 * time.Second

// Option customizes a Daemon.
type Option func(*Daemon)

// WithOpener replaces the capture opener built from configuration.
func WithOpener(o capture.Opener) Option {
	return func(d *Daemon) { d.opener = o }
}

// WithLister replaces the device lister built from configuration.
func WithLister(l device.Lister) Option {
	return func(d *Daemon) { d.lister = l }
}

// Daemon manages the sniffer daemon process lifecycle.
type Daemon struct {
	// Configuration
	mu         sync.Mutex
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	opener capture.Opener
	lister device.Lister

	// Core components
	engine        *engine.Engine
	writer        *report.Writer
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	httpServer    *command.HTTPServer // nil if HTTP control disabled
	metricsServer *metrics.Server     // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	writerCancel context.CancelFunc
	writerDone   chan struct{}
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
}

// New creates a new Daemon instance. Empty socketPath or pidFile fall back to
// the configured control.socket and control.pid_file.
func New(configPath, socketPath, pidFile string, opts ...Option) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if socketPath == "" {
		socketPath = cfg.Control.Socket
	}
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	cfg := d.Config()

	// 1. Initialize logging system
	if err := logpkg.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	slog.Info("starting sniffer daemon",
		"version", Version,
		"config", d.configPath,
		"socket", d.socketPath,
	)

	// 2. Write PID file
	if err := writePIDFile(d.pidFile); err != nil {
		return err
	}

	// 3. Start metrics server
	if err := d.startMetrics(cfg.Metrics); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Capture engine
	if err := d.startEngine(cfg); err != nil {
		d.Stop()
		return err
	}

	// 5. Report writer
	if err := d.startWriter(cfg.Report); err != nil {
		d.Stop()
		return err
	}

	// 6. Command handler; daemon_shutdown triggers the graceful stop in Run.
	d.cmdHandler = command.NewCommandHandler(d.engine, d.writer, d)
	d.cmdHandler.SetShutdownFunc(d.TriggerShutdown)

	// 7. UDS server for CLI control
	if err := d.startUDS(); err != nil {
		d.Stop()
		return err
	}

	// 8. Optional HTTP control API
	if cfg.Control.HTTP.Enabled {
		d.httpServer = command.NewHTTPServer(cfg.Control.HTTP.Listen, d.cmdHandler)
		if err := d.httpServer.Start(d.ctx); err != nil {
			d.Stop()
			return fmt.Errorf("failed to start http control server: %w", err)
		}
	}

	if cfg.Capture.Autostart {
		if err := d.engine.Start(); err != nil {
			slog.Error("autostart failed", "error", err)
		}
	}

	slog.Info("daemon started successfully")
	return nil
}

func (d *Daemon) startEngine(cfg *config.GlobalConfig) error {
	if d.lister == nil {
		l, err := device.NewLister(cfg.Devices.Lister, cfg.Devices.CacheTTL)
		if err != nil {
			return fmt.Errorf("failed to create device lister: %w", err)
		}
		d.lister = l
	}
	if d.opener == nil {
		o, err := capture.NewOpener(cfg.Capture.Source, capture.Options{
			SnapLen:      cfg.Capture.SnapLen,
			Promiscuous:  cfg.Capture.Promiscuous,
			ReadTimeout:  cfg.Capture.ReadTimeout,
			BPFFilter:    cfg.Capture.BPFFilter,
			BufferSizeMB: cfg.Capture.BufferSizeMB,
		})
		if err != nil {
			return fmt.Errorf("failed to create capture opener: %w", err)
		}
		d.opener = o
	}

	var store engine.SettingsStore
	if cfg.State.Enabled {
		s, err := engine.NewFileSettingsStore(cfg.State.DataDir)
		if err != nil {
			slog.Warn("failed to initialise settings store, persistence disabled",
				"dir", cfg.State.DataDir, "error", err)
		} else {
			store = s
		}
	}

	filters, err := cfg.InitialFilters()
	if err != nil {
		return err
	}

	e, err := engine.New(engine.Config{
		Lister:          d.lister,
		Opener:          d.opener,
		Device:          cfg.Capture.Device,
		Filters:         filters,
		MergeDirections: cfg.Capture.MergeDirections,
		Store:           store,
		Logger:          slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	d.engine = e
	return nil
}

func (d *Daemon) startWriter(cfg config.ReportConfig) error {
	sinks, err := buildSinks(cfg)
	if err != nil {
		return fmt.Errorf("failed to create report sinks: %w", err)
	}

	eng := d.engine
	d.writer = report.NewWriter(report.WriterConfig{
		Interval:       cfg.Interval,
		MaxConnections: cfg.MaxConnections,
		Source:         eng.Model(),
		Header: func() report.Header {
			return reportHeader(eng.Status())
		},
		Sinks:  sinks,
		Logger: slog.Default(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.writerCancel = cancel
	d.writerDone = make(chan struct{})
	go func() {
		defer close(d.writerDone)
		d.writer.Run(ctx)
	}()
	return nil
}

// reportHeader describes the engine in a report. A capture loop that died
// shows as failed, with its error, until the next Start.
func reportHeader(st engine.Status) report.Header {
	return report.Header{Device: st.Device, State: st.DisplayState(), Error: st.LastError}
}

func (d *Daemon) startUDS() error {
	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.udsServer.Start(d.ctx)
	}()

	select {
	case <-d.udsServer.Ready():
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("uds server exited before becoming ready")
		}
		return fmt.Errorf("failed to start uds server: %w", err)
	}
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics(cfg config.MetricsConfig) error {
	if !cfg.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(cfg.Listen, cfg.Path)
	return d.metricsServer.Start(d.ctx)
}

// Stop performs graceful shutdown of all daemon components. Order: control
// surfaces, capture, final report flush, sinks, metrics, PID file, logs.
// It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	slog.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 1. Control surfaces (no new commands)
	if d.httpServer != nil {
		if err := d.httpServer.Stop(ctx); err != nil {
			slog.Error("error stopping http control server", "error", err)
		}
	}
	if d.udsServer != nil {
		d.udsServer.Stop()
	}

	// 2. Capture: run state Stopped, wait for the loop
	if d.engine != nil {
		if err := d.engine.Close(ctx); err != nil {
			slog.Error("error stopping capture", "error", err)
		}
	}

	// 3. Final report flush, then sinks
	if d.writerCancel != nil {
		d.writerCancel()
		select {
		case <-d.writerDone:
		case <-ctx.Done():
			slog.Error("report writer did not flush in time")
		}
		if err := d.writer.Close(); err != nil {
			slog.Error("error closing report sinks", "error", err)
		}
	}

	// 4. Metrics
	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(ctx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 5. PID file
	if err := removePIDFile(d.pidFile); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")

	// 6. Flush logs
	logpkg.Flush()
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via UDS or HTTP
//
// SIGHUP triggers config reload.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload reloads the global configuration.
// Hot-reloadable: log level, format and outputs.
// Cold (requires restart): capture, control, metrics, report and device settings.
// The initial filters and device are superseded by persisted control state,
// so they only apply on the next cold start.
// Implements command.ConfigReloader.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	d.mu.Lock()
	old := d.config
	d.mu.Unlock()

	// The level is shared by every handler. A new format or output rebuilds
	// the default logger; loggers already handed to components keep theirs.
	hotReloaded := []string{}
	switch {
	case newConfig.Log.Format != old.Log.Format || newConfig.Log.Outputs != old.Log.Outputs:
		if err := logpkg.Init(newConfig.Log); err != nil {
			return fmt.Errorf("failed to reinitialize logging: %w", err)
		}
		hotReloaded = append(hotReloaded, "log")
	case newConfig.Log.Level != old.Log.Level:
		if err := logpkg.SetLevel(newConfig.Log.Level); err != nil {
			return fmt.Errorf("failed to set log level: %w", err)
		}
		hotReloaded = append(hotReloaded, "log.level")
	}

	requiresRestart := []string{}
	if newConfig.Capture != old.Capture {
		requiresRestart = append(requiresRestart, "capture")
	}
	if newConfig.Control != old.Control {
		requiresRestart = append(requiresRestart, "control")
	}
	if newConfig.Metrics != old.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	if newConfig.Devices != old.Devices {
		requiresRestart = append(requiresRestart, "devices")
	}
	if !sameReport(newConfig.Report, old.Report) {
		requiresRestart = append(requiresRestart, "report")
	}

	d.mu.Lock()
	d.config = newConfig
	d.mu.Unlock()

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)
	return nil
}

func sameReport(a, b config.ReportConfig) bool {
	if a.Interval != b.Interval || a.Path != b.Path || a.MaxConnections != b.MaxConnections ||
		a.NATS != b.NATS || a.Kafka.Topic != b.Kafka.Topic || a.Kafka.Compression != b.Kafka.Compression {
		return false
	}
	return slices.Equal(a.Sinks, b.Sinks) && slices.Equal(a.Kafka.Brokers, b.Kafka.Brokers)
}

// TriggerShutdown asks Run to stop the daemon. Extra calls are no-ops.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.GlobalConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// Engine exposes the capture engine.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}
