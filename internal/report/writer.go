package report

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"firestige.xyz/sniffer/internal/metrics"
	"firestige.xyz/sniffer/internal/traffic"
)

const (
	defaultInterval   = time.Second
	finalFlushTimeout = 5 * time.Second
)

// SnapshotSource yields consistent traffic snapshots.
type SnapshotSource interface {
	Snapshot() traffic.Snapshot
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	Interval       time.Duration
	MaxConnections int
	Source         SnapshotSource
	// Header describes the capture at render time; optional.
	Header func() Header
	Sinks  []Sink
	Logger *slog.Logger
}

// Writer periodically snapshots the model and writes a report to every sink.
// It never mutates the model and keeps running regardless of run state.
type Writer struct {
	interval time.Duration
	opts     Options
	source   SnapshotSource
	header   func() Header
	sinks    []Sink
	logger   *slog.Logger

	mu   sync.Mutex
	last Report
}

// NewWriter creates a writer.
func NewWriter(cfg WriterConfig) *Writer {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	header := cfg.Header
	if header == nil {
		header = func() Header { return Header{} }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		interval: interval,
		opts:     Options{MaxConnections: cfg.MaxConnections},
		source:   cfg.Source,
		header:   header,
		sinks:    cfg.Sinks,
		logger:   logger.With("component", "report"),
	}
}

// Run emits a report on every tick until ctx is done, then emits a final one.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("report writer started", "interval", w.interval, "sinks", len(w.sinks))
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			w.Emit(flushCtx)
			cancel()
			w.logger.Info("report writer stopped")
			return nil
		case <-ticker.C:
			w.Emit(ctx)
		}
	}
}

// Build snapshots the source once and renders it.
func (w *Writer) Build() Report {
	snap := w.source.Snapshot()
	h := w.header()
	if h.GeneratedAt.IsZero() {
		h.GeneratedAt = time.Now()
	}
	return Report{
		Header:    h,
		Protocols: Shares(snap),
		Traffic:   snap,
		Text:      Render(h, snap, w.opts),
	}
}

// Emit builds a report and hands it to every sink. Sink failures are
// logged and counted; they never abort the remaining sinks.
func (w *Writer) Emit(ctx context.Context) Report {
	r := w.Build()

	w.mu.Lock()
	w.last = r
	w.mu.Unlock()

	metrics.Connections.Set(float64(len(r.Traffic.Connections)))
	metrics.ReportsWrittenTotal.Inc()

	for _, sink := range w.sinks {
		if err := sink.Write(ctx, r); err != nil {
			metrics.ReportSinkErrorsTotal.WithLabelValues(sink.Name()).Inc()
			w.logger.Warn("report sink write failed", "sink", sink.Name(), "error", err)
		}
	}
	return r
}

// Last returns the most recently emitted report.
func (w *Writer) Last() Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Close closes every sink.
func (w *Writer) Close() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
