// Package engine is the control interface of the capture engine. It owns
// the guarded shared state and the capture loop goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/sniffer/internal/capture"
	"firestige.xyz/sniffer/internal/core"
	"firestige.xyz/sniffer/internal/device"
	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/metrics"
	"firestige.xyz/sniffer/internal/protocol"
	"firestige.xyz/sniffer/internal/runstate"
	"firestige.xyz/sniffer/internal/traffic"
)

// Config wires an Engine.
type Config struct {
	Lister          device.Lister
	Opener          capture.Opener
	Device          string
	Filters         filter.Filters
	MergeDirections bool
	// Store persists device and filter changes; nil disables persistence.
	Store  SettingsStore
	Logger *slog.Logger
}

// Status is a point-in-time view of the engine.
type Status struct {
	State     runstate.State `json:"state"`
	Device    string         `json:"device"`
	Filters   filter.Filters `json:"filters"`
	Capturing bool           `json:"capturing"`
	Failed    bool           `json:"failed"`
	LastError string         `json:"last_error,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	Uptime    string         `json:"uptime,omitempty"`
}

// DisplayState is the run state, or "failed" while the capture loop is down
// on a fatal error.
func (s Status) DisplayState() string {
	if s.Failed {
		return "failed"
	}
	return s.State.String()
}

// Engine coordinates the capture loop with the control surface. Every
// method is safe for concurrent use and returns without waiting on capture I/O.
type Engine struct {
	lister device.Lister
	opener capture.Opener
	store  SettingsStore
	logger *slog.Logger

	model     *traffic.Model
	filters   *filter.Store
	selection *device.Selection
	state     *runstate.Controller

	ctx    context.Context
	cancel context.CancelFunc

	// persistMu orders reading the settings with saving them, so the last
	// Save always carries the newest device and filters.
	persistMu sync.Mutex

	// loops counts capture goroutines, including a failed one still closing its handle.
	loops sync.WaitGroup

	// mu guards the loop lifecycle fields below.
	mu        sync.Mutex
	capturing bool
	lastErr   error
	sessionID string
	startedAt time.Time
}

// New creates an engine in the Init state. Persisted settings, when present,
// take precedence over the configured device and filters.
func New(cfg Config) (*Engine, error) {
	if cfg.Opener == nil {
		return nil, errors.New("engine: capture opener is required")
	}
	if err := cfg.Filters.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = noopStore{}
	}

	var modelOpts []traffic.Option
	if cfg.MergeDirections {
		modelOpts = append(modelOpts, traffic.WithMergedDirections())
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		lister:    cfg.Lister,
		opener:    cfg.Opener,
		store:     store,
		logger:    logger.With("component", "engine"),
		model:     traffic.NewModel(modelOpts...),
		state:     runstate.NewController(),
		selection: device.NewSelection(device.Device{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	deviceName, filters := cfg.Device, cfg.Filters
	if saved, err := store.Load(); err == nil {
		if saved.Device != "" {
			deviceName = saved.Device
		}
		if err := saved.Filters.Validate(); err == nil {
			filters = saved.Filters
		}
		e.logger.Info("restored persisted settings", "device", deviceName, "filters", filters.String())
	} else if !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("failed to load persisted settings", "error", err)
	}

	e.filters = filter.NewStore(filters)
	if deviceName != "" {
		e.selection.Select(e.resolve(deviceName))
	}

	all := stateNames()
	metrics.SetRunState(runstate.Init.String(), all)
	e.state.OnChange(func(s runstate.State) {
		metrics.SetRunState(s.String(), all)
	})

	return e, nil
}

// resolve looks a configured device up for its addresses. Devices the lister
// cannot see are still selected by name; opening them decides availability.
func (e *Engine) resolve(name string) device.Device {
	if e.lister == nil {
		return device.Device{Name: name}
	}
	d, err := device.Find(e.lister, name)
	if err != nil {
		e.logger.Warn("configured device not listed", "device", name, "error", err)
		return device.Device{Name: name}
	}
	return d
}

// Model exposes the traffic model for read-only consumers such as the report writer.
func (e *Engine) Model() *traffic.Model {
	return e.model
}

// Devices enumerates capture devices.
func (e *Engine) Devices() ([]device.Device, error) {
	if e.lister == nil {
		return nil, errors.New("no device lister configured")
	}
	return e.lister.List()
}

// SelectDevice makes name the capture device. An open handle is replaced by
// the capture loop on its next iteration.
func (e *Engine) SelectDevice(name string) error {
	if e.lister == nil {
		return errors.New("no device lister configured")
	}
	d, err := device.Find(e.lister, name)
	if err != nil {
		return err
	}
	e.selection.Select(d)
	e.logger.Info("device selected", "device", d.Name, "addresses", len(d.Addresses))
	e.persist()
	return nil
}

// SelectedDevice returns the selected device.
func (e *Engine) SelectedDevice() device.Device {
	d, _ := e.selection.Get()
	return d
}

// SetIPFilter replaces the IP version filter.
func (e *Engine) SetIPFilter(v filter.IPVersion) error {
	if err := e.filters.SetIP(v); err != nil {
		return err
	}
	e.filtersChanged()
	return nil
}

// SetTransportFilter replaces the transport filter.
func (e *Engine) SetTransportFilter(t protocol.TransProtocol) error {
	if err := e.filters.SetTransport(t); err != nil {
		return err
	}
	e.filtersChanged()
	return nil
}

// SetAppFilter replaces the application protocol filter.
func (e *Engine) SetAppFilter(a protocol.AppProtocol) error {
	if err := e.filters.SetApp(a); err != nil {
		return err
	}
	e.filtersChanged()
	return nil
}

// SetFilters replaces all filters at once.
func (e *Engine) SetFilters(f filter.Filters) error {
	if err := e.filters.Set(f); err != nil {
		return err
	}
	e.filtersChanged()
	return nil
}

// Filters returns a copy of the current filters.
func (e *Engine) Filters() filter.Filters {
	return e.filters.Get()
}

func (e *Engine) filtersChanged() {
	e.logger.Info("filters updated", "filters", e.filters.Get().String())
	e.persist()
}

func (e *Engine) persist() {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	d, _ := e.selection.Get()
	if err := e.store.Save(Settings{Device: d.Name, Filters: e.filters.Get()}); err != nil {
		e.logger.Warn("failed to persist settings", "error", err)
	}
}

// Start begins or resumes capture. A loop that died on a fatal error is
// relaunched with its error cleared. Once stopped, Start fails with ErrStopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state.State() == runstate.Stopped {
		e.mu.Unlock()
		return core.ErrStopped
	}
	e.lastErr = nil
	if !e.capturing {
		e.launchLocked()
	}
	e.mu.Unlock()

	return e.state.Start()
}

// Resume continues a paused capture.
func (e *Engine) Resume() error {
	return e.Start()
}

// launchLocked starts a capture goroutine. Caller holds e.mu.
func (e *Engine) launchLocked() {
	e.capturing = true
	e.sessionID = uuid.NewString()
	e.startedAt = time.Now()
	session := e.sessionID

	sniffer := capture.NewSniffer(capture.Config{
		Opener:    e.opener,
		State:     e.state,
		Selection: e.selection,
		Filters:   e.filters,
		Model:     e.model,
		Logger:    e.logger,
		// Runs before the handle is closed, so a Start racing the teardown
		// already sees the loop as gone and relaunches.
		OnFatal: func(err error) { e.loopEnded(session, err) },
	})

	e.loops.Add(1)
	e.logger.Info("capture loop launched", "session_id", session)
	go func() {
		defer e.loops.Done()
		if err := sniffer.Run(e.ctx); err == nil {
			e.loopEnded(session, nil)
		}
	}()
}

// loopEnded records the end of session. A session that has been superseded
// by a newer launch leaves the lifecycle fields alone.
func (e *Engine) loopEnded(session string, err error) {
	e.mu.Lock()
	current := session == e.sessionID
	if current {
		e.capturing = false
		if err != nil {
			e.lastErr = err
		}
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("capture loop failed", "session_id", session, "current", current, "error", err)
	}
}

// Pause suspends capture after the in-flight read.
func (e *Engine) Pause() error {
	if e.state.State() == runstate.Stopped {
		return core.ErrStopped
	}
	if e.state.Pause() {
		e.logger.Info("capture paused")
	}
	return nil
}

// Stop ends capture permanently.
func (e *Engine) Stop() {
	e.state.Stop()
	e.logger.Info("capture stopped")
}

// Reset clears all traffic counters. Run state and filters are untouched.
func (e *Engine) Reset() {
	e.model.Reset()
	e.logger.Info("traffic reset")
}

// ReadSnapshot returns a consistent copy of the traffic model.
func (e *Engine) ReadSnapshot() traffic.Snapshot {
	return e.model.Snapshot()
}

// State returns the run state.
func (e *Engine) State() runstate.State {
	return e.state.State()
}

// Status reports state, selection, filters and the capture loop health.
func (e *Engine) Status() Status {
	st := Status{
		State:   e.state.State(),
		Device:  e.SelectedDevice().Name,
		Filters: e.filters.Get(),
	}

	e.mu.Lock()
	st.Capturing = e.capturing
	if e.lastErr != nil {
		st.Failed = true
		st.LastError = e.lastErr.Error()
	}
	st.SessionID = e.sessionID
	st.StartedAt = e.startedAt
	e.mu.Unlock()

	if !st.StartedAt.IsZero() {
		st.Uptime = time.Since(st.StartedAt).Truncate(time.Second).String()
	}
	return st
}

// LastError returns the error that ended the last capture loop, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Close stops capture and waits for the loop to exit or ctx to expire.
func (e *Engine) Close(ctx context.Context) error {
	e.Stop()
	e.cancel()

	// Start checks the state under mu, so no launch can follow this barrier.
	e.mu.Lock()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine: capture loop did not exit: %w", ctx.Err())
	}
}

func stateNames() []string {
	all := runstate.AllStates()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.String()
	}
	return names
}
