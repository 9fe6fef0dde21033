// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"firestige.xyz/sniffer/internal/core"
	"firestige.xyz/sniffer/internal/device"
	"firestige.xyz/sniffer/internal/engine"
	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/protocol"
	"firestige.xyz/sniffer/internal/report"
	"firestige.xyz/sniffer/internal/traffic"
)

// Engine is the capture engine surface driven by the handler.
type Engine interface {
	Devices() ([]device.Device, error)
	SelectDevice(name string) error
	SelectedDevice() device.Device
	Filters() filter.Filters
	SetIPFilter(v filter.IPVersion) error
	SetTransportFilter(t protocol.TransProtocol) error
	SetAppFilter(a protocol.AppProtocol) error
	Start() error
	Pause() error
	Resume() error
	Stop()
	Reset()
	ReadSnapshot() traffic.Snapshot
	Status() engine.Status
}

// ReportBuilder renders a report on demand.
type ReportBuilder interface {
	Build() report.Report
}

// ConfigReloader is the interface for reloading global configuration.
type ConfigReloader interface {
	Reload() error
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	engine         Engine
	reports        ReportBuilder
	configReloader ConfigReloader
	shutdownFunc   func() // Called by daemon_shutdown to trigger graceful stop
	startTime      time.Time
}

// NewCommandHandler creates a new command handler. reports and reloader may be nil.
func NewCommandHandler(e Engine, reports ReportBuilder, reloader ConfigReloader) *CommandHandler {
	return &CommandHandler{
		engine:         e,
		reports:        reports,
		configReloader: reloader,
		startTime:      time.Now(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g. "capture_start", "filter_set"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string     `json:"id"`               // matches request ID
	Result any        `json:"result,omitempty"` // success result
	Error  *ErrorInfo `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error

	ErrCodeNotFound     = -32004 // Named device does not exist
	ErrCodeInvalidState = -32009 // Operation not allowed in the current run state
)

// Method names.
const (
	MethodDeviceList      = "device_list"
	MethodDeviceSelect    = "device_select"
	MethodFilterGet       = "filter_get"
	MethodFilterSet       = "filter_set"
	MethodCaptureStart    = "capture_start"
	MethodCapturePause    = "capture_pause"
	MethodCaptureResume   = "capture_resume"
	MethodCaptureStop     = "capture_stop"
	MethodTrafficReset    = "traffic_reset"
	MethodTrafficSnapshot = "traffic_snapshot"
	MethodReportRender    = "report_render"
	MethodDaemonStatus    = "daemon_status"
	MethodDaemonShutdown  = "daemon_shutdown"
	MethodConfigReload    = "config_reload"
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Debug("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case MethodDeviceList:
		return h.handleDeviceList(ctx, cmd)
	case MethodDeviceSelect:
		return h.handleDeviceSelect(ctx, cmd)
	case MethodFilterGet:
		return ok(cmd, h.engine.Filters())
	case MethodFilterSet:
		return h.handleFilterSet(ctx, cmd)
	case MethodCaptureStart:
		return h.capture(cmd, h.engine.Start)
	case MethodCapturePause:
		return h.capture(cmd, h.engine.Pause)
	case MethodCaptureResume:
		return h.capture(cmd, h.engine.Resume)
	case MethodCaptureStop:
		return h.capture(cmd, func() error { h.engine.Stop(); return nil })
	case MethodTrafficReset:
		h.engine.Reset()
		return ok(cmd, map[string]string{"status": "reset"})
	case MethodTrafficSnapshot:
		return h.handleTrafficSnapshot(ctx, cmd)
	case MethodReportRender:
		return h.handleReportRender(ctx, cmd)
	case MethodDaemonStatus:
		return ok(cmd, h.daemonStatus())
	case MethodDaemonShutdown:
		return h.handleDaemonShutdown(ctx, cmd)
	case MethodConfigReload:
		return h.handleConfigReload(ctx, cmd)
	default:
		return fail(cmd, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
}

// DeviceListResult is the result of device_list.
type DeviceListResult struct {
	Devices  []device.Device `json:"devices"`
	Selected string          `json:"selected"`
}

func (h *CommandHandler) handleDeviceList(_ context.Context, cmd Command) Response {
	devices, err := h.engine.Devices()
	if err != nil {
		return failErr(cmd, "list devices failed", err)
	}
	if devices == nil {
		devices = []device.Device{}
	}
	return ok(cmd, DeviceListResult{Devices: devices, Selected: h.engine.SelectedDevice().Name})
}

// DeviceSelectParams represents parameters for device_select.
type DeviceSelectParams struct {
	Name string `json:"name"`
}

func (h *CommandHandler) handleDeviceSelect(_ context.Context, cmd Command) Response {
	var params DeviceSelectParams
	if err := decodeParams(cmd, &params); err != nil {
		return fail(cmd, ErrCodeInvalidParams, err.Error())
	}
	if params.Name == "" {
		return fail(cmd, ErrCodeInvalidParams, "device name is required")
	}
	if err := h.engine.SelectDevice(params.Name); err != nil {
		return failErr(cmd, "select device failed", err)
	}
	return ok(cmd, DeviceSelectParams{Name: h.engine.SelectedDevice().Name})
}

// FilterSetParams represents parameters for filter_set. Omitted fields keep
// their current value.
type FilterSetParams struct {
	IP          *string `json:"ip,omitempty"`
	Transport   *string `json:"transport,omitempty"`
	Application *string `json:"application,omitempty"`
}

// handleFilterSet validates every supplied field before applying any of them.
func (h *CommandHandler) handleFilterSet(_ context.Context, cmd Command) Response {
	var params FilterSetParams
	if err := decodeParams(cmd, &params); err != nil {
		return fail(cmd, ErrCodeInvalidParams, err.Error())
	}

	var (
		ip    filter.IPVersion
		trans protocol.TransProtocol
		app   protocol.AppProtocol
		err   error
	)
	if params.IP != nil {
		if ip, err = filter.ParseIPVersion(*params.IP); err != nil {
			return failErr(cmd, "invalid ip filter", err)
		}
	}
	if params.Transport != nil {
		if trans, err = protocol.ParseTransProtocol(*params.Transport); err != nil {
			return failErr(cmd, "invalid transport filter", err)
		}
	}
	if params.Application != nil {
		if app, err = protocol.ParseAppProtocol(*params.Application); err != nil {
			return failErr(cmd, "invalid application filter", err)
		}
	}

	if params.IP != nil {
		if err := h.engine.SetIPFilter(ip); err != nil {
			return failErr(cmd, "set ip filter failed", err)
		}
	}
	if params.Transport != nil {
		if err := h.engine.SetTransportFilter(trans); err != nil {
			return failErr(cmd, "set transport filter failed", err)
		}
	}
	if params.Application != nil {
		if err := h.engine.SetAppFilter(app); err != nil {
			return failErr(cmd, "set application filter failed", err)
		}
	}
	return ok(cmd, h.engine.Filters())
}

// capture runs a run-state transition and answers with the resulting status.
func (h *CommandHandler) capture(cmd Command, op func() error) Response {
	if err := op(); err != nil {
		return failErr(cmd, cmd.Method+" failed", err)
	}
	return ok(cmd, h.engine.Status())
}

// TrafficSnapshotParams represents parameters for traffic_snapshot.
type TrafficSnapshotParams struct {
	// Limit keeps only the top connections by bytes; zero keeps all.
	Limit int `json:"limit,omitempty"`
}

func (h *CommandHandler) handleTrafficSnapshot(_ context.Context, cmd Command) Response {
	var params TrafficSnapshotParams
	if err := decodeParams(cmd, &params); err != nil {
		return fail(cmd, ErrCodeInvalidParams, err.Error())
	}
	if params.Limit < 0 {
		return fail(cmd, ErrCodeInvalidParams, "limit must not be negative")
	}

	snap := h.engine.ReadSnapshot()
	if params.Limit > 0 && len(snap.Connections) > params.Limit {
		top := snap.ConnectionList(params.Limit)
		snap.Connections = make(map[traffic.ConnectionKey]traffic.ConnectionInfo, len(top))
		for _, c := range top {
			snap.Connections[c.ConnectionKey] = c.ConnectionInfo
		}
	}
	return ok(cmd, snap)
}

// RenderResult is the result of report_render.
type RenderResult struct {
	Text   string        `json:"text"`
	Report report.Report `json:"report"`
}

func (h *CommandHandler) handleReportRender(_ context.Context, cmd Command) Response {
	if h.reports == nil {
		return fail(cmd, ErrCodeInternalError, "report writer not configured")
	}
	r := h.reports.Build()
	return ok(cmd, RenderResult{Text: r.Text, Report: r})
}

// DaemonStatus is the result of daemon_status.
type DaemonStatus struct {
	PID       int           `json:"pid"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    string        `json:"uptime"`
	Engine    engine.Status `json:"engine"`
}

func (h *CommandHandler) daemonStatus() DaemonStatus {
	return DaemonStatus{
		PID:       os.Getpid(),
		StartedAt: h.startTime,
		Uptime:    time.Since(h.startTime).Truncate(time.Second).String(),
		Engine:    h.engine.Status(),
	}
}

func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return fail(cmd, ErrCodeInternalError, "shutdown not supported")
	}
	slog.Info("daemon shutdown requested via control surface", "id", cmd.ID)
	// Answer first; the daemon tears down the control surface while stopping.
	go h.shutdownFunc()
	return ok(cmd, map[string]string{"status": "shutting_down"})
}

func (h *CommandHandler) handleConfigReload(_ context.Context, cmd Command) Response {
	if h.configReloader == nil {
		return fail(cmd, ErrCodeInternalError, "config reload not supported")
	}
	if err := h.configReloader.Reload(); err != nil {
		return failErr(cmd, "reload failed", err)
	}
	return ok(cmd, map[string]string{"status": "reloaded"})
}

func decodeParams(cmd Command, v any) error {
	if len(cmd.Params) == 0 || string(cmd.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(cmd.Params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func ok(cmd Command, result any) Response {
	return Response{ID: cmd.ID, Result: result}
}

func fail(cmd Command, code int, msg string) Response {
	return Response{ID: cmd.ID, Error: &ErrorInfo{Code: code, Message: msg}}
}

func failErr(cmd Command, msg string, err error) Response {
	return fail(cmd, codeFor(err), fmt.Sprintf("%s: %v", msg, err))
}

// codeFor maps domain errors onto JSON-RPC error codes.
func codeFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidFilter), errors.Is(err, core.ErrConfigInvalid):
		return ErrCodeInvalidParams
	case errors.Is(err, core.ErrDeviceNotFound):
		return ErrCodeNotFound
	case errors.Is(err, core.ErrStopped):
		return ErrCodeInvalidState
	default:
		return ErrCodeInternalError
	}
}
