package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/sniffer/internal/engine"
	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/traffic"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket. Each call uses its
// own connection.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// RawResponse is a response whose result is left undecoded.
type RawResponse struct {
	ID     string
	Result json.RawMessage
	Error  *ErrorInfo
}

type rawJSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

// Call sends a command and waits for response.
func (c *UDSClient) Call(ctx context.Context, method string, params any) (*RawResponse, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	reqID := uuid.NewString()
	req := JSONRPCRequest{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	var resp rawJSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	respID := fmt.Sprintf("%v", resp.ID)
	if respID != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respID)
	}

	return &RawResponse{ID: respID, Result: resp.Result, Error: resp.Error}, nil
}

// invoke calls method and decodes the result into out. RPC errors are
// returned as *ErrorInfo.
func (c *UDSClient) invoke(ctx context.Context, method string, params, out any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// Devices lists capture devices and the current selection.
func (c *UDSClient) Devices(ctx context.Context) (DeviceListResult, error) {
	var res DeviceListResult
	err := c.invoke(ctx, MethodDeviceList, nil, &res)
	return res, err
}

// SelectDevice selects the capture device.
func (c *UDSClient) SelectDevice(ctx context.Context, name string) error {
	return c.invoke(ctx, MethodDeviceSelect, DeviceSelectParams{Name: name}, nil)
}

// Filters returns the active filters.
func (c *UDSClient) Filters(ctx context.Context) (filter.Filters, error) {
	var f filter.Filters
	err := c.invoke(ctx, MethodFilterGet, nil, &f)
	return f, err
}

// SetFilters changes the supplied filter fields and returns the result.
func (c *UDSClient) SetFilters(ctx context.Context, params FilterSetParams) (filter.Filters, error) {
	var f filter.Filters
	err := c.invoke(ctx, MethodFilterSet, params, &f)
	return f, err
}

// Start begins capture.
func (c *UDSClient) Start(ctx context.Context) (engine.Status, error) {
	return c.transition(ctx, MethodCaptureStart)
}

// Pause suspends capture.
func (c *UDSClient) Pause(ctx context.Context) (engine.Status, error) {
	return c.transition(ctx, MethodCapturePause)
}

// Resume continues a paused capture.
func (c *UDSClient) Resume(ctx context.Context) (engine.Status, error) {
	return c.transition(ctx, MethodCaptureResume)
}

// Stop ends capture permanently.
func (c *UDSClient) Stop(ctx context.Context) (engine.Status, error) {
	return c.transition(ctx, MethodCaptureStop)
}

func (c *UDSClient) transition(ctx context.Context, method string) (engine.Status, error) {
	var st engine.Status
	err := c.invoke(ctx, method, nil, &st)
	return st, err
}

// Reset clears the traffic counters.
func (c *UDSClient) Reset(ctx context.Context) error {
	return c.invoke(ctx, MethodTrafficReset, nil, nil)
}

// Snapshot reads the traffic model. limit <= 0 returns every connection.
func (c *UDSClient) Snapshot(ctx context.Context, limit int) (traffic.Snapshot, error) {
	var s traffic.Snapshot
	var params any
	if limit > 0 {
		params = TrafficSnapshotParams{Limit: limit}
	}
	err := c.invoke(ctx, MethodTrafficSnapshot, params, &s)
	return s, err
}

// Render asks the daemon for a freshly rendered report.
func (c *UDSClient) Render(ctx context.Context) (RenderResult, error) {
	var r RenderResult
	err := c.invoke(ctx, MethodReportRender, nil, &r)
	return r, err
}

// Status returns the daemon status.
func (c *UDSClient) Status(ctx context.Context) (DaemonStatus, error) {
	var st DaemonStatus
	err := c.invoke(ctx, MethodDaemonStatus, nil, &st)
	return st, err
}

// Shutdown asks the daemon to exit.
func (c *UDSClient) Shutdown(ctx context.Context) error {
	return c.invoke(ctx, MethodDaemonShutdown, nil, nil)
}

// Reload asks the daemon to reload its configuration.
func (c *UDSClient) Reload(ctx context.Context) error {
	return c.invoke(ctx, MethodConfigReload, nil, nil)
}

// Ping checks that the daemon answers.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// Close releases client resources. Connections are per call, so it is a no-op.
func (c *UDSClient) Close() error {
	return nil
}
