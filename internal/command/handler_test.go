package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sniffer/internal/core"
	"firestige.xyz/sniffer/internal/device"
	"firestige.xyz/sniffer/internal/engine"
	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/protocol"
	"firestige.xyz/sniffer/internal/report"
	"firestige.xyz/sniffer/internal/runstate"
	"firestige.xyz/sniffer/internal/traffic"
)

// fakeEngine is an in-memory Engine.
type fakeEngine struct {
	mu       sync.Mutex
	devices  []device.Device
	listErr  error
	selected string
	filters  filter.Filters
	state    runstate.State
	model    *traffic.Model
	resets   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		devices: []device.Device{
			{Name: "eth0", Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.1")}},
			{Name: "lo"},
		},
		selected: "eth0",
		state:    runstate.Init,
		model:    traffic.NewModel(),
	}
}

func (f *fakeEngine) Devices() ([]device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, f.listErr
}

func (f *fakeEngine) SelectDevice(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.Name == name {
			f.selected = name
			return nil
		}
	}
	return fmt.Errorf("%w: %s", core.ErrDeviceNotFound, name)
}

func (f *fakeEngine) SelectedDevice() device.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return device.Device{Name: f.selected}
}

func (f *fakeEngine) Filters() filter.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters
}

func (f *fakeEngine) SetIPFilter(v filter.IPVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters.IP = v
	return nil
}

func (f *fakeEngine) SetTransportFilter(t protocol.TransProtocol) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters.Transport = t
	return nil
}

func (f *fakeEngine) SetAppFilter(a protocol.AppProtocol) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters.App = a
	return nil
}

func (f *fakeEngine) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == runstate.Stopped {
		return core.ErrStopped
	}
	f.state = runstate.Running
	return nil
}

func (f *fakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == runstate.Stopped {
		return core.ErrStopped
	}
	if f.state == runstate.Running {
		f.state = runstate.Paused
	}
	return nil
}

func (f *fakeEngine) Resume() error { return f.Start() }

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = runstate.Stopped
}

func (f *fakeEngine) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	f.model.Reset()
}

func (f *fakeEngine) ReadSnapshot() traffic.Snapshot { return f.model.Snapshot() }

func (f *fakeEngine) Status() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Status{State: f.state, Device: f.selected, Filters: f.filters}
}

// admit feeds n packets of one connection into the model.
func (f *fakeEngine) admit(srcPort uint16, app protocol.AppProtocol, n int) {
	key := traffic.ConnectionKey{
		SrcAddr:   netip.MustParseAddr("10.0.0.1"),
		SrcPort:   srcPort,
		DstAddr:   netip.MustParseAddr("10.0.0.2"),
		DstPort:   80,
		Transport: protocol.TCP,
	}
	for i := 0; i < n; i++ {
		f.model.Admit(traffic.Packet{Key: key, Length: 100, Timestamp: time.Now(), App: app, Outbound: true})
	}
}

type staticReports struct{ r report.Report }

func (s staticReports) Build() report.Report { return s.r }

type mockConfigReloader struct {
	calls int
	err   error
}

func (m *mockConfigReloader) Reload() error {
	m.calls++
	return m.err
}

func call(t *testing.T, h *CommandHandler, method string, params any) Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		raw = data
	}
	resp := h.Handle(context.Background(), Command{Method: method, Params: raw, ID: "req-1"})
	assert.Equal(t, "req-1", resp.ID)
	return resp
}

func TestCommandHandler_DeviceList(t *testing.T) {
	eng := newFakeEngine()
	h := NewCommandHandler(eng, nil, nil)

	resp := call(t, h, MethodDeviceList, nil)
	require.Nil(t, resp.Error)
	res, ok := resp.Result.(DeviceListResult)
	require.True(t, ok)
	assert.Len(t, res.Devices, 2)
	assert.Equal(t, "eth0", res.Selected)

	eng.listErr = errors.New("permission denied")
	resp = call(t, h, MethodDeviceList, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
}

func TestCommandHandler_DeviceSelect(t *testing.T) {
	eng := newFakeEngine()
	h := NewCommandHandler(eng, nil, nil)

	resp := call(t, h, MethodDeviceSelect, DeviceSelectParams{Name: "lo"})
	require.Nil(t, resp.Error)
	assert.Equal(t, "lo", eng.SelectedDevice().Name)

	resp = call(t, h, MethodDeviceSelect, DeviceSelectParams{Name: "wlan9"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "lo", eng.SelectedDevice().Name)

	resp = call(t, h, MethodDeviceSelect, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestCommandHandler_FilterSetPartial(t *testing.T) {
	eng := newFakeEngine()
	h := NewCommandHandler(eng, nil, nil)

	ipv6 := "ipv6"
	resp := call(t, h, MethodFilterSet, FilterSetParams{IP: &ipv6})
	require.Nil(t, resp.Error)
	assert.Equal(t, filter.Filters{IP: filter.IPv6}, resp.Result)

	udp, dns := "udp", "dns"
	resp = call(t, h, MethodFilterSet, FilterSetParams{Transport: &udp, Application: &dns})
	require.Nil(t, resp.Error)
	assert.Equal(t, filter.Filters{IP: filter.IPv6, Transport: protocol.UDP, App: protocol.DNS}, eng.Filters())

	resp = call(t, h, MethodFilterGet, nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, eng.Filters(), resp.Result)
}

func TestCommandHandler_FilterSetRejectsWithoutApplying(t *testing.T) {
	eng := newFakeEngine()
	h := NewCommandHandler(eng, nil, nil)

	ipv4, bogus := "ipv4", "gopher"
	resp := call(t, h, MethodFilterSet, FilterSetParams{IP: &ipv4, Application: &bogus})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	assert.Equal(t, filter.Filters{}, eng.Filters())
}

func TestCommandHandler_CaptureLifecycle(t *testing.T) {
	eng := newFakeEngine()
	h := NewCommandHandler(eng, nil, nil)

	steps := []struct {
		method string
		want   runstate.State
	}{
		{MethodCaptureStart, runstate.Running},
		{MethodCaptureStart, runstate.Running},
		{MethodCapturePause, runstate.Paused},
		{MethodCaptureResume, runstate.Running},
		{MethodCaptureStop, runstate.Stopped},
	}
	for _, s := range steps {
		resp := call(t, h, s.method, nil)
		require.Nil(t, resp.Error, s.method)
		st, ok := resp.Result.(engine.Status)
		require.True(t, ok)
		assert.Equal(t, s.want, st.State, s.method)
	}

	resp := call(t, h, MethodCaptureStart, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidState, resp.Error.Code)
}

func TestCommandHandler_TrafficSnapshotAndReset(t *testing.T) {
	eng := newFakeEngine()
	eng.admit(1000, protocol.HTTP, 3)
	eng.admit(1001, protocol.HTTP, 1)
	h := NewCommandHandler(eng, nil, nil)

	resp := call(t, h, MethodTrafficSnapshot, nil)
	require.Nil(t, resp.Error)
	snap := resp.Result.(traffic.Snapshot)
	assert.Equal(t, uint64(4), snap.Admitted)
	assert.Len(t, snap.Connections, 2)

	resp = call(t, h, MethodTrafficSnapshot, TrafficSnapshotParams{Limit: 1})
	require.Nil(t, resp.Error)
	snap = resp.Result.(traffic.Snapshot)
	assert.Len(t, snap.Connections, 1)
	assert.Equal(t, uint64(4), snap.Admitted)
	for k := range snap.Connections {
		assert.Equal(t, uint16(1000), k.SrcPort)
	}

	resp = call(t, h, MethodTrafficSnapshot, TrafficSnapshotParams{Limit: -1})
	require.NotNil(t, resp.Error)

	resp = call(t, h, MethodTrafficReset, nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, 1, eng.resets)
	assert.Equal(t, uint64(0), eng.ReadSnapshot().Admitted)
}

func TestCommandHandler_ReportRender(t *testing.T) {
	eng := newFakeEngine()
	h := NewCommandHandler(eng, nil, nil)

	resp := call(t, h, MethodReportRender, nil)
	require.NotNil(t, resp.Error)

	h = NewCommandHandler(eng, staticReports{report.Report{Text: "HTTP: 1 packets (100%)\n"}}, nil)
	resp = call(t, h, MethodReportRender, nil)
	require.Nil(t, resp.Error)
	res := resp.Result.(RenderResult)
	assert.Contains(t, res.Text, "HTTP: 1 packets (100%)")
}

func TestCommandHandler_DaemonStatus(t *testing.T) {
	eng := newFakeEngine()
	h := NewCommandHandler(eng, nil, nil)

	resp := call(t, h, MethodDaemonStatus, nil)
	require.Nil(t, resp.Error)
	st := resp.Result.(DaemonStatus)
	assert.Positive(t, st.PID)
	assert.Equal(t, runstate.Init, st.Engine.State)
	assert.Equal(t, "eth0", st.Engine.Device)
}

func TestCommandHandler_DaemonShutdown(t *testing.T) {
	h := NewCommandHandler(newFakeEngine(), nil, nil)

	resp := call(t, h, MethodDaemonShutdown, nil)
	require.NotNil(t, resp.Error)

	done := make(chan struct{})
	h.SetShutdownFunc(func() { close(done) })
	resp = call(t, h, MethodDaemonShutdown, nil)
	require.Nil(t, resp.Error)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown func not invoked")
	}
}

func TestCommandHandler_ConfigReload(t *testing.T) {
	reloader := &mockConfigReloader{}
	h := NewCommandHandler(newFakeEngine(), nil, reloader)

	resp := call(t, h, MethodConfigReload, nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, 1, reloader.calls)

	reloader.err = fmt.Errorf("%w: bad level", core.ErrConfigInvalid)
	resp = call(t, h, MethodConfigReload, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)

	h = NewCommandHandler(newFakeEngine(), nil, nil)
	resp = call(t, h, MethodConfigReload, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
}

func TestCommandHandler_UnknownMethod(t *testing.T) {
	h := NewCommandHandler(newFakeEngine(), nil, nil)

	resp := call(t, h, "task_create", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestCommandHandler_InvalidParams(t *testing.T) {
	h := NewCommandHandler(newFakeEngine(), nil, nil)

	resp := h.Handle(context.Background(), Command{
		Method: MethodFilterSet,
		Params: json.RawMessage(`{"ip": 4}`),
		ID:     "req-9",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}
