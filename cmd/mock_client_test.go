package cmd

import (
	"context"

	"github.com/stretchr/testify/mock"

	"firestige.xyz/sniffer/internal/command"
	"firestige.xyz/sniffer/internal/engine"
	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/traffic"
)

// MockClient implements ControlClient.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Devices(ctx context.Context) (command.DeviceListResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(command.DeviceListResult), args.Error(1)
}

func (m *MockClient) SelectDevice(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockClient) Filters(ctx context.Context) (filter.Filters, error) {
	args := m.Called(ctx)
	return args.Get(0).(filter.Filters), args.Error(1)
}

func (m *MockClient) SetFilters(ctx context.Context, params command.FilterSetParams) (filter.Filters, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(filter.Filters), args.Error(1)
}

func (m *MockClient) Start(ctx context.Context) (engine.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(engine.Status), args.Error(1)
}

func (m *MockClient) Pause(ctx context.Context) (engine.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(engine.Status), args.Error(1)
}

func (m *MockClient) Resume(ctx context.Context) (engine.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(engine.Status), args.Error(1)
}

func (m *MockClient) Stop(ctx context.Context) (engine.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(engine.Status), args.Error(1)
}

func (m *MockClient) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Snapshot(ctx context.Context, limit int) (traffic.Snapshot, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).(traffic.Snapshot), args.Error(1)
}

func (m *MockClient) Render(ctx context.Context) (command.RenderResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(command.RenderResult), args.Error(1)
}

func (m *MockClient) Status(ctx context.Context) (command.DaemonStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(command.DaemonStatus), args.Error(1)
}

func (m *MockClient) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
