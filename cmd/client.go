package cmd

import (
	"context"

	"firestige.xyz/sniffer/internal/command"
	"firestige.xyz/sniffer/internal/engine"
	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/traffic"
)

// ControlClient is the daemon control surface used by the CLI commands.
// *command.UDSClient implements it.
type ControlClient interface {
	Devices(ctx context.Context) (command.DeviceListResult, error)
	SelectDevice(ctx context.Context, name string) error
	Filters(ctx context.Context) (filter.Filters, error)
	SetFilters(ctx context.Context, params command.FilterSetParams) (filter.Filters, error)
	Start(ctx context.Context) (engine.Status, error)
	Pause(ctx context.Context) (engine.Status, error)
	Resume(ctx context.Context) (engine.Status, error)
	Stop(ctx context.Context) (engine.Status, error)
	Reset(ctx context.Context) error
	Snapshot(ctx context.Context, limit int) (traffic.Snapshot, error)
	Render(ctx context.Context) (command.RenderResult, error)
	Status(ctx context.Context) (command.DaemonStatus, error)
	Shutdown(ctx context.Context) error
	Reload(ctx context.Context) error
	Close() error
}

var _ ControlClient = (*command.UDSClient)(nil)
