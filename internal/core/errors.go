// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors following ADR-021 error handling pattern.
var (
	// Capture errors
	ErrDeviceUnavailable = errors.New("sniffer: device unavailable")
	ErrDeviceNotFound    = errors.New("sniffer: device not found")
	ErrCaptureClosed     = errors.New("sniffer: capture handle closed")
	ErrNoPacket          = errors.New("sniffer: no packet available")

	// Packet decoding errors (MalformedPacket)
	ErrPacketTooShort      = errors.New("sniffer: packet too short")
	ErrUnsupportedLinkType = errors.New("sniffer: unsupported link type")
	ErrNotIP               = errors.New("sniffer: not an ip packet")

	// Control errors
	ErrStopped       = errors.New("sniffer: capture stopped")
	ErrInvalidFilter = errors.New("sniffer: invalid filter value")

	// Configuration errors
	ErrConfigInvalid = errors.New("sniffer: invalid configuration")

	// Daemon errors
	ErrDaemonNotRunning = errors.New("sniffer: daemon not running")
)
