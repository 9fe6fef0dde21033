// Package core defines core data structures with zero external dependencies.
package core

import "time"

// RawPacket is a frame read from the capture handle.
type RawPacket struct {
	Data       []byte    // Raw frame data
	Timestamp  time.Time // Capture timestamp (kernel timestamp preferred)
	CaptureLen uint32    // Actual captured length
	OrigLen    uint32    // Original frame length on the wire
}

// DecodedPacket is the result of L2-L4 protocol stack decoding.
type DecodedPacket struct {
	Timestamp time.Time
	Link      LinkHeader
	IP        IPHeader
	Transport TransportHeader
	Payload   []byte // Application layer payload, zero-copy slice
	OrigLen   uint32
}

// Length returns the number of bytes the packet occupied on the wire.
func (p *DecodedPacket) Length() uint64 {
	if p.OrigLen > 0 {
		return uint64(p.OrigLen)
	}
	return uint64(p.IP.TotalLen)
}
