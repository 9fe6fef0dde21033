// Package traffic aggregates admitted packets per connection.
package traffic

import (
	"fmt"
	"net/netip"

	"firestige.xyz/sniffer/internal/protocol"
)

// ConnectionKey identifies one address/port pair on one transport.
// It is comparable and used directly as a map key.
type ConnectionKey struct {
	SrcAddr   netip.Addr             `json:"src_addr"`
	SrcPort   uint16                 `json:"src_port"`
	DstAddr   netip.Addr             `json:"dst_addr"`
	DstPort   uint16                 `json:"dst_port"`
	Transport protocol.TransProtocol `json:"transport"`
}

// Src returns the source endpoint.
func (k ConnectionKey) Src() netip.AddrPort {
	return netip.AddrPortFrom(k.SrcAddr, k.SrcPort)
}

// Dst returns the destination endpoint.
func (k ConnectionKey) Dst() netip.AddrPort {
	return netip.AddrPortFrom(k.DstAddr, k.DstPort)
}

// Reverse swaps source and destination.
func (k ConnectionKey) Reverse() ConnectionKey {
	return ConnectionKey{
		SrcAddr:   k.DstAddr,
		SrcPort:   k.DstPort,
		DstAddr:   k.SrcAddr,
		DstPort:   k.SrcPort,
		Transport: k.Transport,
	}
}

// Canonical orders the endpoints so both directions of a flow map to one key:
// the lower address (then lower port) becomes the source.
func (k ConnectionKey) Canonical() ConnectionKey {
	if c := k.SrcAddr.Compare(k.DstAddr); c > 0 || (c == 0 && k.SrcPort > k.DstPort) {
		return k.Reverse()
	}
	return k
}

func (k ConnectionKey) String() string {
	return fmt.Sprintf("%s %s -> %s", k.Transport, k.Src(), k.Dst())
}
