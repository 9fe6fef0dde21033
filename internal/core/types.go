package core

import "net/netip"

// LinkHeader is what the decoder keeps of the L2 header.
type LinkHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16   // of the innermost header
	VLANs     []uint16 // outer first; QinQ yields two
}

// IPHeader holds the fields of an IPv4 or IPv6 header the traffic model needs.
type IPHeader struct {
	Version  uint8 // 4 or 6
	SrcIP    netip.Addr
	DstIP    netip.Addr
	Protocol uint8 // IANA number of the payload; for IPv6 after extension headers
	TTL      uint8 // hop limit for IPv6
	TotalLen uint16
}

// TransportHeader holds L4 ports. Ports are zero unless Protocol is TCP or UDP.
type TransportHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	TCPFlags uint8
}
