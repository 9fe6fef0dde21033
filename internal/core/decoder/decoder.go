// Package decoder implements L2-L4 protocol stack decoding.
package decoder

import (
	"firestige.xyz/sniffer/internal/core"
)

// LinkType identifies the framing of captured data.
type LinkType uint8

const (
	LinkEthernet LinkType = iota // DLT_EN10MB
	LinkRaw                      // DLT_RAW: bare IPv4/IPv6
	LinkLinuxSLL                 // DLT_LINUX_SLL: "any" device cooked header
	LinkNull                     // DLT_NULL / DLT_LOOP: BSD loopback family header
)

func (l LinkType) String() string {
	switch l {
	case LinkEthernet:
		return "ethernet"
	case LinkRaw:
		return "raw"
	case LinkLinuxSLL:
		return "linux_sll"
	case LinkNull:
		return "null"
	default:
		return "unknown"
	}
}

// Decoder decodes raw packets into structured format.
type Decoder interface {
	Decode(raw core.RawPacket) (core.DecodedPacket, error)
}

// StandardDecoder decodes a single link type down to TCP/UDP ports.
type StandardDecoder struct {
	link LinkType
}

// NewStandardDecoder creates a decoder for frames of the given link type.
func NewStandardDecoder(link LinkType) *StandardDecoder {
	return &StandardDecoder{link: link}
}

// LinkType returns the framing this decoder expects.
func (d *StandardDecoder) LinkType() LinkType {
	return d.link
}

// Decode parses L2, L3 and L4 headers.
// Any error means the frame is malformed (or not IP) and must be dropped.
func (d *StandardDecoder) Decode(raw core.RawPacket) (core.DecodedPacket, error) {
	pkt := core.DecodedPacket{
		Timestamp: raw.Timestamp,
		OrigLen:   raw.OrigLen,
	}
	if pkt.OrigLen == 0 {
		pkt.OrigLen = uint32(len(raw.Data))
	}

	link, network, err := decodeLink(d.link, raw.Data)
	if err != nil {
		return pkt, err
	}
	pkt.Link = link

	ip, transportData, fragment, err := decodeIP(network)
	if err != nil {
		return pkt, err
	}
	pkt.IP = ip

	// Non-first fragments carry no transport header.
	if fragment {
		pkt.Transport = core.TransportHeader{Protocol: ip.Protocol}
		return pkt, nil
	}

	transport, payload, err := decodeTransport(transportData, ip.Protocol)
	if err != nil {
		return pkt, err
	}
	pkt.Transport = transport
	pkt.Payload = payload

	return pkt, nil
}
