// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"math"
	"net/netip"

	"firestige.xyz/sniffer/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40

	// IPv6 extension headers walked before the transport header
	ipv6HopByHop    = 0
	ipv6Routing     = 43
	ipv6Fragment    = 44
	ipv6DestOptions = 60

	maxIPv6Extensions = 8
)

// decodeIP decodes IP header (IPv4 or IPv6).
// Returns the header, the transport-layer bytes, and whether the packet is a
// non-first fragment.
func decodeIP(data []byte) (core.IPHeader, []byte, bool, error) {
	if len(data) < 1 {
		return core.IPHeader{}, nil, false, core.ErrPacketTooShort
	}

	// Check IP version (first 4 bits)
	switch data[0] >> 4 {
	case 4:
		return decodeIPv4(data)
	case 6:
		return decodeIPv6(data)
	default:
		return core.IPHeader{}, nil, false, core.ErrNotIP
	}
}

// decodeIPv4 decodes IPv4 header.
func decodeIPv4(data []byte) (core.IPHeader, []byte, bool, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.IPHeader{}, nil, false, core.ErrPacketTooShort
	}

	// IHL is in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return core.IPHeader{}, nil, false, core.ErrPacketTooShort
	}

	ip := core.IPHeader{
		Version:  4,
		TotalLen: binary.BigEndian.Uint16(data[2:4]),
		TTL:      data[8],
		Protocol: data[9],
		SrcIP:    netip.AddrFrom4([4]byte(data[12:16])),
		DstIP:    netip.AddrFrom4([4]byte(data[16:20])),
	}

	// TotalLen is zero on segmentation-offloaded frames captured locally.
	if ip.TotalLen != 0 && int(ip.TotalLen) < headerLen {
		return ip, nil, false, core.ErrPacketTooShort
	}

	// Drop Ethernet padding past the datagram; snaplen may truncate earlier.
	end := len(data)
	if ip.TotalLen != 0 && int(ip.TotalLen) < end {
		end = int(ip.TotalLen)
	}

	flagsOffset := binary.BigEndian.Uint16(data[6:8])
	fragmentOffset := flagsOffset & 0x1FFF
	return ip, data[headerLen:end], fragmentOffset != 0, nil
}

// decodeIPv6 decodes IPv6 header and skips known extension headers.
func decodeIPv6(data []byte) (core.IPHeader, []byte, bool, error) {
	if len(data) < ipv6HeaderLen {
		return core.IPHeader{}, nil, false, core.ErrPacketTooShort
	}

	payloadLen := int(binary.BigEndian.Uint16(data[4:6]))
	ip := core.IPHeader{
		Version:  6,
		Protocol: data[6],
		TTL:      data[7],
		SrcIP:    netip.AddrFrom16([16]byte(data[8:24])),
		DstIP:    netip.AddrFrom16([16]byte(data[24:40])),
	}

	// Jumbo payloads overflow uint16; TotalLen stays zero for those.
	total := ipv6HeaderLen + payloadLen
	if total <= math.MaxUint16 {
		ip.TotalLen = uint16(total)
	}

	end := min(total, len(data))
	if end < ipv6HeaderLen {
		return ip, nil, false, core.ErrPacketTooShort
	}
	payload := data[ipv6HeaderLen:end]

	fragment := false
	for i := 0; i < maxIPv6Extensions; i++ {
		switch ip.Protocol {
		case ipv6HopByHop, ipv6Routing, ipv6DestOptions:
			if len(payload) < 8 {
				return ip, nil, false, core.ErrPacketTooShort
			}
			extLen := (int(payload[1]) + 1) * 8
			if len(payload) < extLen {
				return ip, nil, false, core.ErrPacketTooShort
			}
			ip.Protocol = payload[0]
			payload = payload[extLen:]
		case ipv6Fragment:
			if len(payload) < 8 {
				return ip, nil, false, core.ErrPacketTooShort
			}
			ip.Protocol = payload[0]
			if binary.BigEndian.Uint16(payload[2:4])&0xFFF8 != 0 {
				fragment = true
			}
			payload = payload[8:]
		default:
			return ip, payload, fragment, nil
		}
	}
	return ip, payload, fragment, nil
}
