package decoder

import (
	"encoding/binary"

	"firestige.xyz/sniffer/internal/core"
)

// IANA protocol numbers carrying ports.
const (
	protocolTCP = 6
	protocolUDP = 17
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
	tcpFlagsMask    = 0x3F // URG ACK PSH RST SYN FIN
)

// decodeTransport reads the L4 ports. Transports without ports return a
// header holding only the protocol number and the data untouched.
func decodeTransport(data []byte, proto uint8) (core.TransportHeader, []byte, error) {
	hdr := core.TransportHeader{Protocol: proto}

	var hdrLen int
	switch proto {
	case protocolUDP:
		hdrLen = udpHeaderLen
	case protocolTCP:
		hdrLen = tcpHeaderMinLen
	default:
		return hdr, data, nil
	}
	if len(data) < hdrLen {
		return core.TransportHeader{}, nil, core.ErrPacketTooShort
	}
	hdr.SrcPort = binary.BigEndian.Uint16(data[0:2])
	hdr.DstPort = binary.BigEndian.Uint16(data[2:4])

	if proto == protocolTCP {
		// data offset counts 32-bit words
		hdrLen = int(data[12]>>4) << 2
		if hdrLen < tcpHeaderMinLen || hdrLen > len(data) {
			return hdr, nil, core.ErrPacketTooShort
		}
		hdr.TCPFlags = data[13] & tcpFlagsMask
	}
	return hdr, data[hdrLen:], nil
}
