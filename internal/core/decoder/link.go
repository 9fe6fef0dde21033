// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/sniffer/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4
	sllHeaderLen      = 16
	nullHeaderLen     = 4

	// EtherType values
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8

	// BSD address families seen in DLT_NULL headers
	afINET         = 2
	afINET6BSD     = 24
	afINET6FreeBSD = 28
	afINET6Darwin  = 30
)

// decodeLink strips the link-layer header and returns the network-layer payload.
func decodeLink(link LinkType, data []byte) (core.LinkHeader, []byte, error) {
	switch link {
	case LinkEthernet:
		return decodeEthernet(data)
	case LinkLinuxSLL:
		return decodeSLL(data)
	case LinkNull:
		return decodeNull(data)
	case LinkRaw:
		return decodeRaw(data)
	default:
		return core.LinkHeader{}, nil, core.ErrUnsupportedLinkType
	}
}

// decodeEthernet decodes Ethernet frame header (including VLAN tags).
func decodeEthernet(data []byte) (core.LinkHeader, []byte, error) {
	if len(data) < ethernetHeaderLen {
		return core.LinkHeader{}, nil, core.ErrPacketTooShort
	}

	eth := core.LinkHeader{}
	copy(eth.DstMAC[:], data[0:6])
	copy(eth.SrcMAC[:], data[6:12])

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	// VLAN tags can be nested (QinQ)
	var vlans []uint16
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			return eth, nil, core.ErrPacketTooShort
		}

		// VLAN header: 2 bytes TCI + 2 bytes EtherType
		tci := binary.BigEndian.Uint16(data[offset : offset+2])
		vlans = append(vlans, tci&0x0FFF)

		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	eth.EtherType = etherType
	eth.VLANs = vlans

	// ARP, LLDP and friends are not traffic we aggregate.
	if etherType != etherTypeIPv4 && etherType != etherTypeIPv6 {
		return eth, nil, core.ErrNotIP
	}

	return eth, data[offset:], nil
}

// decodeSLL decodes the Linux cooked capture header used by the "any" device.
func decodeSLL(data []byte) (core.LinkHeader, []byte, error) {
	if len(data) < sllHeaderLen {
		return core.LinkHeader{}, nil, core.ErrPacketTooShort
	}

	hdr := core.LinkHeader{
		EtherType: binary.BigEndian.Uint16(data[14:16]),
	}
	// Link-layer address length at offset 4, address at offset 6 (up to 8 bytes)
	if addrLen := binary.BigEndian.Uint16(data[4:6]); addrLen >= 6 {
		copy(hdr.SrcMAC[:], data[6:12])
	}

	if hdr.EtherType != etherTypeIPv4 && hdr.EtherType != etherTypeIPv6 {
		return hdr, nil, core.ErrNotIP
	}
	return hdr, data[sllHeaderLen:], nil
}

// decodeNull decodes the 4-byte loopback header. The family is in host byte order
// of the capturing machine, so both orders are accepted.
func decodeNull(data []byte) (core.LinkHeader, []byte, error) {
	if len(data) < nullHeaderLen {
		return core.LinkHeader{}, nil, core.ErrPacketTooShort
	}

	family := binary.LittleEndian.Uint32(data[0:4])
	if family > 0xFFFF {
		family = binary.BigEndian.Uint32(data[0:4])
	}

	hdr := core.LinkHeader{}
	switch family {
	case afINET:
		hdr.EtherType = etherTypeIPv4
	case afINET6BSD, afINET6FreeBSD, afINET6Darwin:
		hdr.EtherType = etherTypeIPv6
	default:
		return hdr, nil, core.ErrNotIP
	}
	return hdr, data[nullHeaderLen:], nil
}

// decodeRaw handles frames that start directly with the IP header.
func decodeRaw(data []byte) (core.LinkHeader, []byte, error) {
	if len(data) < 1 {
		return core.LinkHeader{}, nil, core.ErrPacketTooShort
	}
	hdr := core.LinkHeader{}
	switch data[0] >> 4 {
	case 4:
		hdr.EtherType = etherTypeIPv4
	case 6:
		hdr.EtherType = etherTypeIPv6
	default:
		return hdr, nil, core.ErrNotIP
	}
	return hdr, data, nil
}
