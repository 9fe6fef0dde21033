// Package protocol classifies packets by transport and application protocol.
package protocol

import (
	"fmt"
	"strings"

	"firestige.xyz/sniffer/internal/core"
)

// TransProtocol is the transport layer of a packet.
type TransProtocol uint8

const (
	// TransAny matches every transport when used as a filter value.
	TransAny TransProtocol = iota
	TCP
	UDP
	// TransOther is any IP payload that is neither TCP nor UDP.
	TransOther
)

var transNames = [...]string{
	TransAny:   "any",
	TCP:        "TCP",
	UDP:        "UDP",
	TransOther: "Other",
}

// IANA protocol numbers
const (
	ipProtoTCP = 6
	ipProtoUDP = 17
)

// TransFromIP maps an IP protocol number to a TransProtocol.
func TransFromIP(proto uint8) TransProtocol {
	switch proto {
	case ipProtoTCP:
		return TCP
	case ipProtoUDP:
		return UDP
	default:
		return TransOther
	}
}

func (t TransProtocol) String() string {
	if int(t) < len(transNames) {
		return transNames[t]
	}
	return fmt.Sprintf("TransProtocol(%d)", uint8(t))
}

// Valid reports whether t is a defined value.
func (t TransProtocol) Valid() bool {
	return int(t) < len(transNames)
}

// MarshalText implements encoding.TextMarshaler.
func (t TransProtocol) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: transport %d", core.ErrInvalidFilter, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TransProtocol) UnmarshalText(text []byte) error {
	v, err := ParseTransProtocol(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTransProtocol parses a transport name, case-insensitively.
// The empty string means TransAny.
func ParseTransProtocol(s string) (TransProtocol, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TransAny, nil
	}
	for i, name := range transNames {
		if strings.EqualFold(s, name) {
			return TransProtocol(i), nil
		}
	}
	return TransAny, fmt.Errorf("%w: unknown transport %q", core.ErrInvalidFilter, s)
}

// AllTransports lists the selectable transport filter values.
func AllTransports() []TransProtocol {
	return []TransProtocol{TransAny, TCP, UDP, TransOther}
}
