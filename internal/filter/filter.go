// Package filter holds the packet admission filters set through the control surface.
package filter

import (
	"fmt"
	"strings"
	"sync"

	"firestige.xyz/sniffer/internal/core"
	"firestige.xyz/sniffer/internal/protocol"
)

// IPVersion selects packets by IP version.
type IPVersion uint8

const (
	IPAny IPVersion = iota
	IPv4
	IPv6
)

var ipNames = [...]string{
	IPAny: "any",
	IPv4:  "ipv4",
	IPv6:  "ipv6",
}

func (v IPVersion) String() string {
	if int(v) < len(ipNames) {
		return ipNames[v]
	}
	return fmt.Sprintf("IPVersion(%d)", uint8(v))
}

// Valid reports whether v is a defined value.
func (v IPVersion) Valid() bool {
	return int(v) < len(ipNames)
}

// Matches reports whether a packet with the given IP version field passes.
func (v IPVersion) Matches(version uint8) bool {
	switch v {
	case IPv4:
		return version == 4
	case IPv6:
		return version == 6
	default:
		return true
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v IPVersion) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: ip version %d", core.ErrInvalidFilter, uint8(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *IPVersion) UnmarshalText(text []byte) error {
	parsed, err := ParseIPVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseIPVersion accepts any, ipv4/v4/4 and ipv6/v6/6. The empty string means IPAny.
func ParseIPVersion(s string) (IPVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return IPAny, nil
	case "ipv4", "v4", "4":
		return IPv4, nil
	case "ipv6", "v6", "6":
		return IPv6, nil
	default:
		return IPAny, fmt.Errorf("%w: unknown ip version %q", core.ErrInvalidFilter, s)
	}
}

// Filters is the admission criteria of the capture loop. The zero value admits everything.
type Filters struct {
	IP        IPVersion              `json:"ip" yaml:"ip"`
	Transport protocol.TransProtocol `json:"transport" yaml:"transport"`
	App       protocol.AppProtocol   `json:"application" yaml:"application"`
}

// Validate rejects undefined enum values.
func (f Filters) Validate() error {
	if !f.IP.Valid() {
		return fmt.Errorf("%w: ip version %d", core.ErrInvalidFilter, uint8(f.IP))
	}
	if !f.Transport.Valid() {
		return fmt.Errorf("%w: transport %d", core.ErrInvalidFilter, uint8(f.Transport))
	}
	if !f.App.Valid() {
		return fmt.Errorf("%w: application %d", core.ErrInvalidFilter, uint8(f.App))
	}
	return nil
}

// Match reports whether a packet passes all three criteria.
func (f Filters) Match(ipVersion uint8, t protocol.TransProtocol, app protocol.AppProtocol) bool {
	if !f.IP.Matches(ipVersion) {
		return false
	}
	if f.Transport != protocol.TransAny && f.Transport != t {
		return false
	}
	if f.App != protocol.AppAny && f.App != app {
		return false
	}
	return true
}

func (f Filters) String() string {
	return fmt.Sprintf("ip=%s transport=%s application=%s", f.IP, f.Transport, f.App)
}

// Store guards the current Filters. Readers always get a copy.
type Store struct {
	mu      sync.RWMutex
	filters Filters
}

// NewStore creates a store holding initial.
func NewStore(initial Filters) *Store {
	return &Store{filters: initial}
}

// Get returns a copy of the current filters.
func (s *Store) Get() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// Set replaces all filters at once.
func (s *Store) Set(f Filters) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
	return nil
}

// SetIP replaces the IP version criterion.
func (s *Store) SetIP(v IPVersion) error {
	if !v.Valid() {
		return fmt.Errorf("%w: ip version %d", core.ErrInvalidFilter, uint8(v))
	}
	s.mu.Lock()
	s.filters.IP = v
	s.mu.Unlock()
	return nil
}

// SetTransport replaces the transport criterion.
func (s *Store) SetTransport(t protocol.TransProtocol) error {
	if !t.Valid() {
		return fmt.Errorf("%w: transport %d", core.ErrInvalidFilter, uint8(t))
	}
	s.mu.Lock()
	s.filters.Transport = t
	s.mu.Unlock()
	return nil
}

// SetApp replaces the application protocol criterion.
func (s *Store) SetApp(a protocol.AppProtocol) error {
	if !a.Valid() {
		return fmt.Errorf("%w: application %d", core.ErrInvalidFilter, uint8(a))
	}
	s.mu.Lock()
	s.filters.App = a
	s.mu.Unlock()
	return nil
}
