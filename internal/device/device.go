// Package device enumerates capture interfaces and tracks the selected one.
package device

import (
	"net/netip"
	"sync"
)

// Device is a capture interface.
type Device struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Addresses   []netip.Addr `json:"addresses,omitempty"`
}

// HasAddress reports whether addr is one of the device's local addresses.
func (d Device) HasAddress(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, a := range d.Addresses {
		if a.Unmap() == addr {
			return true
		}
	}
	return false
}

func (d Device) clone() Device {
	c := d
	if d.Addresses != nil {
		c.Addresses = append([]netip.Addr(nil), d.Addresses...)
	}
	return c
}

// Selection holds the single selected device. Every change bumps the
// generation so the capture loop can tell that its open handle is stale.
type Selection struct {
	mu         sync.Mutex
	device     Device
	generation uint64
}

// NewSelection creates a selection; an empty name means nothing is selected yet.
func NewSelection(initial Device) *Selection {
	s := &Selection{}
	if initial.Name != "" {
		s.device = initial.clone()
		s.generation = 1
	}
	return s
}

// Select replaces the selected device.
func (s *Selection) Select(d Device) {
	s.mu.Lock()
	s.device = d.clone()
	s.generation++
	s.mu.Unlock()
}

// Get returns a copy of the selected device and its generation.
// Generation zero means no device has been selected.
func (s *Selection) Get() (Device, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device.clone(), s.generation
}
