package traffic

import (
	"sync"
	"time"

	"firestige.xyz/sniffer/internal/protocol"
)

// ConnectionInfo is the aggregate of one ConnectionKey.
type ConnectionInfo struct {
	Bytes     uint64               `json:"bytes"`
	Packets   uint64               `json:"packets"`
	Sent      uint64               `json:"sent"`
	Received  uint64               `json:"received"`
	FirstSeen time.Time            `json:"first_seen"`
	LastSeen  time.Time            `json:"last_seen"`
	App       protocol.AppProtocol `json:"application"`
}

// Packet is an admitted packet, already classified.
type Packet struct {
	Key       ConnectionKey
	Length    uint64
	Timestamp time.Time
	App       protocol.AppProtocol
	// Outbound is set when the source address belongs to the capture device.
	Outbound bool
}

// Option configures a Model.
type Option func(*Model)

// WithMergedDirections folds both directions of a flow into a single entry.
func WithMergedDirections() Option {
	return func(m *Model) {
		m.merge = true
	}
}

// Model is the live traffic state. Every mutation and every snapshot happens
// inside one critical section, so readers never observe a partial update.
type Model struct {
	mu sync.Mutex

	observed  uint64
	admitted  uint64
	sent      uint64
	received  uint64
	malformed uint64

	connections map[ConnectionKey]*ConnectionInfo
	apps        map[protocol.AppProtocol]uint64

	merge bool
}

// NewModel creates an empty model.
func NewModel(opts ...Option) *Model {
	m := &Model{
		connections: make(map[ConnectionKey]*ConnectionInfo),
		apps:        make(map[protocol.AppProtocol]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe counts a parsed packet that a filter rejected.
func (m *Model) Observe() {
	m.mu.Lock()
	m.observed++
	m.mu.Unlock()
}

// ObserveMalformed counts a frame that could not be parsed.
func (m *Model) ObserveMalformed() {
	m.mu.Lock()
	m.observed++
	m.malformed++
	m.mu.Unlock()
}

// Admit counts p as observed and admitted and folds it into its connection.
// It returns true when p created a new connection entry.
func (m *Model) Admit(p Packet) bool {
	key := p.Key
	if m.merge {
		key = key.Canonical()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.observed++
	m.admitted++
	if p.Outbound {
		m.sent++
	} else {
		m.received++
	}

	info, ok := m.connections[key]
	if !ok {
		info = &ConnectionInfo{FirstSeen: p.Timestamp}
		m.connections[key] = info
	}
	info.Bytes += p.Length
	info.Packets++
	if p.Outbound {
		info.Sent++
	} else {
		info.Received++
	}
	if p.Timestamp.Before(info.FirstSeen) {
		info.FirstSeen = p.Timestamp
	}
	if p.Timestamp.After(info.LastSeen) {
		info.LastSeen = p.Timestamp
	}
	info.App = p.App

	m.apps[p.App]++
	return !ok
}

// Reset clears all counters and connections.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observed, m.admitted, m.sent, m.received, m.malformed = 0, 0, 0, 0, 0
	m.connections = make(map[ConnectionKey]*ConnectionInfo)
	m.apps = make(map[protocol.AppProtocol]uint64)
}

// Len returns the number of tracked connections.
func (m *Model) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// Snapshot returns a deep copy of the current state.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Observed:    m.observed,
		Admitted:    m.admitted,
		Sent:        m.sent,
		Received:    m.received,
		Malformed:   m.malformed,
		Connections: make(map[ConnectionKey]ConnectionInfo, len(m.connections)),
		AppCounts:   make(map[protocol.AppProtocol]uint64, len(m.apps)),
	}
	for k, v := range m.connections {
		s.Connections[k] = *v
	}
	for k, v := range m.apps {
		s.AppCounts[k] = v
	}
	return s
}
