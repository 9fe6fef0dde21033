package traffic

import (
	"encoding/json"
	"sort"

	"firestige.xyz/sniffer/internal/protocol"
)

// Snapshot is a consistent copy of the Model.
type Snapshot struct {
	Observed    uint64
	Admitted    uint64
	Sent        uint64
	Received    uint64
	Malformed   uint64
	Connections map[ConnectionKey]ConnectionInfo
	AppCounts   map[protocol.AppProtocol]uint64
}

// Connection pairs a key with its aggregate.
type Connection struct {
	ConnectionKey
	ConnectionInfo
}

// ConnectionList returns the connections ordered by bytes, then packets,
// descending, with the key string as final tie-break. limit <= 0 returns all.
func (s Snapshot) ConnectionList(limit int) []Connection {
	list := make([]Connection, 0, len(s.Connections))
	for k, v := range s.Connections {
		list = append(list, Connection{ConnectionKey: k, ConnectionInfo: v})
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Bytes != b.Bytes {
			return a.Bytes > b.Bytes
		}
		if a.Packets != b.Packets {
			return a.Packets > b.Packets
		}
		return a.ConnectionKey.String() < b.ConnectionKey.String()
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

// AppTotal sums the per-application counters.
func (s Snapshot) AppTotal() uint64 {
	var total uint64
	for _, c := range s.AppCounts {
		total += c
	}
	return total
}

type snapshotJSON struct {
	Observed    uint64                          `json:"observed"`
	Admitted    uint64                          `json:"admitted"`
	Sent        uint64                          `json:"sent"`
	Received    uint64                          `json:"received"`
	Malformed   uint64                          `json:"malformed"`
	AppCounts   map[protocol.AppProtocol]uint64 `json:"applications"`
	Connections []Connection                    `json:"connections"`
}

// MarshalJSON encodes connections as a list since keys are structs.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	apps := s.AppCounts
	if apps == nil {
		apps = map[protocol.AppProtocol]uint64{}
	}
	return json.Marshal(snapshotJSON{
		Observed:    s.Observed,
		Admitted:    s.Admitted,
		Sent:        s.Sent,
		Received:    s.Received,
		Malformed:   s.Malformed,
		AppCounts:   apps,
		Connections: s.ConnectionList(0),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Snapshot{
		Observed:    raw.Observed,
		Admitted:    raw.Admitted,
		Sent:        raw.Sent,
		Received:    raw.Received,
		Malformed:   raw.Malformed,
		AppCounts:   raw.AppCounts,
		Connections: make(map[ConnectionKey]ConnectionInfo, len(raw.Connections)),
	}
	if s.AppCounts == nil {
		s.AppCounts = map[protocol.AppProtocol]uint64{}
	}
	for _, c := range raw.Connections {
		s.Connections[c.ConnectionKey] = c.ConnectionInfo
	}
	return nil
}
