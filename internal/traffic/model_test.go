package traffic

import (
	"encoding/json"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sniffer/internal/protocol"
)

func key(src string, sport uint16, dst string, dport uint16, t protocol.TransProtocol) ConnectionKey {
	return ConnectionKey{
		SrcAddr:   netip.MustParseAddr(src),
		SrcPort:   sport,
		DstAddr:   netip.MustParseAddr(dst),
		DstPort:   dport,
		Transport: t,
	}
}

func TestModelAdmit(t *testing.T) {
	m := NewModel()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	k := key("10.0.0.1", 51000, "10.0.0.2", 80, protocol.TCP)

	created := m.Admit(Packet{Key: k, Length: 100, Timestamp: base, App: protocol.HTTP, Outbound: true})
	assert.True(t, created)
	created = m.Admit(Packet{Key: k, Length: 50, Timestamp: base.Add(time.Second), App: protocol.HTTP})
	assert.False(t, created)

	s := m.Snapshot()
	assert.Equal(t, uint64(2), s.Observed)
	assert.Equal(t, uint64(2), s.Admitted)
	assert.Equal(t, uint64(1), s.Sent)
	assert.Equal(t, uint64(1), s.Received)
	require.Len(t, s.Connections, 1)

	info := s.Connections[k]
	assert.Equal(t, uint64(150), info.Bytes)
	assert.Equal(t, uint64(2), info.Packets)
	assert.Equal(t, uint64(1), info.Sent)
	assert.Equal(t, uint64(1), info.Received)
	assert.Equal(t, base, info.FirstSeen)
	assert.Equal(t, base.Add(time.Second), info.LastSeen)
	assert.Equal(t, protocol.HTTP, info.App)
	assert.Equal(t, uint64(2), s.AppCounts[protocol.HTTP])
}

func TestModelDirectionalKeys(t *testing.T) {
	m := NewModel()
	k := key("10.0.0.1", 51000, "10.0.0.2", 80, protocol.TCP)

	m.Admit(Packet{Key: k, Length: 10, App: protocol.HTTP, Outbound: true})
	m.Admit(Packet{Key: k.Reverse(), Length: 10, App: protocol.HTTP})

	assert.Len(t, m.Snapshot().Connections, 2)
}

func TestModelMergedDirections(t *testing.T) {
	m := NewModel(WithMergedDirections())
	k := key("10.0.0.2", 80, "10.0.0.1", 51000, protocol.TCP)

	m.Admit(Packet{Key: k, Length: 10, App: protocol.HTTP})
	m.Admit(Packet{Key: k.Reverse(), Length: 20, App: protocol.HTTP, Outbound: true})

	s := m.Snapshot()
	require.Len(t, s.Connections, 1)
	info, ok := s.Connections[k.Canonical()]
	require.True(t, ok)
	assert.Equal(t, uint64(30), info.Bytes)
	assert.Equal(t, uint64(1), info.Sent)
	assert.Equal(t, uint64(1), info.Received)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), k.Canonical().SrcAddr)
}

func TestModelObserveOnlyTouchesObserved(t *testing.T) {
	m := NewModel()
	m.Admit(Packet{Key: key("10.0.0.1", 1, "10.0.0.2", 53, protocol.UDP), Length: 60, App: protocol.DNS})
	before := m.Snapshot()

	m.Observe()
	after := m.Snapshot()

	assert.Equal(t, before.Observed+1, after.Observed)
	before.Observed = after.Observed
	assert.Equal(t, before, after)
}

func TestModelObserveMalformed(t *testing.T) {
	m := NewModel()
	m.ObserveMalformed()

	s := m.Snapshot()
	assert.Equal(t, uint64(1), s.Observed)
	assert.Equal(t, uint64(1), s.Malformed)
	assert.Zero(t, s.Admitted)
	assert.Empty(t, s.Connections)
}

func TestModelReset(t *testing.T) {
	m := NewModel()
	m.Admit(Packet{Key: key("::1", 1, "::1", 2, protocol.TCP), Length: 1, App: protocol.Other})
	m.Observe()
	m.ObserveMalformed()

	m.Reset()
	s := m.Snapshot()
	assert.Zero(t, s.Observed)
	assert.Zero(t, s.Admitted)
	assert.Zero(t, s.Sent)
	assert.Zero(t, s.Received)
	assert.Zero(t, s.Malformed)
	assert.Empty(t, s.Connections)
	assert.Empty(t, s.AppCounts)
	assert.Zero(t, m.Len())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := NewModel()
	k := key("10.0.0.1", 1, "10.0.0.2", 2, protocol.UDP)
	m.Admit(Packet{Key: k, Length: 1, App: protocol.Other})

	s := m.Snapshot()
	s.AppCounts[protocol.Other] = 99
	delete(s.Connections, k)

	again := m.Snapshot()
	assert.Equal(t, uint64(1), again.AppCounts[protocol.Other])
	assert.Len(t, again.Connections, 1)
}

func TestModelConcurrentInvariants(t *testing.T) {
	m := NewModel()
	apps := []protocol.AppProtocol{protocol.HTTP, protocol.DNS, protocol.SSH, protocol.Other}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				if i%3 == 0 {
					m.Observe()
					continue
				}
				m.Admit(Packet{
					Key:      key("10.0.0.1", uint16(i%50), "10.0.0.2", 80, protocol.TCP),
					Length:   64,
					App:      apps[(w+i)%len(apps)],
					Outbound: i%2 == 0,
				})
			}
		}(w)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := m.Snapshot()
			assert.Equal(t, s.Admitted, s.AppTotal())
			assert.Equal(t, s.Admitted, s.Sent+s.Received)
			assert.GreaterOrEqual(t, s.Observed, s.Admitted)
		}
	}()

	resetDone := make(chan struct{})
	go func() {
		defer close(resetDone)
		for i := 0; i < 5; i++ {
			m.Reset()
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	<-resetDone
	close(stop)
	<-readerDone

	s := m.Snapshot()
	assert.Equal(t, s.Admitted, s.AppTotal())
}

func TestConnectionList(t *testing.T) {
	s := Snapshot{Connections: map[ConnectionKey]ConnectionInfo{
		key("10.0.0.1", 1, "10.0.0.2", 2, protocol.TCP): {Bytes: 10, Packets: 1},
		key("10.0.0.1", 3, "10.0.0.2", 4, protocol.TCP): {Bytes: 300, Packets: 2},
		key("10.0.0.1", 5, "10.0.0.2", 6, protocol.TCP): {Bytes: 20, Packets: 5},
	}}

	list := s.ConnectionList(0)
	require.Len(t, list, 3)
	assert.Equal(t, uint64(300), list[0].Bytes)
	assert.Equal(t, uint64(20), list[1].Bytes)
	assert.Equal(t, uint64(10), list[2].Bytes)

	assert.Len(t, s.ConnectionList(2), 2)
}

func TestSnapshotJSON(t *testing.T) {
	m := NewModel()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	m.Admit(Packet{Key: key("192.168.1.5", 40000, "8.8.8.8", 53, protocol.UDP), Length: 70, Timestamp: ts, App: protocol.DNS, Outbound: true})
	m.Observe()

	s := m.Snapshot()
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)
}

func TestConnectionKeyString(t *testing.T) {
	k := key("2001:db8::1", 443, "2001:db8::2", 50000, protocol.TCP)
	assert.Equal(t, "TCP [2001:db8::1]:443 -> [2001:db8::2]:50000", k.String())
}
