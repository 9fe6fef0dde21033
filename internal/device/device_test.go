package device

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket/pcap"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sniffer/internal/core"
)

type fakeLister struct {
	mu      sync.Mutex
	calls   int
	devices []Device
	err     error
}

func (f *fakeLister) List() ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.devices, nil
}

func TestSelectionGeneration(t *testing.T) {
	s := NewSelection(Device{})
	d, gen := s.Get()
	assert.Equal(t, uint64(0), gen)
	assert.Empty(t, d.Name)

	s.Select(Device{Name: "eth0"})
	d, gen = s.Get()
	assert.Equal(t, "eth0", d.Name)
	assert.Equal(t, uint64(1), gen)

	s.Select(Device{Name: "eth0"})
	_, gen = s.Get()
	assert.Equal(t, uint64(2), gen, "reselecting the same device still bumps the generation")
}

func TestSelectionInitial(t *testing.T) {
	s := NewSelection(Device{Name: "lo"})
	d, gen := s.Get()
	assert.Equal(t, "lo", d.Name)
	assert.Equal(t, uint64(1), gen)
}

func TestSelectionCopiesAddresses(t *testing.T) {
	addrs := []netip.Addr{netip.MustParseAddr("10.0.0.1")}
	s := NewSelection(Device{})
	s.Select(Device{Name: "eth0", Addresses: addrs})

	addrs[0] = netip.MustParseAddr("10.9.9.9")
	d, _ := s.Get()
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), d.Addresses[0])
}

func TestDeviceHasAddress(t *testing.T) {
	d := Device{Addresses: []netip.Addr{netip.MustParseAddr("192.168.1.10"), netip.MustParseAddr("fe80::1")}}
	assert.True(t, d.HasAddress(netip.MustParseAddr("192.168.1.10")))
	assert.True(t, d.HasAddress(netip.MustParseAddr("::ffff:192.168.1.10")))
	assert.True(t, d.HasAddress(netip.MustParseAddr("fe80::1")))
	assert.False(t, d.HasAddress(netip.MustParseAddr("192.168.1.11")))
	assert.False(t, Device{}.HasAddress(netip.MustParseAddr("192.168.1.10")))
}

func TestFind(t *testing.T) {
	l := &fakeLister{devices: []Device{{Name: "eth0"}, {Name: "wlan0"}}}

	d, err := Find(l, "wlan0")
	require.NoError(t, err)
	assert.Equal(t, "wlan0", d.Name)

	_, err = Find(l, "eth9")
	assert.ErrorIs(t, err, core.ErrDeviceNotFound)

	boom := errors.New("boom")
	_, err = Find(&fakeLister{err: boom}, "eth0")
	assert.ErrorIs(t, err, boom)
}

func TestCachedLister(t *testing.T) {
	inner := &fakeLister{devices: []Device{{Name: "eth0", Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.1")}}}}
	c := NewCachedLister(inner, time.Minute)

	first, err := c.List()
	require.NoError(t, err)
	first[0].Addresses[0] = netip.MustParseAddr("1.1.1.1")

	second, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), second[0].Addresses[0])

	c.Invalidate()
	_, err = c.List()
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedListerDoesNotCacheErrors(t *testing.T) {
	inner := &fakeLister{err: errors.New("permission denied")}
	c := NewCachedLister(inner, time.Minute)

	_, err := c.List()
	assert.Error(t, err)
	_, err = c.List()
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestNewLister(t *testing.T) {
	l, err := NewLister("pcap", 0)
	require.NoError(t, err)
	assert.IsType(t, PcapLister{}, l)

	l, err = NewLister("system", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &CachedLister{}, l)

	_, err = NewLister("netlink", 0)
	assert.Error(t, err)
}

func TestFromPcap(t *testing.T) {
	d := fromPcap(pcap.Interface{
		Name:        "eth0",
		Description: "Ethernet",
		Addresses: []pcap.InterfaceAddress{
			{IP: net.ParseIP("192.168.1.10")},
			{IP: net.ParseIP("fe80::1")},
			{IP: nil},
		},
	})
	assert.Equal(t, "eth0", d.Name)
	assert.Equal(t, "Ethernet", d.Description)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.10"), netip.MustParseAddr("fe80::1")}, d.Addresses)
}

func TestFromSystem(t *testing.T) {
	d := fromSystem(psnet.InterfaceStat{
		Name:         "eth0",
		HardwareAddr: "aa:bb:cc:dd:ee:ff",
		Flags:        []string{"up", "broadcast"},
		Addrs: psnet.InterfaceAddrList{
			{Addr: "192.168.1.10/24"},
			{Addr: "fe80::1/64"},
			{Addr: "10.0.0.1"},
			{Addr: "garbage"},
		},
	})
	assert.Equal(t, "eth0", d.Name)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff broadcast,up", d.Description)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("192.168.1.10"),
		netip.MustParseAddr("fe80::1"),
		netip.MustParseAddr("10.0.0.1"),
	}, d.Addresses)
}
