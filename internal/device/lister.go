package device

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/patrickmn/go-cache"
	psnet "github.com/shirou/gopsutil/v3/net"

	"firestige.xyz/sniffer/internal/core"
)

// Lister enumerates capture devices.
type Lister interface {
	List() ([]Device, error)
}

// Find resolves name through l.
func Find(l Lister, name string) (Device, error) {
	devices, err := l.List()
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", core.ErrDeviceNotFound, name)
}

// NewLister returns the lister for kind ("pcap" or "system"), wrapped in a
// cache when ttl is positive.
func NewLister(kind string, ttl time.Duration) (Lister, error) {
	var l Lister
	switch kind {
	case "", "pcap":
		l = PcapLister{}
	case "system":
		l = SystemLister{}
	default:
		return nil, fmt.Errorf("unknown device lister %q", kind)
	}
	if ttl > 0 {
		l = NewCachedLister(l, ttl)
	}
	return l, nil
}

// PcapLister lists devices libpcap can open, including pseudo devices such as "any".
type PcapLister struct{}

// List implements Lister.
func (PcapLister) List() ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("find pcap devices: %w", err)
	}
	devices := make([]Device, 0, len(ifs))
	for _, ifc := range ifs {
		devices = append(devices, fromPcap(ifc))
	}
	return devices, nil
}

func fromPcap(ifc pcap.Interface) Device {
	d := Device{Name: ifc.Name, Description: ifc.Description}
	for _, a := range ifc.Addresses {
		if addr, ok := addrFromIP(a.IP); ok {
			d.Addresses = append(d.Addresses, addr)
		}
	}
	return d
}

func addrFromIP(ip net.IP) (netip.Addr, bool) {
	if ip == nil {
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// SystemLister lists OS network interfaces through gopsutil. It works
// without libpcap privileges and describes each device by flags and MAC.
type SystemLister struct{}

// List implements Lister.
func (SystemLister) List() ([]Device, error) {
	ifs, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get interfaces: %w", err)
	}
	devices := make([]Device, 0, len(ifs))
	for _, ifc := range ifs {
		devices = append(devices, fromSystem(ifc))
	}
	return devices, nil
}

func fromSystem(ifc psnet.InterfaceStat) Device {
	d := Device{Name: ifc.Name}

	var desc []string
	if ifc.HardwareAddr != "" {
		desc = append(desc, ifc.HardwareAddr)
	}
	if len(ifc.Flags) > 0 {
		flags := append([]string(nil), ifc.Flags...)
		sort.Strings(flags)
		desc = append(desc, strings.Join(flags, ","))
	}
	d.Description = strings.Join(desc, " ")

	for _, a := range ifc.Addrs {
		prefix, err := netip.ParsePrefix(a.Addr)
		if err != nil {
			addr, err := netip.ParseAddr(a.Addr)
			if err != nil {
				slog.Debug("skip unparsable interface address", "interface", ifc.Name, "addr", a.Addr)
				continue
			}
			d.Addresses = append(d.Addresses, addr.Unmap())
			continue
		}
		d.Addresses = append(d.Addresses, prefix.Addr().Unmap())
	}
	return d
}

const cacheKey = "devices"

// CachedLister memoizes another lister for a TTL.
type CachedLister struct {
	next  Lister
	ttl   time.Duration
	cache *cache.Cache
}

// NewCachedLister wraps next.
func NewCachedLister(next Lister, ttl time.Duration) *CachedLister {
	return &CachedLister{
		next:  next,
		ttl:   ttl,
		cache: cache.New(ttl, 2*ttl),
	}
}

// List implements Lister. Errors are not cached.
func (c *CachedLister) List() ([]Device, error) {
	if cached, found := c.cache.Get(cacheKey); found {
		return cloneAll(cached.([]Device)), nil
	}
	devices, err := c.next.List()
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, cloneAll(devices), c.ttl)
	return devices, nil
}

// Invalidate drops the cached list.
func (c *CachedLister) Invalidate() {
	c.cache.Flush()
}

func cloneAll(devices []Device) []Device {
	out := make([]Device, len(devices))
	for i, d := range devices {
		out[i] = d.clone()
	}
	return out
}
