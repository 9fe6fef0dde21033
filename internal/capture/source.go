// Package capture reads frames from a live device and feeds the traffic model.
package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/sniffer/internal/core"
	"firestige.xyz/sniffer/internal/core/decoder"
)

// Source is an open capture handle.
// ReadPacketData returns core.ErrNoPacket when the read timeout expires and
// core.ErrCaptureClosed once the handle can deliver no more frames.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close() error
}

// Opener opens a Source on a named device.
type Opener interface {
	Open(device string) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(device string) (Source, error)

// Open implements Opener.
func (f OpenerFunc) Open(device string) (Source, error) {
	return f(device)
}

// Options configures live capture handles.
type Options struct {
	SnapLen      int
	Promiscuous  bool
	ReadTimeout  time.Duration
	BPFFilter    string
	BufferSizeMB int
}

const (
	defaultSnapLen     = 65535
	defaultReadTimeout = 500 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.SnapLen <= 0 {
		o.SnapLen = defaultSnapLen
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	return o
}

// NewOpener returns the opener for kind ("pcap" or "afpacket").
func NewOpener(kind string, opts Options) (Opener, error) {
	opts = opts.withDefaults()
	switch kind {
	case "", "pcap":
		return OpenerFunc(func(dev string) (Source, error) {
			return openPcap(dev, opts)
		}), nil
	case "afpacket":
		return OpenerFunc(func(dev string) (Source, error) {
			return openAFPacket(dev, opts)
		}), nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", kind)
	}
}

// DecoderLinkType maps a handle's link type to the framing the decoder understands.
func DecoderLinkType(lt layers.LinkType) (decoder.LinkType, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return decoder.LinkEthernet, nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6, 12:
		// 12 is DLT_RAW on OpenBSD
		return decoder.LinkRaw, nil
	case layers.LinkTypeLinuxSLL:
		return decoder.LinkLinuxSLL, nil
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return decoder.LinkNull, nil
	default:
		return 0, fmt.Errorf("%w: %s", core.ErrUnsupportedLinkType, lt)
	}
}
