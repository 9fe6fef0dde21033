//go:build linux

package capture

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/sniffer/internal/core"
)

const defaultBufferSizeMB = 8

type afpacketSource struct {
	tpacket *afpacket.TPacket
}

func openAFPacket(device string, opts Options) (Source, error) {
	bufferMB := opts.BufferSizeMB
	if bufferMB <= 0 {
		bufferMB = defaultBufferSizeMB
	}
	frameSize, blockSize, numBlocks, err := recomputeSize(bufferMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	// "any" binds the socket to every interface.
	iface := device
	if iface == "any" {
		iface = ""
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.ReadTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open tpacket: %w", err)
	}

	if opts.BPFFilter != "" {
		if err := setBPF(tp, frameSize, opts.BPFFilter); err != nil {
			tp.Close()
			return nil, err
		}
	}

	return &afpacketSource{tpacket: tp}, nil
}

// setBPF compiles expr with libpcap and loads it into the socket.
func setBPF(tp *afpacket.TPacket, snapLen int, expr string) error {
	compiled, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return fmt.Errorf("compile bpf filter %q: %w", expr, err)
	}
	raw := make([]bpf.RawInstruction, len(compiled))
	for i, inst := range compiled {
		raw[i] = bpf.RawInstruction{
			Op: inst.Code,
			Jt: inst.Jt,
			Jf: inst.Jf,
			K:  inst.K,
		}
	}
	if err := tp.SetBPF(raw); err != nil {
		return fmt.Errorf("set bpf filter: %w", err)
	}
	return nil
}

func (s *afpacketSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.tpacket.ReadPacketData()
	if err != nil {
		return nil, ci, readError(err)
	}
	return data, ci, nil
}

// readError maps a tpacket read error onto the Source contract. Only a poll
// timeout is retried; a poll error (POLLERR, interface gone) ends the capture.
func readError(err error) error {
	switch {
	case errors.Is(err, afpacket.ErrTimeout):
		return core.ErrNoPacket
	case errors.Is(err, afpacket.ErrPoll):
		return fmt.Errorf("%w: poll: %v", core.ErrCaptureClosed, err)
	default:
		return fmt.Errorf("%w: %v", core.ErrCaptureClosed, err)
	}
}

func (s *afpacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (s *afpacketSource) Close() error {
	s.tpacket.Close()
	return nil
}
