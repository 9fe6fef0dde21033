package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/sniffer/internal/core"
	"firestige.xyz/sniffer/internal/core/decoder"
	"firestige.xyz/sniffer/internal/device"
	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/metrics"
	"firestige.xyz/sniffer/internal/protocol"
	"firestige.xyz/sniffer/internal/runstate"
	"firestige.xyz/sniffer/internal/traffic"
)

// Config wires the guarded objects the capture loop works on.
type Config struct {
	Opener    Opener
	State     *runstate.Controller
	Selection *device.Selection
	Filters   *filter.Store
	Model     *traffic.Model
	Logger    *slog.Logger
	// OnFatal, when set, receives the error that ends Run before the handle
	// is closed.
	OnFatal func(error)
}

// Sniffer is the capture loop. It owns the open Source; everything else is
// shared with the control surface through the guarded objects in Config.
type Sniffer struct {
	opener    Opener
	state     *runstate.Controller
	selection *device.Selection
	filters   *filter.Store
	model     *traffic.Model
	logger    *slog.Logger
	onFatal   func(error)

	src     Source
	decoder *decoder.StandardDecoder
	dev     device.Device
	gen     uint64
}

// NewSniffer creates a capture loop.
func NewSniffer(cfg Config) *Sniffer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sniffer{
		opener:    cfg.Opener,
		state:     cfg.State,
		selection: cfg.Selection,
		filters:   cfg.Filters,
		model:     cfg.Model,
		logger:    logger.With("component", "capture"),
		onFatal:   cfg.OnFatal,
	}
}

// Run captures until the run state becomes Stopped (nil), the device cannot
// be opened (ErrDeviceUnavailable) or the handle is exhausted
// (ErrCaptureClosed). Stop on the run state is the way to end the loop: ctx
// is only checked between reads, so a loop parked in Init or Paused does not
// see a cancellation until the state changes.
func (s *Sniffer) Run(ctx context.Context) error {
	defer s.closeSource()

	err := s.run(ctx)
	if err != nil && s.onFatal != nil {
		s.onFatal(err)
	}
	return err
}

func (s *Sniffer) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.state.Await() == runstate.Stopped {
			s.logger.Info("capture loop stopped")
			return nil
		}

		dev, gen := s.selection.Get()
		if s.src == nil || gen != s.gen {
			if err := s.open(dev, gen); err != nil {
				return err
			}
		}

		data, ci, err := s.src.ReadPacketData()
		if err != nil {
			if errors.Is(err, core.ErrNoPacket) {
				continue
			}
			metrics.CaptureErrorsTotal.WithLabelValues(metrics.ReasonClosed).Inc()
			s.logger.Warn("capture handle closed", "device", s.dev.Name, "error", err)
			if errors.Is(err, core.ErrCaptureClosed) {
				return fmt.Errorf("device %s: %w", s.dev.Name, err)
			}
			return fmt.Errorf("device %s: %w: %v", s.dev.Name, core.ErrCaptureClosed, err)
		}
		if len(data) == 0 {
			continue
		}

		s.handle(data, ci)
	}
}

// open (re)opens the handle on dev. Failure is fatal to the loop.
func (s *Sniffer) open(dev device.Device, gen uint64) error {
	if s.src != nil {
		s.logger.Info("device changed, reopening capture", "from", s.dev.Name, "to", dev.Name)
		s.closeSource()
	}

	if gen == 0 || dev.Name == "" {
		metrics.CaptureErrorsTotal.WithLabelValues(metrics.ReasonOpen).Inc()
		return fmt.Errorf("%w: no device selected", core.ErrDeviceUnavailable)
	}

	src, err := s.opener.Open(dev.Name)
	if err != nil {
		metrics.CaptureErrorsTotal.WithLabelValues(metrics.ReasonOpen).Inc()
		s.logger.Error("failed to open device", "device", dev.Name, "error", err)
		return fmt.Errorf("%w: %s: %v", core.ErrDeviceUnavailable, dev.Name, err)
	}

	link, err := DecoderLinkType(src.LinkType())
	if err != nil {
		_ = src.Close()
		metrics.CaptureErrorsTotal.WithLabelValues(metrics.ReasonOpen).Inc()
		return fmt.Errorf("%w: %s: %v", core.ErrDeviceUnavailable, dev.Name, err)
	}

	s.src = src
	s.decoder = decoder.NewStandardDecoder(link)
	s.dev = dev
	s.gen = gen
	s.logger.Info("capture opened", "device", dev.Name, "link_type", link, "addresses", len(dev.Addresses))
	return nil
}

func (s *Sniffer) closeSource() {
	if s.src == nil {
		return
	}
	if err := s.src.Close(); err != nil {
		s.logger.Warn("failed to close capture handle", "device", s.dev.Name, "error", err)
	}
	s.src = nil
}

// handle decodes, classifies, filters and aggregates one frame.
func (s *Sniffer) handle(data []byte, ci gopacket.CaptureInfo) {
	metrics.PacketsObservedTotal.Inc()

	ts := ci.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	pkt, err := s.decode(core.RawPacket{
		Data:       data,
		Timestamp:  ts,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
	})
	if err != nil {
		metrics.PacketsMalformedTotal.Inc()
		s.model.ObserveMalformed()
		return
	}

	transport := protocol.TransFromIP(pkt.IP.Protocol)
	app := protocol.ClassifyPair(transport, pkt.Transport.SrcPort, pkt.Transport.DstPort)

	if !s.filters.Get().Match(pkt.IP.Version, transport, app) {
		metrics.PacketsFilteredTotal.Inc()
		s.model.Observe()
		return
	}

	s.model.Admit(traffic.Packet{
		Key: traffic.ConnectionKey{
			SrcAddr:   pkt.IP.SrcIP,
			SrcPort:   pkt.Transport.SrcPort,
			DstAddr:   pkt.IP.DstIP,
			DstPort:   pkt.Transport.DstPort,
			Transport: transport,
		},
		Length:    pkt.Length(),
		Timestamp: pkt.Timestamp,
		App:       app,
		Outbound:  s.dev.HasAddress(pkt.IP.SrcIP),
	})
	metrics.PacketsAdmittedTotal.WithLabelValues(app.String()).Inc()
}

// decode turns a decoder panic into a malformed frame so one bad packet
// cannot take the loop down.
func (s *Sniffer) decode(raw core.RawPacket) (pkt core.DecodedPacket, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("decoder panic", "device", s.dev.Name, "len", len(raw.Data), "panic", r)
			err = fmt.Errorf("%w: decoder panic: %v", core.ErrPacketTooShort, r)
		}
	}()
	return s.decoder.Decode(raw)
}
