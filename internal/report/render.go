// Package report renders traffic snapshots and ships them to sinks.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"firestige.xyz/sniffer/internal/protocol"
	"firestige.xyz/sniffer/internal/traffic"
)

// ProtocolShare is one application protocol's share of admitted packets.
type ProtocolShare struct {
	App     protocol.AppProtocol `json:"application"`
	Packets uint64               `json:"packets"`
	Percent uint64               `json:"percent"`
}

// String renders "<label>: <count> packets (<pct>%)".
func (p ProtocolShare) String() string {
	return fmt.Sprintf("%s: %d packets (%d%%)", p.App, p.Packets, p.Percent)
}

// Shares computes per-protocol shares, largest first with label order
// breaking ties. Percentages are floored. Nothing is returned when no
// packet was admitted.
func Shares(s traffic.Snapshot) []ProtocolShare {
	if s.Admitted == 0 {
		return nil
	}
	shares := make([]ProtocolShare, 0, len(s.AppCounts))
	for app, count := range s.AppCounts {
		if count == 0 {
			continue
		}
		shares = append(shares, ProtocolShare{
			App:     app,
			Packets: count,
			Percent: count * 100 / s.Admitted,
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Packets != shares[j].Packets {
			return shares[i].Packets > shares[j].Packets
		}
		return shares[i].App < shares[j].App
	})
	return shares
}

// RenderProtocols returns one line per protocol with a non-zero count.
func RenderProtocols(s traffic.Snapshot) []string {
	shares := Shares(s)
	lines := make([]string, 0, len(shares))
	for _, share := range shares {
		lines = append(lines, share.String())
	}
	return lines
}

// Header describes the capture the snapshot was taken from.
type Header struct {
	GeneratedAt time.Time `json:"generated_at"`
	Device      string    `json:"device"`
	State       string    `json:"state"`
	// Error is the fault that ended the capture loop, if any.
	Error string `json:"error,omitempty"`
}

// Options controls the full text rendering.
type Options struct {
	// MaxConnections caps the connection table; zero renders every connection.
	MaxConnections int
}

const timeLayout = "2006-01-02 15:04:05"

// Render produces the full human-readable report.
func Render(h Header, s traffic.Snapshot, opts Options) string {
	var b bytes.Buffer

	fmt.Fprintf(&b, "sniffer report generated at %s\n", h.GeneratedAt.Format(time.RFC3339))
	device := h.Device
	if device == "" {
		device = "-"
	}
	fmt.Fprintf(&b, "device: %s  state: %s\n", device, h.State)
	if h.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", h.Error)
	}
	b.WriteByte('\n')

	fmt.Fprintf(&b, "packets observed:  %d\n", s.Observed)
	fmt.Fprintf(&b, "packets admitted:  %d\n", s.Admitted)
	fmt.Fprintf(&b, "packets sent:      %d\n", s.Sent)
	fmt.Fprintf(&b, "packets received:  %d\n", s.Received)
	fmt.Fprintf(&b, "packets malformed: %d\n", s.Malformed)

	if lines := RenderProtocols(s); len(lines) > 0 {
		b.WriteString("\napplication protocols:\n")
		for _, line := range lines {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	conns := s.ConnectionList(opts.MaxConnections)
	if len(conns) == 0 {
		return b.String()
	}

	if len(conns) < len(s.Connections) {
		fmt.Fprintf(&b, "\nconnections (top %d of %d by bytes):\n", len(conns), len(s.Connections))
	} else {
		fmt.Fprintf(&b, "\nconnections (%d):\n", len(conns))
	}

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  SOURCE\tDESTINATION\tTRANSPORT\tAPPLICATION\tPACKETS\tBYTES\tSENT\tRECEIVED\tFIRST SEEN\tLAST SEEN")
	for _, c := range conns {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			endpoint(c.SrcAddr.String(), c.SrcPort, c.Transport),
			endpoint(c.DstAddr.String(), c.DstPort, c.Transport),
			c.Transport, c.App, c.Packets, c.Bytes, c.Sent, c.Received,
			c.FirstSeen.Format(timeLayout), c.LastSeen.Format(timeLayout))
	}
	_ = tw.Flush()

	return b.String()
}

func endpoint(addr string, port uint16, t protocol.TransProtocol) string {
	if t != protocol.TCP && t != protocol.UDP {
		return addr
	}
	if strings.Contains(addr, ":") {
		return fmt.Sprintf("[%s]:%d", addr, port)
	}
	return fmt.Sprintf("%s:%d", addr, port)
}
