package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	URL     string
	Subject string
}

type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes each report as a JSON document on a subject.
type NATSSink struct {
	conn    publisher
	subject string
}

// NewNATSSink connects to the NATS server.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats sink requires a subject")
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("sniffer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	slog.Info("connected to nats", "url", url, "subject", cfg.Subject)
	return &NATSSink{conn: nc, subject: cfg.Subject}, nil
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats" }

// Write implements Sink.
func (s *NATSSink) Write(_ context.Context, r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("nats publish to %s: %w", s.subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
