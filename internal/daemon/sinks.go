package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"firestige.xyz/sniffer/internal/config"
	"firestige.xyz/sniffer/internal/report"
)

// buildSinks creates the configured report sinks. Network sinks that cannot
// connect are skipped with a warning so the daemon still reports locally.
func buildSinks(cfg config.ReportConfig) ([]report.Sink, error) {
	var sinks []report.Sink
	for _, name := range cfg.Sinks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "console":
			sinks = append(sinks, report.NewConsoleSink(os.Stdout))
		case "file":
			s, err := report.NewFileSink(cfg.Path)
			if err != nil {
				closeSinks(sinks)
				return nil, fmt.Errorf("file sink: %w", err)
			}
			sinks = append(sinks, s)
		case "kafka":
			s, err := report.NewKafkaSink(report.KafkaConfig{
				Brokers:     cfg.Kafka.Brokers,
				Topic:       cfg.Kafka.Topic,
				Compression: cfg.Kafka.Compression,
			})
			if err != nil {
				closeSinks(sinks)
				return nil, fmt.Errorf("kafka sink: %w", err)
			}
			sinks = append(sinks, s)
		case "nats":
			s, err := report.NewNATSSink(report.NATSConfig{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject})
			if err != nil {
				slog.Warn("nats sink unavailable, skipping", "url", cfg.NATS.URL, "error", err)
				continue
			}
			sinks = append(sinks, s)
		default:
			closeSinks(sinks)
			return nil, fmt.Errorf("unknown report sink %q", name)
		}
	}
	return sinks, nil
}

func closeSinks(sinks []report.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			slog.Warn("failed to close report sink", "sink", s.Name(), "error", err)
		}
	}
}
