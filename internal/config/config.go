// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/sniffer/internal/core"
	"firestige.xyz/sniffer/internal/filter"
	"firestige.xyz/sniffer/internal/protocol"
)

// GlobalConfig represents the top-level static configuration.
// Maps to the `sniffer:` root key in YAML.
type GlobalConfig struct {
	Control ControlConfig `mapstructure:"control"`
	Capture CaptureConfig `mapstructure:"capture"`
	Filters FiltersConfig `mapstructure:"filters"`
	Report  ReportConfig  `mapstructure:"report"`
	Devices DevicesConfig `mapstructure:"devices"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
	State   StateConfig   `mapstructure:"state"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string     `mapstructure:"socket"`
	PIDFile string     `mapstructure:"pid_file"`
	HTTP    HTTPConfig `mapstructure:"http"`
}

// HTTPConfig configures the optional HTTP control API.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ─── Capture ───

// CaptureConfig configures the live capture source.
type CaptureConfig struct {
	Device          string        `mapstructure:"device"`
	Source          string        `mapstructure:"source"` // pcap | afpacket
	SnapLen         int           `mapstructure:"snap_len"`
	Promiscuous     bool          `mapstructure:"promiscuous"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	BPFFilter       string        `mapstructure:"bpf_filter"`
	MergeDirections bool          `mapstructure:"merge_directions"`
	BufferSizeMB    int           `mapstructure:"buffer_size_mb"` // afpacket ring size
	Autostart       bool          `mapstructure:"autostart"`
}

// FiltersConfig holds the initial filter selections as text.
type FiltersConfig struct {
	IP          string `mapstructure:"ip"`          // any | ipv4 | ipv6
	Transport   string `mapstructure:"transport"`   // any | tcp | udp
	Application string `mapstructure:"application"` // any | HTTP | DNS | ...
}

// ─── Report ───

// ReportConfig configures the periodic report writer and its sinks.
type ReportConfig struct {
	Interval       time.Duration     `mapstructure:"interval"`
	Sinks          []string          `mapstructure:"sinks"` // console | file | kafka | nats
	Path           string            `mapstructure:"path"`
	MaxConnections int               `mapstructure:"max_connections"`
	Kafka          KafkaReportConfig `mapstructure:"kafka"`
	NATS           NATSReportConfig  `mapstructure:"nats"`
}

// KafkaReportConfig configures the Kafka report sink.
type KafkaReportConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	Compression string   `mapstructure:"compression"`
}

// NATSReportConfig configures the NATS report sink.
type NATSReportConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// ─── Devices ───

// DevicesConfig selects how capture devices are enumerated.
type DevicesConfig struct {
	Lister   string        `mapstructure:"lister"` // pcap | system
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Persisted control state ───

// StateConfig controls persistence of the selected device and filters.
type StateConfig struct {
	Enabled bool   `mapstructure:"enabled"` // false = disable (dev/test)
	DataDir string `mapstructure:"data_dir"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `sniffer: ...`.
type configRoot struct {
	Sniffer GlobalConfig `mapstructure:"sniffer"`
}

// Load loads configuration from file.
// The YAML file uses `sniffer:` as root key; env vars use the SNIFFER_ prefix
// (e.g. SNIFFER_LOG_LEVEL). An empty path loads defaults and env only.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "sniffer.log.level" maps to env "SNIFFER_LOG_LEVEL" via the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Sniffer

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "sniffer." prefix so AutomaticEnv can resolve them.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("sniffer.control.socket", "/var/run/sniffer.sock")
	v.SetDefault("sniffer.control.pid_file", "/var/run/sniffer.pid")
	v.SetDefault("sniffer.control.http.enabled", false)
	v.SetDefault("sniffer.control.http.listen", "127.0.0.1:8090")

	// Capture defaults
	v.SetDefault("sniffer.capture.device", "")
	v.SetDefault("sniffer.capture.source", "pcap")
	v.SetDefault("sniffer.capture.snap_len", 65535)
	v.SetDefault("sniffer.capture.promiscuous", true)
	v.SetDefault("sniffer.capture.read_timeout", "500ms")
	v.SetDefault("sniffer.capture.bpf_filter", "")
	v.SetDefault("sniffer.capture.merge_directions", false)
	v.SetDefault("sniffer.capture.buffer_size_mb", 8)
	v.SetDefault("sniffer.capture.autostart", false)

	// Filter defaults
	v.SetDefault("sniffer.filters.ip", "any")
	v.SetDefault("sniffer.filters.transport", "any")
	v.SetDefault("sniffer.filters.application", "any")

	// Report defaults
	v.SetDefault("sniffer.report.interval", "1s")
	v.SetDefault("sniffer.report.sinks", []string{"file"})
	v.SetDefault("sniffer.report.path", "/var/lib/sniffer/report.txt")
	v.SetDefault("sniffer.report.max_connections", 50)
	v.SetDefault("sniffer.report.kafka.topic", "sniffer-reports")
	v.SetDefault("sniffer.report.kafka.compression", "snappy")
	v.SetDefault("sniffer.report.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("sniffer.report.nats.subject", "sniffer.reports")

	// Device listing defaults
	v.SetDefault("sniffer.devices.lister", "pcap")
	v.SetDefault("sniffer.devices.cache_ttl", "5s")

	// Metrics defaults
	v.SetDefault("sniffer.metrics.enabled", true)
	v.SetDefault("sniffer.metrics.listen", ":9091")
	v.SetDefault("sniffer.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("sniffer.log.level", "info")
	v.SetDefault("sniffer.log.format", "json")
	v.SetDefault("sniffer.log.outputs.file.enabled", false)
	v.SetDefault("sniffer.log.outputs.file.path", "/var/log/sniffer/sniffer.log")
	v.SetDefault("sniffer.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("sniffer.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("sniffer.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("sniffer.log.outputs.file.rotation.compress", true)

	// State persistence defaults
	v.SetDefault("sniffer.state.enabled", true)
	v.SetDefault("sniffer.state.data_dir", "/var/lib/sniffer")
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validSources = map[string]bool{"pcap": true, "afpacket": true}
	validListers = map[string]bool{"pcap": true, "system": true}
	validSinks   = map[string]bool{"console": true, "file": true, "kafka": true, "nats": true}
)

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Every failure wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Capture validation ──
	if cfg.Capture.Source == "" {
		cfg.Capture.Source = "pcap"
	}
	if !validSources[cfg.Capture.Source] {
		return invalid("unsupported capture.source: %s (must be pcap/afpacket)", cfg.Capture.Source)
	}
	if cfg.Capture.SnapLen < 0 || cfg.Capture.SnapLen > 262144 {
		return invalid("capture.snap_len out of range: %d", cfg.Capture.SnapLen)
	}
	if cfg.Capture.ReadTimeout < 0 {
		return invalid("capture.read_timeout must not be negative")
	}

	// ── Filters ──
	if _, err := cfg.InitialFilters(); err != nil {
		return err
	}

	// ── Report validation ──
	if cfg.Report.Interval <= 0 {
		return invalid("report.interval must be positive")
	}
	if cfg.Report.MaxConnections < 0 {
		return invalid("report.max_connections must not be negative")
	}
	seen := make(map[string]bool, len(cfg.Report.Sinks))
	for _, s := range cfg.Report.Sinks {
		name := strings.ToLower(strings.TrimSpace(s))
		if !validSinks[name] {
			return invalid("unknown report sink: %s (must be console/file/kafka/nats)", s)
		}
		seen[name] = true
	}
	if seen["file"] && cfg.Report.Path == "" {
		return invalid("report.path is required for the file sink")
	}
	if seen["kafka"] {
		if len(cfg.Report.Kafka.Brokers) == 0 {
			return invalid("report.kafka.brokers is required for the kafka sink")
		}
		if cfg.Report.Kafka.Topic == "" {
			return invalid("report.kafka.topic is required for the kafka sink")
		}
	}
	if seen["nats"] && (cfg.Report.NATS.URL == "" || cfg.Report.NATS.Subject == "") {
		return invalid("report.nats.url and report.nats.subject are required for the nats sink")
	}

	// ── Devices ──
	if cfg.Devices.Lister == "" {
		cfg.Devices.Lister = "pcap"
	}
	if !validListers[cfg.Devices.Lister] {
		return invalid("unsupported devices.lister: %s (must be pcap/system)", cfg.Devices.Lister)
	}

	// ── Control / state ──
	if cfg.Control.Socket == "" {
		return invalid("control.socket is required")
	}
	if cfg.Control.HTTP.Enabled && cfg.Control.HTTP.Listen == "" {
		return invalid("control.http.listen is required when control.http.enabled=true")
	}
	if cfg.State.Enabled && cfg.State.DataDir == "" {
		return invalid("state.data_dir is required when state.enabled=true")
	}

	return nil
}

// InitialFilters parses the configured filter selections.
func (cfg *GlobalConfig) InitialFilters() (filter.Filters, error) {
	var f filter.Filters
	var err error
	if f.IP, err = filter.ParseIPVersion(cfg.Filters.IP); err != nil {
		return f, invalid("filters.ip: %v", err)
	}
	if f.Transport, err = protocol.ParseTransProtocol(cfg.Filters.Transport); err != nil {
		return f, invalid("filters.transport: %v", err)
	}
	if f.App, err = protocol.ParseAppProtocol(cfg.Filters.Application); err != nil {
		return f, invalid("filters.application: %v", err)
	}
	return f, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
