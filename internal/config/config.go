package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultAddr is the default TCP address the coordinator listens on.
	DefaultAddr = ":2052"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 512
	// DefaultOutboundQueueSize bounds each connection's private delivery queue.
	DefaultOutboundQueueSize = 256
	// DefaultHandshakeTimeout bounds how long a connection may sit unauthenticated.
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultPersistWorkers sizes the write-behind persistence pool.
	DefaultPersistWorkers = 4

	// DefaultLogLevel controls verbosity for coordinator logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "coordinator.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultJournalSnapshotInterval controls how often full-state snapshots are journaled.
	DefaultJournalSnapshotInterval = 5 * time.Minute
)

// Config captures all runtime tunables for the coordination server.
type Config struct {
	Address           string        `yaml:"address"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	MaxPayloadBytes   int64         `yaml:"max_payload_bytes"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	MaxClients        int           `yaml:"max_clients"`
	OutboundQueueSize int           `yaml:"outbound_queue_size"`
	PersistWorkers    int           `yaml:"persist_workers"`
	TLSCertPath       string        `yaml:"tls_cert"`
	TLSKeyPath        string        `yaml:"tls_key"`
	AdminToken        string        `yaml:"admin_token"`
	AuthSecret        string        `yaml:"auth_secret"`
	Logging           LoggingConfig `yaml:"logging"`
	Journal           JournalConfig `yaml:"journal"`
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// JournalConfig controls the change-event audit journal.
type JournalConfig struct {
	Path             string        `yaml:"path"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

func defaults() *Config {
	return &Config{
		Address:           DefaultAddr,
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		PingInterval:      DefaultPingInterval,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		MaxClients:        DefaultMaxClients,
		OutboundQueueSize: DefaultOutboundQueueSize,
		PersistWorkers:    DefaultPersistWorkers,
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Path:       DefaultLogPath,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
		Journal: JournalConfig{
			SnapshotInterval: DefaultJournalSnapshotInterval,
		},
	}
}

// Load builds the configuration from an optional YAML file followed by
// COORDINATOR_* environment overrides, collecting every problem into a single
// descriptive error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_ADDR")); raw != "" {
		cfg.Address = raw
	}
	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_ALLOWED_ORIGINS")); raw != "" {
		cfg.AllowedOrigins = parseList(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_AUTH_SECRET")); raw != "" {
		cfg.AuthSecret = raw
	}
	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_ADMIN_TOKEN")); raw != "" {
		cfg.AdminToken = raw
	}
	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_TLS_CERT")); raw != "" {
		cfg.TLSCertPath = raw
	}
	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_TLS_KEY")); raw != "" {
		cfg.TLSKeyPath = raw
	}
	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_JOURNAL_PATH")); raw != "" {
		cfg.Journal.Path = raw
	}
	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_LOG_LEVEL")); raw != "" {
		cfg.Logging.Level = raw
	}
	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_LOG_PATH")); raw != "" {
		cfg.Logging.Path = raw
	}

	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("COORDINATOR_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("COORDINATOR_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_HANDSHAKE_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("COORDINATOR_HANDSHAKE_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.HandshakeTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("COORDINATOR_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_OUTBOUND_QUEUE_SIZE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("COORDINATOR_OUTBOUND_QUEUE_SIZE must be a positive integer, got %q", raw))
		} else {
			cfg.OutboundQueueSize = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_PERSIST_WORKERS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("COORDINATOR_PERSIST_WORKERS must be a positive integer, got %q", raw))
		} else {
			cfg.PersistWorkers = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORDINATOR_JOURNAL_SNAPSHOT_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("COORDINATOR_JOURNAL_SNAPSHOT_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.Journal.SnapshotInterval = duration
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "COORDINATOR_TLS_CERT and COORDINATOR_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

// WebsocketURL reports the externally reachable websocket endpoint for startup logs.
func (c *Config) WebsocketURL() string {
	if c == nil {
		return ""
	}
	scheme := "ws"
	if c.TLSCertPath != "" && c.TLSKeyPath != "" {
		scheme = "wss"
	}
	host := c.Address
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return fmt.Sprintf("%s://%s/ws", scheme, host)
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
