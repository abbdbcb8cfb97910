package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != DefaultAddr {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Fatalf("unexpected ping interval: %v", cfg.PingInterval)
	}
	if cfg.OutboundQueueSize != DefaultOutboundQueueSize {
		t.Fatalf("unexpected outbound queue size: %d", cfg.OutboundQueueSize)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	contents := []byte("address: \":9000\"\nmax_clients: 32\nping_interval: 5s\njournal:\n  path: /tmp/journal\n  snapshot_interval: 1m\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != ":9000" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if cfg.MaxClients != 32 {
		t.Fatalf("unexpected max clients: %d", cfg.MaxClients)
	}
	if cfg.PingInterval != 5*time.Second {
		t.Fatalf("unexpected ping interval: %v", cfg.PingInterval)
	}
	if cfg.Journal.Path != "/tmp/journal" {
		t.Fatalf("unexpected journal path: %q", cfg.Journal.Path)
	}
	if cfg.Journal.SnapshotInterval != time.Minute {
		t.Fatalf("unexpected snapshot interval: %v", cfg.Journal.SnapshotInterval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	if err := os.WriteFile(path, []byte("address: \":9000\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("COORDINATOR_ADDR", ":9100")
	t.Setenv("COORDINATOR_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != ":9100" {
		t.Fatalf("environment must win over the file, got %q", cfg.Address)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadCollectsEveryProblem(t *testing.T) {
	t.Setenv("COORDINATOR_MAX_PAYLOAD_BYTES", "not-a-number")
	t.Setenv("COORDINATOR_PING_INTERVAL", "-4s")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation failure")
	}
}

func TestLoadRequiresPairedTLSSettings(t *testing.T) {
	t.Setenv("COORDINATOR_TLS_CERT", "/tmp/cert.pem")

	if _, err := Load(""); err == nil {
		t.Fatal("expected an error when only the certificate is set")
	}
}

func TestWebsocketURL(t *testing.T) {
	cfg := &Config{Address: ":2052"}
	if got := cfg.WebsocketURL(); got != "ws://localhost:2052/ws" {
		t.Fatalf("unexpected websocket url: %q", got)
	}
	cfg.TLSCertPath = "/c"
	cfg.TLSKeyPath = "/k"
	cfg.Address = "coordinator.example:443"
	if got := cfg.WebsocketURL(); got != "wss://coordinator.example:443/ws" {
		t.Fatalf("unexpected websocket url: %q", got)
	}
}
