package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/ethresponder/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
responder:
  node:
    mac: "20:18:03:01:00:00"
    ip: "192.168.1.2"
  mode: interrupt
  frame_size: 512
  pool_size: 2
  coap_port: 5684
  cache_capacity: 4
  http:
    enabled: true
    site_port: 8080
    status_port: 8081
  driver:
    type: tap
    options:
      name: tap0
      host_addr: 192.168.1.1/24
  gpio:
    led:
      type: file
      path: /sys/class/gpio/gpio13/value
      active_low: true
    heartbeat:
      period: 111ms
      pin:
        type: file
        path: /sys/class/gpio/gpio12/value
  log:
    level: debug
    format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Node.HardwareAddr != (core.MAC{0x20, 0x18, 0x03, 0x01, 0x00, 0x00}) {
		t.Errorf("Expected node MAC 20:18:03:01:00:00, got %s", cfg.Node.HardwareAddr)
	}
	if cfg.Node.Addr.String() != "192.168.1.2" {
		t.Errorf("Expected node IP 192.168.1.2, got %s", cfg.Node.Addr)
	}
	if cfg.Mode != ModeInterrupt {
		t.Errorf("Expected mode interrupt, got %s", cfg.Mode)
	}
	if cfg.FrameSize != 512 || cfg.PoolSize != 2 || cfg.CacheCapacity != 4 {
		t.Errorf("Unexpected sizes: frame=%d pool=%d cache=%d", cfg.FrameSize, cfg.PoolSize, cfg.CacheCapacity)
	}
	if cfg.CoAPPort != 5684 {
		t.Errorf("Expected coap port 5684, got %d", cfg.CoAPPort)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.SitePort != 8080 || cfg.HTTP.StatusPort != 8081 {
		t.Errorf("Unexpected http config: %+v", cfg.HTTP)
	}
	if cfg.Driver.Type != "tap" || cfg.Driver.Options["name"] != "tap0" {
		t.Errorf("Unexpected driver config: %+v", cfg.Driver)
	}
	if cfg.GPIO.LED.Type != "file" || !cfg.GPIO.LED.ActiveLow {
		t.Errorf("Unexpected led pin: %+v", cfg.GPIO.LED)
	}
	if hb := cfg.GPIO.Heartbeat; hb.Every != 111*time.Millisecond || hb.Pin.Type != "file" {
		t.Errorf("Unexpected heartbeat: %+v", hb)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected log config: %+v", cfg.Log)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
responder:
  node:
    ip: "10.0.0.7"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Mode != ModePoll {
		t.Errorf("Expected default mode poll, got %s", cfg.Mode)
	}
	if cfg.FrameSize != DefaultFrameSize {
		t.Errorf("Expected default frame size %d, got %d", DefaultFrameSize, cfg.FrameSize)
	}
	if cfg.CoAPPort != DefaultCoAPPort {
		t.Errorf("Expected default coap port %d, got %d", DefaultCoAPPort, cfg.CoAPPort)
	}
	if cfg.CacheCapacity != 8 {
		t.Errorf("Expected default cache capacity 8, got %d", cfg.CacheCapacity)
	}
	if cfg.HTTP.SitePort != 80 || cfg.HTTP.StatusPort != 81 {
		t.Errorf("Expected default http ports 80/81, got %d/%d", cfg.HTTP.SitePort, cfg.HTTP.StatusPort)
	}
	if cfg.Node.HardwareAddr.IsZero() || cfg.Node.HardwareAddr.IsMulticast() {
		t.Errorf("Expected a derived unicast MAC, got %s", cfg.Node.HardwareAddr)
	}
	if cfg.GPIO.LED.Type != "memory" {
		t.Errorf("Expected default led pin type memory, got %s", cfg.GPIO.LED.Type)
	}
	if cfg.GPIO.Heartbeat.Every != 0 {
		t.Errorf("Expected heartbeat off by default, got %s", cfg.GPIO.Heartbeat.Every)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Unexpected metrics defaults: %+v", cfg.Metrics)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
responder:
  node:
    ip: "10.0.0.7"
`)
	t.Setenv("RESPONDER_NODE_IP", "192.168.1.2")
	t.Setenv("RESPONDER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Node.IP != "192.168.1.2" {
		t.Errorf("Expected node IP from env var, got %s", cfg.Node.IP)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Log.Level)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("RESPONDER_NODE_IP", "192.168.1.2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Node.Addr.String() != "192.168.1.2" {
		t.Errorf("Expected node IP from env var, got %s", cfg.Node.Addr)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing ip", `
responder:
  node:
    mac: "20:18:03:01:00:00"
`},
		{"ipv6 node ip", `
responder:
  node:
    ip: "fe80::1"
`},
		{"multicast mac", `
responder:
  node:
    ip: "192.168.1.2"
    mac: "01:00:5e:00:00:01"
`},
		{"bad mode", `
responder:
  node:
    ip: "192.168.1.2"
  mode: busy
`},
		{"frame too small", `
responder:
  node:
    ip: "192.168.1.2"
  frame_size: 64
`},
		{"pool too large", `
responder:
  node:
    ip: "192.168.1.2"
  pool_size: 3
`},
		{"log level", `
responder:
  node:
    ip: "192.168.1.2"
  log:
    level: verbose
`},
		{"same http ports", `
responder:
  node:
    ip: "192.168.1.2"
  http:
    enabled: true
    site_port: 80
    status_port: 80
`},
		{"unknown driver", `
responder:
  node:
    ip: "192.168.1.2"
  driver:
    type: dpdk
`},
		{"file pin without path", `
responder:
  node:
    ip: "192.168.1.2"
  gpio:
    led:
      type: file
`},
		{"negative heartbeat period", `
responder:
  node:
    ip: "192.168.1.2"
  gpio:
    heartbeat:
      period: -1s
`},
		{"heartbeat file pin without path", `
responder:
  node:
    ip: "192.168.1.2"
  gpio:
    heartbeat:
      period: 100ms
      pin:
        type: file
`},
		{"kafka without brokers", `
responder:
  node:
    ip: "192.168.1.2"
  events:
    kafka:
      enabled: true
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestMACFromID(t *testing.T) {
	a := MACFromID("machine-a")
	b := MACFromID("machine-b")

	if a != MACFromID("machine-a") {
		t.Error("Expected MACFromID to be stable")
	}
	if a == b {
		t.Error("Expected different ids to map to different MACs")
	}
	for _, m := range []core.MAC{a, b} {
		if m[0]&0x02 == 0 {
			t.Errorf("Expected locally administered bit in %s", m)
		}
		if m.IsMulticast() {
			t.Errorf("Expected unicast MAC, got %s", m)
		}
	}
}

func TestMotorPins(t *testing.T) {
	m := MotorConfig{}
	pins, err := m.Pins()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, p := range pins {
		if p.Type != "memory" {
			t.Errorf("Expected pin %d to default to memory, got %q", i, p.Type)
		}
	}

	m.B.Low = PinConfig{Type: "file"}
	if _, err := m.Pins(); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid for file pin without path, got %v", err)
	}
}
