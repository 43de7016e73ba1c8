package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.Name != "envsense DHT22" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "envsense DHT22")
	}
	if cfg.BLE.ServiceUUID != "6e400001-b5a3-f393-e0a9-e50e24dcca9e" {
		t.Errorf("BLE.ServiceUUID = %q", cfg.BLE.ServiceUUID)
	}
	if cfg.Pipeline.Period != 5*time.Second {
		t.Errorf("Pipeline.Period = %v, want 5s", cfg.Pipeline.Period)
	}
	if cfg.Pipeline.QueueDepth != 8 {
		t.Errorf("Pipeline.QueueDepth = %d, want 8", cfg.Pipeline.QueueDepth)
	}
	if cfg.Pipeline.SendTimeout != 50*time.Millisecond {
		t.Errorf("Pipeline.SendTimeout = %v, want 50ms", cfg.Pipeline.SendTimeout)
	}
	if cfg.Sensor.MinInterval != 2*time.Second {
		t.Errorf("Sensor.MinInterval = %v, want 2s", cfg.Sensor.MinInterval)
	}
	if cfg.Sensor.Driver != "sim" {
		t.Errorf("Sensor.Driver = %q, want %q", cfg.Sensor.Driver, "sim")
	}
	if cfg.Metrics.Addr != ":9110" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9110")
	}
	if cfg.Log.MQTT.Broker != "" {
		t.Errorf("Log.MQTT.Broker = %q, want empty", cfg.Log.MQTT.Broker)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device:
  name: greenhouse
sensor:
  driver: serial
  port: /dev/ttyACM1
  baud: 9600
  read_timeout: 1s
pipeline:
  period: 10s
  queue_depth: 4
log:
  mqtt:
    broker: tcp://broker:1883
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Name != "greenhouse" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "greenhouse")
	}
	if cfg.Sensor.Driver != "serial" || cfg.Sensor.Port != "/dev/ttyACM1" || cfg.Sensor.Baud != 9600 {
		t.Errorf("Sensor = %+v", cfg.Sensor)
	}
	if cfg.Sensor.ReadTimeout != time.Second {
		t.Errorf("Sensor.ReadTimeout = %v, want 1s", cfg.Sensor.ReadTimeout)
	}
	if cfg.Pipeline.Period != 10*time.Second {
		t.Errorf("Pipeline.Period = %v, want 10s", cfg.Pipeline.Period)
	}
	if cfg.Pipeline.QueueDepth != 4 {
		t.Errorf("Pipeline.QueueDepth = %d, want 4", cfg.Pipeline.QueueDepth)
	}
	if cfg.Log.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("Log.MQTT.Broker = %q", cfg.Log.MQTT.Broker)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}

	// Fields absent from the file keep their defaults.
	if cfg.Pipeline.SendTimeout != 50*time.Millisecond {
		t.Errorf("Pipeline.SendTimeout = %v, want default 50ms", cfg.Pipeline.SendTimeout)
	}
	if cfg.BLE.HumidityUUID != Default().BLE.HumidityUUID {
		t.Errorf("BLE.HumidityUUID = %q, want default", cfg.BLE.HumidityUUID)
	}
	if cfg.Log.MQTT.ClientID != "envsense" {
		t.Errorf("Log.MQTT.ClientID = %q, want default", cfg.Log.MQTT.ClientID)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
sensor:
  port: ~/dev/bridge
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "dev/bridge")
	if cfg.Sensor.Port != expected {
		t.Errorf("Sensor.Port = %q, want %q", cfg.Sensor.Port, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("pipeline: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should return error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty device name",
			modify:  func(c *Config) { c.Device.Name = "" },
			wantErr: true,
		},
		{
			name:    "invalid service uuid",
			modify:  func(c *Config) { c.BLE.ServiceUUID = "not-a-uuid" },
			wantErr: true,
		},
		{
			name:    "invalid temperature uuid",
			modify:  func(c *Config) { c.BLE.TemperatureUUID = "6e400002" },
			wantErr: true,
		},
		{
			name:    "duplicate characteristic uuids",
			modify:  func(c *Config) { c.BLE.HumidityUUID = strings.ToUpper(c.BLE.TemperatureUUID) },
			wantErr: true,
		},
		{
			name:    "zero readvertise max",
			modify:  func(c *Config) { c.BLE.ReadvertiseMax = 0 },
			wantErr: true,
		},
		{
			name:    "unknown sensor driver",
			modify:  func(c *Config) { c.Sensor.Driver = "i2c" },
			wantErr: true,
		},
		{
			name: "serial driver without port",
			modify: func(c *Config) {
				c.Sensor.Driver = "serial"
				c.Sensor.Port = ""
			},
			wantErr: true,
		},
		{
			name: "serial driver zero baud",
			modify: func(c *Config) {
				c.Sensor.Driver = "serial"
				c.Sensor.Baud = 0
			},
			wantErr: true,
		},
		{
			name:    "valid serial driver",
			modify:  func(c *Config) { c.Sensor.Driver = "serial" },
			wantErr: false,
		},
		{
			name:    "sim failure rate above one",
			modify:  func(c *Config) { c.Sensor.Sim.FailureRate = 1.5 },
			wantErr: true,
		},
		{
			name:    "negative sim jitter",
			modify:  func(c *Config) { c.Sensor.Sim.Jitter = -1 },
			wantErr: true,
		},
		{
			name:    "zero period",
			modify:  func(c *Config) { c.Pipeline.Period = 0 },
			wantErr: true,
		},
		{
			name:    "period shorter than sensor min interval",
			modify:  func(c *Config) { c.Pipeline.Period = time.Second },
			wantErr: true,
		},
		{
			name:    "zero queue depth",
			modify:  func(c *Config) { c.Pipeline.QueueDepth = 0 },
			wantErr: true,
		},
		{
			name:    "zero send timeout",
			modify:  func(c *Config) { c.Pipeline.SendTimeout = 0 },
			wantErr: true,
		},
		{
			name: "mqtt broker without client id",
			modify: func(c *Config) {
				c.Log.MQTT.Broker = "tcp://localhost:1883"
				c.Log.MQTT.ClientID = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "envsense", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# envsense") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}

	// The template must stay in sync with Default().
	if !reflect.DeepEqual(&cfg, Default()) {
		t.Errorf("written config = %+v, want %+v", cfg, *Default())
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "envsense")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
