package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	BLE      BLEConfig      `yaml:"ble"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig holds peripheral identity settings.
type DeviceConfig struct {
	Name string `yaml:"name"` // advertised local name
}

// BLEConfig holds the GATT layout and advertising behavior.
type BLEConfig struct {
	ServiceUUID     string `yaml:"service_uuid"`
	TemperatureUUID string `yaml:"temperature_uuid"`
	HumidityUUID    string `yaml:"humidity_uuid"`
	ReadvertiseMax  int    `yaml:"readvertise_max"` // max advertising retry backoff in seconds
}

// SensorConfig selects and tunes the sensor driver.
type SensorConfig struct {
	Driver      string        `yaml:"driver"` // "serial" or "sim"
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	MinInterval time.Duration `yaml:"min_interval"` // minimum spacing between hardware reads
	Sim         SimConfig     `yaml:"sim"`
}

// SimConfig tunes the simulated sensor.
type SimConfig struct {
	Temperature float64       `yaml:"temperature"`
	Humidity    float64       `yaml:"humidity"`
	Jitter      float64       `yaml:"jitter"`
	FailureRate float64       `yaml:"failure_rate"` // 0..1
	Latency     time.Duration `yaml:"latency"`
	Seed        uint64        `yaml:"seed"`
}

// PipelineConfig holds measurement cycle timing.
type PipelineConfig struct {
	Period      time.Duration `yaml:"period"`
	QueueDepth  int           `yaml:"queue_depth"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// LogConfig holds log shipping settings.
type LogConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig enables shipping log records to an MQTT broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables shipping
	ClientID string `yaml:"client_id"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "envsense")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "envsense DHT22",
		},
		BLE: BLEConfig{
			ServiceUUID:     "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			TemperatureUUID: "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
			HumidityUUID:    "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
			ReadvertiseMax:  30,
		},
		Sensor: SensorConfig{
			Driver:      "sim",
			Port:        "/dev/ttyUSB0",
			Baud:        115200,
			ReadTimeout: 500 * time.Millisecond,
			MinInterval: 2 * time.Second,
			Sim: SimConfig{
				Temperature: 22.5,
				Humidity:    45,
				Jitter:      0.5,
				FailureRate: 0,
				Latency:     25 * time.Millisecond,
				Seed:        1,
			},
		},
		Pipeline: PipelineConfig{
			Period:      5 * time.Second,
			QueueDepth:  8,
			SendTimeout: 50 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Addr: ":9110",
		},
		Log: LogConfig{
			MQTT: MQTTConfig{
				ClientID: "envsense",
			},
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in sensor.port is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Sensor.Port = expandTilde(cfg.Sensor.Port)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}

	for field, v := range map[string]string{
		"ble.service_uuid":     c.BLE.ServiceUUID,
		"ble.temperature_uuid": c.BLE.TemperatureUUID,
		"ble.humidity_uuid":    c.BLE.HumidityUUID,
	} {
		if _, err := uuid.Parse(v); err != nil {
			return fmt.Errorf("%s: invalid UUID %q: %w", field, v, err)
		}
	}
	if strings.EqualFold(c.BLE.TemperatureUUID, c.BLE.HumidityUUID) {
		return fmt.Errorf("ble.temperature_uuid and ble.humidity_uuid must differ")
	}
	if c.BLE.ReadvertiseMax <= 0 {
		return fmt.Errorf("ble.readvertise_max must be > 0")
	}

	switch c.Sensor.Driver {
	case "serial":
		if c.Sensor.Port == "" {
			return fmt.Errorf("sensor.port must not be empty for the serial driver")
		}
		if c.Sensor.Baud <= 0 {
			return fmt.Errorf("sensor.baud must be > 0")
		}
		if c.Sensor.ReadTimeout <= 0 {
			return fmt.Errorf("sensor.read_timeout must be > 0")
		}
	case "sim":
		if c.Sensor.Sim.FailureRate < 0 || c.Sensor.Sim.FailureRate > 1 {
			return fmt.Errorf("sensor.sim.failure_rate must be within [0, 1], got %v", c.Sensor.Sim.FailureRate)
		}
		if c.Sensor.Sim.Jitter < 0 {
			return fmt.Errorf("sensor.sim.jitter must be >= 0")
		}
	default:
		return fmt.Errorf("sensor.driver must be \"serial\" or \"sim\", got %q", c.Sensor.Driver)
	}
	if c.Sensor.MinInterval < 0 {
		return fmt.Errorf("sensor.min_interval must be >= 0")
	}

	if c.Pipeline.Period <= 0 {
		return fmt.Errorf("pipeline.period must be > 0")
	}
	if c.Pipeline.Period < c.Sensor.MinInterval {
		return fmt.Errorf("pipeline.period (%s) must not be shorter than sensor.min_interval (%s)",
			c.Pipeline.Period, c.Sensor.MinInterval)
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	if c.Pipeline.SendTimeout <= 0 {
		return fmt.Errorf("pipeline.send_timeout must be > 0")
	}

	if c.Log.MQTT.Broker != "" && c.Log.MQTT.ClientID == "" {
		return fmt.Errorf("log.mqtt.client_id must not be empty when log.mqtt.broker is set")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level string to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteDefault writes the commented default config to DefaultConfigPath.
// It returns the path written, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

const defaultConfigYAML = `# envsense configuration
# Written on first run. Edit and restart to apply.

device:
  name: "envsense DHT22"

ble:
  service_uuid: "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
  temperature_uuid: "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
  humidity_uuid: "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
  readvertise_max: 30 # seconds

sensor:
  driver: sim # "serial" (UART bridge) or "sim"
  port: /dev/ttyUSB0
  baud: 115200
  read_timeout: 500ms
  min_interval: 2s # DHT22 needs 2s between conversions
  sim:
    temperature: 22.5
    humidity: 45
    jitter: 0.5
    failure_rate: 0
    latency: 25ms
    seed: 1

pipeline:
  period: 5s
  queue_depth: 8
  send_timeout: 50ms

metrics:
  addr: ":9110" # empty disables /metrics

log:
  mqtt:
    broker: "" # e.g. tcp://localhost:1883
    client_id: envsense

log_level: info # debug, info, warn, error
`
