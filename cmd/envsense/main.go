package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chaz8081/envsense/internal/ble"
	"github.com/chaz8081/envsense/internal/config"
	"github.com/chaz8081/envsense/internal/logging"
	"github.com/chaz8081/envsense/internal/metrics"
	"github.com/chaz8081/envsense/internal/pipeline"
	"github.com/chaz8081/envsense/internal/sensor"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/envsense/config.yaml)")
	writeDefault := flag.Bool("write-default-config", false, "write the default config file and exit")
	flag.Parse()

	if *writeDefault {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
			return
		}
		fmt.Println("Wrote default config to", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	closeLogs, err := logging.Setup(cfg)
	if err != nil {
		slog.Warn("[SYS] log shipping disabled", "error", err)
	}
	defer closeLogs()

	printBanner(cfg)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewProm(reg)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	// Sensor driver
	drv, err := sensor.New(&cfg.Sensor)
	if err != nil {
		log.Fatalf("Failed to open sensor: %v\n\nCheck sensor.port and that the UART bridge is attached.", err)
	}
	defer drv.Close()
	slog.Info("[DHT] sensor ready", "driver", cfg.Sensor.Driver)

	// GATT server
	server, err := ble.NewServer(ble.NewTinyGoAdapter(), ble.ServerOptions{
		LocalName:       cfg.Device.Name,
		ServiceUUID:     cfg.BLE.ServiceUUID,
		TemperatureUUID: cfg.BLE.TemperatureUUID,
		HumidityUUID:    cfg.BLE.HumidityUUID,
		ReadvertiseMax:  time.Duration(cfg.BLE.ReadvertiseMax) * time.Second,
	})
	if err != nil {
		log.Fatalf("ble: %v", err)
	}
	defer server.Close()

	p, err := pipeline.New(drv, server, rec, pipeline.Options{
		Period:        cfg.Pipeline.Period,
		QueueDepth:    cfg.Pipeline.QueueDepth,
		SendTimeout:   cfg.Pipeline.SendTimeout,
		TemperatureID: cfg.BLE.TemperatureUUID,
		HumidityID:    cfg.BLE.HumidityUUID,
	})
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	// Lifecycle events must be wired before advertising starts.
	server.SetConnectHandler(p.HandleConnection)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start BLE peripheral: %v\n\nEnsure bluetoothd is running and the adapter is powered.", err)
	}

	// Signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	if cfg.Metrics.Addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				slog.Error("[SYS] metrics endpoint failed", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	slog.Info("[SYS] ready, waiting for a BLE client. Ctrl+C to quit.")

	sig := <-sigCh
	slog.Info("[SYS] shutting down", "signal", sig.String())
	server.SetConnectHandler(nil)
	cancel()
	wg.Wait()
	slog.Info("[SYS] goodbye")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== envsense ===")
	fmt.Printf("  Device:   %s\n", cfg.Device.Name)
	fmt.Printf("  Service:  %s\n", cfg.BLE.ServiceUUID)
	fmt.Printf("  Sensor:   %s\n", sensorSummary(cfg))
	fmt.Printf("  Period:   %s (queues %d, send timeout %s)\n",
		cfg.Pipeline.Period, cfg.Pipeline.QueueDepth, cfg.Pipeline.SendTimeout)
	if cfg.Metrics.Addr != "" {
		fmt.Printf("  Metrics:  %s\n", cfg.Metrics.Addr)
	}
	if cfg.Log.MQTT.Broker != "" {
		fmt.Printf("  Logs:     %s (logs/%s)\n", cfg.Log.MQTT.Broker, cfg.Log.MQTT.ClientID)
	}
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("================")
}

func sensorSummary(cfg *config.Config) string {
	if cfg.Sensor.Driver == "serial" {
		return fmt.Sprintf("serial %s @ %d baud", cfg.Sensor.Port, cfg.Sensor.Baud)
	}
	return fmt.Sprintf("sim (%.1f C, %.1f %%)", cfg.Sensor.Sim.Temperature, cfg.Sensor.Sim.Humidity)
}
