// Command test-sensor is a manual test for the sensor driver.
// It takes a few samples and prints them along with the characteristic
// payloads a client would read.
//
// Usage:
//
//	go run ./cmd/test-sensor [--driver serial|sim] [--port /dev/ttyUSB0] [--count 5]
package main

import (
	"flag"
	"fmt"
	"math"
	"time"

	"github.com/chaz8081/envsense/internal/ble/protocol"
	"github.com/chaz8081/envsense/internal/config"
	"github.com/chaz8081/envsense/internal/sensor"
)

func main() {
	cfg := config.Default().Sensor
	flag.StringVar(&cfg.Driver, "driver", cfg.Driver, "sensor driver: serial or sim")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "serial port of the UART bridge")
	flag.IntVar(&cfg.Baud, "baud", cfg.Baud, "serial baud rate")
	count := flag.Int("count", 5, "number of samples")
	flag.Parse()

	drv, err := sensor.New(&cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer drv.Close()

	fmt.Printf("Sampling %d times (%s driver, %s apart)...\n", *count, cfg.Driver, cfg.MinInterval)

	for i := 0; i < *count; i++ {
		if i > 0 {
			time.Sleep(cfg.MinInterval)
		}
		h := drv.ReadHumidity()
		t := drv.ReadTemperature()
		if math.IsNaN(h) || math.IsNaN(t) {
			fmt.Println("read failed (NaN), check wiring and pull-up (4.7-10k)")
			continue
		}
		tv, hv := protocol.FormatValue(t), protocol.FormatValue(h)
		fmt.Printf("T=%.2f C, H=%.2f %%  ->  temperature %q, humidity %q\n", t, h, tv, hv)
		checkPayload("temperature", tv, t)
		checkPayload("humidity", hv, h)
	}

	fmt.Println("\nDone!")
}

// checkPayload decodes a payload the way a client would and reports when it
// drifts from the sample by more than the two-digit rounding.
func checkPayload(name string, payload []byte, want float64) {
	got, err := protocol.ParseValue(payload)
	if err != nil {
		fmt.Printf("  %s payload does not decode: %v\n", name, err)
		return
	}
	if math.Abs(got-want) > 0.01 {
		fmt.Printf("  %s payload decodes to %.2f, sample was %.4f\n", name, got, want)
	}
}
