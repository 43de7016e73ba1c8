// Package logging configures the process-wide slog logger. Records go to
// stderr as text, or as JSON to both stderr and an MQTT topic when a broker
// is configured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chaz8081/envsense/internal/config"
)

// connectTimeout bounds the initial broker connection.
const connectTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client the writer needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTWriter is an io.Writer that publishes each write as one message on
// logs/<client_id>. Publishing is fire-and-forget at QoS 0, so a slow or
// absent broker never blocks the caller.
type MQTTWriter struct {
	client Publisher
	topic  string
}

// NewMQTTWriter creates a writer publishing to logs/<clientID>.
func NewMQTTWriter(client Publisher, clientID string) *MQTTWriter {
	return &MQTTWriter{
		client: client,
		topic:  fmt.Sprintf("logs/%s", clientID),
	}
}

// Topic returns the topic records are published to.
func (w *MQTTWriter) Topic() string { return w.topic }

func (w *MQTTWriter) Write(p []byte) (int, error) {
	// p is reused by the handler after Write returns.
	payload := make([]byte, len(p))
	copy(payload, p)
	w.client.Publish(w.topic, 0, false, payload)
	return len(p), nil
}

// NewText returns a text logger writing to w at level.
func NewText(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSON returns a JSON logger writing to w at level.
func NewJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup installs the default logger from cfg and returns a function that
// flushes and disconnects the log shipper. If the broker cannot be reached
// the stderr logger is still installed and the error is returned.
func Setup(cfg *config.Config) (func(), error) {
	level := config.ParseLogLevel(cfg.LogLevel)
	if cfg.Log.MQTT.Broker == "" {
		slog.SetDefault(NewText(os.Stderr, level))
		return func() {}, nil
	}

	client, err := Connect(cfg.Log.MQTT.Broker, cfg.Log.MQTT.ClientID)
	if err != nil {
		slog.SetDefault(NewText(os.Stderr, level))
		return func() {}, err
	}

	writer := NewMQTTWriter(client, cfg.Log.MQTT.ClientID)
	slog.SetDefault(NewJSON(io.MultiWriter(os.Stderr, writer), level))
	slog.Info("[SYS] shipping logs", "broker", cfg.Log.MQTT.Broker, "topic", writer.Topic())
	return func() { client.Disconnect(250) }, nil
}

// Connect dials the broker. The client reconnects on its own after the
// first successful connection.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("logging: connect to %s: timed out after %s", broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("logging: connect to %s: %w", broker, err)
	}
	return client, nil
}
