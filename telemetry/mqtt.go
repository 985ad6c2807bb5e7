package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MQTTTransport publishes reports to <prefix>/<junction id> at QoS 0
type MQTTTransport struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

// NewMQTTTransport connects to the broker.  A failed initial connection is
// logged but not returned, the client keeps reconnecting in the background
// and sends fail until it succeeds.
func NewMQTTTransport(broker, prefix string, timeout time.Duration,
	log *zap.Logger) *MQTTTransport {

	if log == nil {
		log = zap.NewNop()
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("trafficvision-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()

	if !token.WaitTimeout(time.Second) {
		log.Warn("MQTT broker not reachable yet, retrying in background",
			zap.String("broker", broker))
	} else if err := token.Error(); err != nil {
		log.Warn("MQTT connect failed", zap.String("broker", broker), zap.Error(err))
	}

	return NewMQTTTransportWithClient(client, prefix, timeout)
}

// NewMQTTTransportWithClient wraps an existing client
func NewMQTTTransportWithClient(client mqtt.Client, prefix string,
	timeout time.Duration) *MQTTTransport {

	return &MQTTTransport{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
	}
}

// Topic returns the topic reports for a junction are published on
func (m *MQTTTransport) Topic(junctionID string) string {
	return m.prefix + "/" + junctionID
}

// Send publishes the report and waits at most the transport timeout
func (m *MQTTTransport) Send(ctx context.Context, r Report) error {

	if !m.client.IsConnected() {
		return fmt.Errorf("%w: not connected", ErrDelivery)
	}

	payload, err := json.Marshal(r)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	token := m.client.Publish(m.Topic(r.JunctionID), 0, false, payload)

	wait := m.timeout

	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < wait {
			wait = left
		}
	}

	if !token.WaitTimeout(wait) {
		return fmt.Errorf("%w: publish timed out", ErrDelivery)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	return nil
}

// Close disconnects from the broker
func (m *MQTTTransport) Close() error {
	m.client.Disconnect(250)
	return nil
}
