package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/wind.report/internal/timeutil"
)

// MQTTOptions configures the MQTT sink.
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	Units    string
	Clock    timeutil.Clock
}

// Reading is the JSON payload published for each value.
type Reading struct {
	Value float64   `json:"value"`
	Units string    `json:"units,omitempty"`
	Time  time.Time `json:"time"`
}

// publisher is the subset of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTEmitter publishes each value as a retained QoS 0 message, so late
// subscribers see the latest reading immediately.
type MQTTEmitter struct {
	client publisher
	opts   MQTTOptions
}

// DialMQTT connects to the broker and returns a sink publishing to
// opts.Topic.
func DialMQTT(opts MQTTOptions) (*MQTTEmitter, error) {
	if opts.Broker == "" || opts.Topic == "" {
		return nil, errors.New("mqtt sink needs a broker and a topic")
	}
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Broker, token.Error())
	}
	return newMQTTEmitter(client, opts), nil
}

func newMQTTEmitter(client publisher, opts MQTTOptions) *MQTTEmitter {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &MQTTEmitter{client: client, opts: opts}
}

func (e *MQTTEmitter) Emit(ctx context.Context, v float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Reading{Value: v, Units: e.opts.Units, Time: e.opts.Clock.Now().UTC()})
	if err != nil {
		return err
	}

	token := e.client.Publish(e.opts.Topic, 0, true, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
}

// Close disconnects, allowing 250ms for in-flight messages.
func (e *MQTTEmitter) Close() error {
	e.client.Disconnect(250)
	return nil
}
