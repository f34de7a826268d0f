package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/awattprice/awattprice/internal/engine"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Message is the retained payload describing the latest cheapest window.
// Home automation can start an appliance at Start.
type Message struct {
	Region       string    `json:"region"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	AveragePrice float64   `json:"average_price"`
	TotalCost    string    `json:"total_cost,omitempty"`
}

// NewMessage summarises a result window
func NewMessage(region string, w engine.Window) Message {
	msg := Message{
		Region:       region,
		Start:        w.Start(),
		End:          w.End(),
		AveragePrice: w.AveragePrice,
	}
	if w.TotalCost != nil {
		msg.TotalCost = w.TotalCost.String()
	}
	return msg
}

// MQTTPublisher sends results to an MQTT broker
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger logrus.FieldLogger
}

// Options for connecting to the broker
type Options struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	// ConnectTimeout bounds the wait for the broker, 10s when zero
	ConnectTimeout time.Duration
}

// Connect dials the broker and waits for the connection
func Connect(opts Options, logger logrus.FieldLogger) (*MQTTPublisher, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetUsername(opts.Username)
	clientOpts.SetPassword(opts.Password)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetryInterval(5 * time.Second)
	clientOpts.SetConnectTimeout(timeout)

	clientOpts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})
	clientOpts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.WithField("broker", opts.Broker).Info("Connected to MQTT broker")
	})

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		// Stop the connect and reconnect goroutines
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to MQTT broker %s: timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
	}

	return &MQTTPublisher{client: client, topic: opts.Topic, logger: logger}, nil
}

// Publish sends the message as a retained JSON payload
func (p *MQTTPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	token := p.client.Publish(p.topic, 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}

	p.logger.WithField("topic", p.topic).Debug("Published cheapest window")
	return nil
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
