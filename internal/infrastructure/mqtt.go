package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"example.com/backstage/services/fleet/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTTPublisher publishes fleet events to an MQTT broker. Delivery is
// best effort; a disconnected broker surfaces as an error on Publish
// and the paho client reconnects in the background.
type MQTTPublisher struct {
	client      mqtt.Client
	qos         byte
	topicPrefix string
	logger      *logrus.Logger
}

func NewMQTTPublisher(cfg *config.MQTTConfig, logger *logrus.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(cfg.MaxReconnectDelay).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.WithField("broker", cfg.BrokerURL).Info("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return &MQTTPublisher{
		client:      client,
		qos:         cfg.QoS,
		topicPrefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		logger:      logger,
	}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	full := topic
	if p.topicPrefix != "" {
		full = p.topicPrefix + "/" + topic
	}

	token := p.client.Publish(full, p.qos, false, data)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
