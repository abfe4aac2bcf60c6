package mqttclient

import (
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/metrics"
)

// MessageHandler receives inbound messages on subscribed topics.
type MessageHandler func(topic string, payload []byte)

// Client wraps the paho client for the bridge's needs: retained-aware
// publishing with an availability Last-Will, and a single command
// subscription for the playback control topic.
type Client struct {
	conn      mqtt.Client
	connected atomic.Bool
	log       zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	WillTopic   string // retained availability topic, set to WillPayload on ungraceful disconnect
	WillPayload string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{log: opts.Log}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}
	if opts.WillTopic != "" {
		clientOpts.SetWill(opts.WillTopic, opts.WillPayload, 0, true)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// Publish sends a payload. While disconnected it degrades to a warn-logged
// no-op: no queuing and no retry at this layer.
func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	if !c.connected.Load() {
		metrics.MQTTPublishesTotal.WithLabelValues("dropped").Inc()
		c.log.Warn().Str("topic", topic).Msg("mqtt disconnected, publish dropped")
		return nil
	}
	token := c.conn.Publish(topic, 0, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		metrics.MQTTPublishesTotal.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		return err
	}
	metrics.MQTTPublishesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Subscribe registers a handler for one topic filter.
func (c *Client) Subscribe(topic string, h MessageHandler) error {
	token := c.conn.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Str("topic", topic).Msg("mqtt subscribe failed")
		return err
	}
	c.log.Info().Str("topic", topic).Msg("mqtt subscribed")
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}
