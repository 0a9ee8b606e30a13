package broker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/aquanest/internal/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("broker not connected")

// Handlers receive connection and message events. Both run on paho
// goroutines and must not block.
type Handlers struct {
	OnState   func(state ConnState, err error)
	OnMessage func(topic string, payload []byte)
}

// Client is one MQTT connection. Subscriptions are not kept across
// reconnects (clean session); the owner re-subscribes on StateConnected.
type Client struct {
	mqtt     mqtt.Client
	qos      byte
	quiesce  uint
	logger   *zap.Logger
	handlers Handlers

	mu    sync.RWMutex
	state ConnState
}

// NewClient prepares a connection. Nothing is dialed before Connect.
func NewClient(cfg config.BrokerConfig, logger *zap.Logger, h Handlers) *Client {
	return newClient(cfg, logger, h, mqtt.NewClient)
}

func newClient(cfg config.BrokerConfig, logger *zap.Logger, h Handlers, factory func(*mqtt.ClientOptions) mqtt.Client) *Client {
	clientID := fmt.Sprintf("%s-%s", cfg.ClientIDPrefix, uuid.NewString()[:8])

	c := &Client{
		qos:      byte(cfg.QoS),
		quiesce:  uint(cfg.DisconnectQuiesce / time.Millisecond),
		logger:   logger.With(zap.String("client_id", clientID)),
		handlers: h,
		state:    StateDisconnected,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOrderMatters(true)
	if cfg.ConnectRetryInterval > 0 {
		opts.SetConnectRetry(true).SetConnectRetryInterval(cfg.ConnectRetryInterval)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { c.onConnectionLost(err) })
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) { c.onReconnecting() })
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		c.onMessage(msg.Topic(), msg.Payload())
	})

	c.mqtt = factory(opts)
	return c
}

func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// setState applies a transition. Repeated and invalid transitions are
// ignored; paho may report a lost connection after an explicit disconnect.
func (c *Client) setState(to ConnState, cause error) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	if err := ValidateTransition(from, to); err != nil {
		c.mu.Unlock()
		c.logger.Debug("Ignoring broker state change", zap.Error(err))
		return
	}
	c.state = to
	c.mu.Unlock()

	c.logger.Info("Broker state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Error(cause))

	if c.handlers.OnState != nil {
		c.handlers.OnState(to, cause)
	}
}

func (c *Client) onConnect() {
	c.setState(StateConnected, nil)
}

func (c *Client) onConnectionLost(err error) {
	c.setState(StateDisconnected, err)
}

func (c *Client) onReconnecting() {
	c.setState(StateConnecting, nil)
}

func (c *Client) onMessage(topic string, payload []byte) {
	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(topic, payload)
	}
}

// Connect starts dialing and returns immediately. The outcome is reported
// through Handlers.OnState.
func (c *Client) Connect() {
	c.setState(StateConnecting, nil)
	tok := c.mqtt.Connect()
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			c.setState(StateDisconnected, fmt.Errorf("connect: %w", err))
		}
	}()
}

// Disconnect closes the connection, waiting up to the configured quiesce
// period for in-flight work.
func (c *Client) Disconnect() {
	c.mqtt.Disconnect(c.quiesce)
	c.setState(StateDisconnected, nil)
}

// Subscribe registers topic with the default message handler. done is
// called once the broker acknowledges or the request fails.
func (c *Client) Subscribe(topic string, done func(error)) {
	if !c.Connected() {
		c.fail(done, ErrNotConnected)
		return
	}
	c.await(c.mqtt.Subscribe(topic, c.qos, nil), done)
}

func (c *Client) Unsubscribe(topic string, done func(error)) {
	if !c.Connected() {
		c.fail(done, ErrNotConnected)
		return
	}
	c.await(c.mqtt.Unsubscribe(topic), done)
}

// Publish sends a non-retained message.
func (c *Client) Publish(topic string, payload []byte, done func(error)) {
	if !c.Connected() {
		c.fail(done, ErrNotConnected)
		return
	}
	c.await(c.mqtt.Publish(topic, c.qos, false, payload), done)
}

func (c *Client) fail(done func(error), err error) {
	if done != nil {
		go done(err)
	}
}

func (c *Client) await(tok mqtt.Token, done func(error)) {
	go func() {
		<-tok.Done()
		if done != nil {
			done(tok.Error())
		}
	}()
}
