package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT errors.
var (
	ErrNotConnected     = errors.New("mqtt not connected")
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrPublishFailed    = errors.New("mqtt publish failed")
	ErrSubscribeFailed  = errors.New("mqtt subscribe failed")
	ErrInvalidTopic     = errors.New("invalid mqtt topic")
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 500 // milliseconds
	maxQoS                = 2
)

// MessageHandler receives one message. It is called from a paho goroutine.
type MessageHandler func(topic string, payload []byte)

// Client is the broker connection the bridge publishes and subscribes on.
// Implemented by PahoClient.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	IsConnected() bool
	Close() error
}

// ClientOptions configures a PahoClient.
type ClientOptions struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883 or ssl://host:8883.
	Broker   string
	ClientID string
	Username string
	Password string

	// StatusTopic receives "online" on every connect and is the will topic
	// carrying "offline" when the connection drops uncleanly.
	StatusTopic string

	QoS            byte
	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	// OnConnect runs after every (re)connect, once subscriptions are restored.
	OnConnect func()

	Logger *slog.Logger
}

// PahoClient is a Client backed by the Eclipse Paho library. Subscriptions
// are restored after a reconnect.
type PahoClient struct {
	client pahomqtt.Client
	opts   ClientOptions
	logger *slog.Logger

	subMu         sync.RWMutex
	subscriptions map[string]subscription
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Dial connects to the broker and waits up to ConnectTimeout.
func Dial(opts ClientOptions) (*PahoClient, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.QoS > maxQoS {
		return nil, fmt.Errorf("%w: qos %d", ErrConnectionFailed, opts.QoS)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &PahoClient{
		opts:          opts,
		logger:        logger,
		subscriptions: make(map[string]subscription),
	}

	po := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOrderMatters(false)
	if opts.KeepAlive > 0 {
		po.SetKeepAlive(opts.KeepAlive)
	}
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	if opts.StatusTopic != "" {
		po.SetWill(opts.StatusTopic, StatusOffline, opts.QoS, true)
	}
	po.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = pahomqtt.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

func (c *PahoClient) handleConnect() {
	c.subMu.RLock()
	for topic, sub := range c.subscriptions {
		c.client.Subscribe(topic, sub.qos, c.wrap(sub.handler))
	}
	c.subMu.RUnlock()

	if c.opts.StatusTopic != "" {
		c.client.Publish(c.opts.StatusTopic, c.opts.QoS, true, StatusOnline)
	}
	c.logger.Info("mqtt connected", "broker", c.opts.Broker)
	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}
}

// Publish sends payload and waits for the broker acknowledgment.
func (c *PahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers handler for topic and remembers it for reconnects.
func (c *PahoClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrap(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (c *PahoClient) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// wrap adapts handler to paho and contains panics to the message.
func (c *PahoClient) wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("mqtt handler panic", "topic", msg.Topic(), "panic", r)
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}

// IsConnected reports whether the broker connection is up.
func (c *PahoClient) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close publishes the offline status and disconnects.
func (c *PahoClient) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() && c.opts.StatusTopic != "" {
		c.client.Publish(c.opts.StatusTopic, c.opts.QoS, true, StatusOffline).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)
	return nil
}

var _ Client = (*PahoClient)(nil)
