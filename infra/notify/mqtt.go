// Package notify provides Notification Gateway implementations. The push
// bridge listens on per-device MQTT topics keyed by the user's registered
// notification token.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/chargeq/chargeq/core/model"
	corenotify "github.com/chargeq/chargeq/core/notify"
	"github.com/chargeq/chargeq/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT notifier.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "chargeq-notifier"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "chargeq/push"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoNotifier delivers push notifications by publishing JSON payloads to
// <prefix>/<token>. Implements the core notify.Notifier contract.
type PahoNotifier struct {
	cli    pahoClient
	prefix string
	qos    byte
	log    logger.Logger
}

var _ corenotify.Notifier = (*PahoNotifier)(nil)

// NewPahoNotifier connects to the broker described by cfg.
func NewPahoNotifier(cfg Config) (*PahoNotifier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New("notifier")
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &PahoNotifier{cli: c, prefix: cfg.TopicPrefix, qos: cfg.QoS, log: log}, nil
}

type pushMessage struct {
	MessageID string `json:"message_id"`
	Username  string `json:"username"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	SentAt    int64  `json:"sent_at"`
}

// Notify publishes the notification to the user's device topic. The caller's
// context bounds the wait for broker confirmation.
func (n *PahoNotifier) Notify(ctx context.Context, user model.User, title, body string) error {
	if user.NotificationToken == "" {
		return fmt.Errorf("no notification token for %s: %w", user.Username, model.ErrNotFound)
	}
	msg := pushMessage{
		MessageID: uuid.NewString(),
		Username:  user.Username,
		Title:     title,
		Body:      body,
		SentAt:    time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	topic := n.prefix + "/" + user.NotificationToken
	token := n.cli.Publish(topic, n.qos, false, payload)

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		n.log.Debugf("notification %s delivered to %s", msg.MessageID, user.Username)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}

// Close disconnects from the broker.
func (n *PahoNotifier) Close() {
	n.cli.Disconnect(250)
}
