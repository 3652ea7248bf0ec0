// Package notify publishes occupancy and reservation events to an MQTT
// broker. The publisher is optional; with MQTT disabled in configuration the
// rest of the system never sees this package.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"roomwatch/internal/conf"
	"roomwatch/internal/errors"
	"roomwatch/internal/logging"
)

var notifyLogger *slog.Logger

func init() {
	notifyLogger = logging.ForService("notify")
	if notifyLogger == nil {
		notifyLogger = slog.Default().With("service", "notify")
	}
}

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	reconnectCooldown = 5 * time.Second
)

// OccupancyMessage is the JSON document published per completed sampling
// window.
type OccupancyMessage struct {
	RoomID    uint      `json:"room_id"`
	BindingID uint      `json:"binding_id"`
	Busy      bool      `json:"busy"`
	Samples   int       `json:"samples"`
	Timestamp time.Time `json:"timestamp"`
}

// ReservationMessage is the JSON document published per reservation attempt.
type ReservationMessage struct {
	Outcome       string    `json:"outcome"`
	CorrelationID string    `json:"correlation_id"`
	RoomName      string    `json:"room_name,omitempty"`
	RoomNumber    int       `json:"room_number,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher is an MQTT-backed event sink.
type Publisher struct {
	mu              sync.Mutex
	client          mqtt.Client
	topic           string
	retain          bool
	lastConnAttempt time.Time
}

// NewPublisher builds the publisher from configuration. The broker URL must
// parse; connectivity is established by Connect.
func NewPublisher(settings *conf.Settings) (*Publisher, error) {
	m := settings.MQTT
	if _, err := url.Parse(m.Broker); err != nil {
		return nil, errors.New(err).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Context("broker", m.Broker).
			Build()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.Broker)
	opts.SetClientID(settings.Main.Name)
	opts.SetUsername(m.Username)
	opts.SetPassword(m.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		notifyLogger.Warn("broker connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		notifyLogger.Info("connected to broker", "broker", m.Broker)
	})

	return &Publisher{
		client: mqtt.NewClient(opts),
		topic:  m.Topic,
		retain: m.Retain,
	}, nil
}

// Connect establishes the broker session. Repeated attempts within the
// cooldown are rejected so a flapping broker is not hammered.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if since := time.Since(p.lastConnAttempt); since < reconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt %s ago", since.Round(time.Millisecond)).
			Component("notify").
			Category(errors.CategoryState).
			Build()
	}
	p.lastConnAttempt = time.Now()

	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.New(err).
				Component("notify").
				Category(errors.CategoryConnection).
				Build()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return errors.Newf("broker connect timed out").
			Component("notify").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// PublishOccupancy publishes one sampling window result.
func (p *Publisher) PublishOccupancy(msg *OccupancyMessage) error {
	return p.publish(p.topic+"/occupancy", msg)
}

// PublishReservation publishes one reservation attempt outcome.
func (p *Publisher) PublishReservation(msg *ReservationMessage) error {
	return p.publish(p.topic+"/reservation", msg)
}

func (p *Publisher) publish(topic string, payload any) error {
	if !p.client.IsConnected() {
		return errors.Newf("not connected to broker").
			Component("notify").
			Category(errors.CategoryConnection).
			Build()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	token := p.client.Publish(topic, 0, p.retain, data)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Newf("publish to %s timed out", topic).
			Component("notify").
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("notify").
			Category(errors.CategoryNetwork).
			Context("topic", topic).
			Build()
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
