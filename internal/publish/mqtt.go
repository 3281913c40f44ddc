package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

var (
	errNotConnected = errors.New("mqtt client not connected")
	errStopped      = errors.New("publisher stopped")
)

// Config holds the broker settings of an MQTTPublisher.
type Config struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
}

// MQTTPublisher pushes every freshly merged forecast series to an MQTT broker
// as a retained message, so subscribers always see the latest one per place.
type MQTTPublisher struct {
	client    mqtt.Client
	cfg       Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Ensure MQTTPublisher implements weather.Publisher
var _ weather.Publisher = (*MQTTPublisher)(nil)

// Message is the JSON payload published for one place.
type Message struct {
	Country    string                  `json:"country"`
	City       string                  `json:"city"`
	ResolvedAt time.Time               `json:"resolved_at"`
	Days       []weather.DailyForecast `json:"days"`
}

func NewMQTTPublisher(cfg Config, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &MQTTPublisher{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial broker connection. It respects ctx and Close().
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return errStopped
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			p.client.Disconnect(0)
			return ctx.Err()
		case <-p.stopCh:
			p.client.Disconnect(0)
			return errStopped
		default:
		}
	}
}

// Publish sends the series for q to <prefix>/<country>/<city>, QoS 1, retained.
func (p *MQTTPublisher) Publish(ctx context.Context, q weather.Query, series weather.ForecastSeries) error {
	if !p.IsConnected() {
		return errNotConnected
	}

	topic := p.topic(q)
	data, err := encodeMessage(q, series, time.Now().UTC())
	if err != nil {
		return err
	}

	token := p.client.Publish(topic, 1, true, data)
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.Debug("published forecast", "topic", topic, "days", len(series))
	return nil
}

// IsConnected returns whether the client is connected.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close disconnects from the broker. Safe to call more than once.
func (p *MQTTPublisher) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.client.Disconnect(250)
		p.setConnected(false)
		p.logger.Info("mqtt disconnected")
	})
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// topicSegment percent-encodes the characters that would add levels or wildcards to a
// topic. '%' is encoded too, so distinct place names never share a topic.
var topicSegment = strings.NewReplacer("%", "%25", "/", "%2F", "+", "%2B", "#", "%23", "\x00", "%00")

func (p *MQTTPublisher) topic(q weather.Query) string {
	parts := []string{topicSegment.Replace(q.Country), topicSegment.Replace(q.City)}
	if p.cfg.TopicPrefix != "" {
		parts = append([]string{p.cfg.TopicPrefix}, parts...)
	}
	return strings.Join(parts, "/")
}

func encodeMessage(q weather.Query, series weather.ForecastSeries, at time.Time) ([]byte, error) {
	days := []weather.DailyForecast(series)
	if days == nil {
		days = []weather.DailyForecast{}
	}
	data, err := json.Marshal(Message{
		Country:    q.Country,
		City:       q.City,
		ResolvedAt: at,
		Days:       days,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal forecast message: %w", err)
	}
	return data, nil
}
