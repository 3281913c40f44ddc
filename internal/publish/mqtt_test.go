package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

func TestTopic(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		q      weather.Query
		want   string
	}{
		{name: "prefixed", prefix: "forecast", q: weather.Query{Country: "FR", City: "Paris"}, want: "forecast/FR/Paris"},
		{name: "nested prefix", prefix: "wx/daily", q: weather.Query{Country: "US", City: "New York"}, want: "wx/daily/US/New York"},
		{name: "no prefix", q: weather.Query{Country: "DE", City: "Berlin"}, want: "DE/Berlin"},
		{name: "reserved characters", prefix: "forecast", q: weather.Query{Country: "a/b", City: "c+#"}, want: "forecast/a%2Fb/c%2B%23"},
		{name: "escape character", prefix: "forecast", q: weather.Query{Country: "a%2Fb", City: "100%"}, want: "forecast/a%252Fb/100%25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMQTTPublisher(Config{BrokerURL: "tcp://127.0.0.1:1883", TopicPrefix: tt.prefix}, nil)
			if got := p.topic(tt.q); got != tt.want {
				t.Errorf("topic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTopicKeepsDistinctPlacesApart(t *testing.T) {
	p := NewMQTTPublisher(Config{BrokerURL: "tcp://127.0.0.1:1883", TopicPrefix: "forecast"}, nil)

	places := []weather.Query{
		{Country: "a/b", City: "x"},
		{Country: "a_b", City: "x"},
		{Country: "a%2Fb", City: "x"},
		{Country: "a", City: "b/x"},
		{Country: "a+b", City: "x"},
		{Country: "a#b", City: "x"},
	}

	seen := make(map[string]weather.Query)
	for _, q := range places {
		topic := p.topic(q)
		if prev, ok := seen[topic]; ok {
			t.Fatalf("%+v and %+v share topic %q", prev, q, topic)
		}
		seen[topic] = q
	}
}

func TestEncodeMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	series := weather.ForecastSeries{
		{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Temperature: 12},
		{Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Temperature: 20},
	}

	data, err := encodeMessage(weather.Query{Country: "FR", City: "Paris"}, series, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Country    string `json:"country"`
		City       string `json:"city"`
		ResolvedAt string `json:"resolved_at"`
		Days       []struct {
			Date        string  `json:"date"`
			Temperature float64 `json:"temperature"`
		} `json:"days"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Country != "FR" || got.City != "Paris" || got.ResolvedAt != "2024-03-01T09:30:00Z" {
		t.Fatalf("unexpected header fields: %s", data)
	}
	if len(got.Days) != 2 || got.Days[1].Date != "2024-03-02" || got.Days[1].Temperature != 20 {
		t.Fatalf("unexpected days: %s", data)
	}
}

func TestEncodeMessageEmptySeries(t *testing.T) {
	data, err := encodeMessage(weather.Query{Country: "FR", City: "Nowhere"}, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if string(got["days"]) != "[]" {
		t.Fatalf("expected an empty days array, got %s", got["days"])
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	p := NewMQTTPublisher(Config{BrokerURL: "tcp://127.0.0.1:1883", TopicPrefix: "forecast"}, nil)

	err := p.Publish(context.Background(), weather.Query{Country: "FR", City: "Paris"}, nil)
	if !errors.Is(err, errNotConnected) {
		t.Fatalf("expected errNotConnected, got %v", err)
	}
}

func TestConnectAfterClose(t *testing.T) {
	p := NewMQTTPublisher(Config{BrokerURL: "tcp://127.0.0.1:1883"}, nil)
	p.Close()
	p.Close()

	if err := p.Connect(context.Background()); !errors.Is(err, errStopped) {
		t.Fatalf("expected errStopped, got %v", err)
	}
}

func TestConnectRespectsContext(t *testing.T) {
	// Nothing listens on port 1, and connect retries keep the token pending.
	p := NewMQTTPublisher(Config{BrokerURL: "tcp://127.0.0.1:1"}, nil)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := p.Connect(ctx); err == nil {
		t.Fatalf("expected connect to fail without a broker")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("connect did not give up with its context, took %s", elapsed)
	}
}
