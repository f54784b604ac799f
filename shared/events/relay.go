package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageReader is the part of kafka.Reader the relay uses
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaRelay feeds events raised by other instances into the local hub, so
// subscribers see every event of their tenant whichever instance handled the write.
type KafkaRelay struct {
	reader     messageReader
	origin     string
	target     Publisher
	errBackoff time.Duration
}

// NewKafkaRelay reads topic with a consumer group private to origin.
// Only messages produced after startup are relayed.
func NewKafkaRelay(brokers []string, topic, origin string, target Publisher) *KafkaRelay {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        "blog-relay-" + origin,
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return newKafkaRelay(reader, origin, target)
}

func newKafkaRelay(reader messageReader, origin string, target Publisher) *KafkaRelay {
	return &KafkaRelay{reader: reader, origin: origin, target: target, errBackoff: time.Second}
}

// Run relays until ctx is cancelled
func (r *KafkaRelay) Run(ctx context.Context) {
	logrus.WithField("origin", r.origin).Info("Kafka relay started")
	for {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logrus.Info("Kafka relay stopped")
				return
			}
			logrus.WithError(err).Warn("Error reading event from Kafka")
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.errBackoff):
			}
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logrus.WithField("offset", msg.Offset).WithError(err).Warn("Skipping malformed event")
			continue
		}
		// our own events already reached the hub directly
		if event.Origin == r.origin || event.Tenant == "" {
			continue
		}
		if err := r.target.Publish(ctx, event); err != nil {
			logrus.WithField("type", event.Type).WithError(err).Warn("Failed to relay event")
		}
	}
}

// Close closes the reader
func (r *KafkaRelay) Close() error {
	return r.reader.Close()
}
