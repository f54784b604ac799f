package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the producer cannot keep up
var ErrQueueFull = errors.New("event queue full, event dropped")

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes events to Kafka from a pool of workers
type KafkaProducer struct {
	writer       messageWriter
	topic        string
	events       chan Event
	workerCount  int
	shutdownChan chan struct{}
	maxAttempts  int
	retryBase    time.Duration
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// NewKafkaProducer creates a producer for topic and starts its workers
func NewKafkaProducer(brokers []string, topic string, workers int) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return newKafkaProducer(writer, topic, workers)
}

func newKafkaProducer(writer messageWriter, topic string, workers int) *KafkaProducer {
	if workers < 1 {
		workers = 1
	}
	kp := &KafkaProducer{
		writer:       writer,
		topic:        topic,
		events:       make(chan Event, 1000),
		workerCount:  workers,
		shutdownChan: make(chan struct{}),
		maxAttempts:  3,
		retryBase:    200 * time.Millisecond,
	}
	for i := 0; i < kp.workerCount; i++ {
		kp.wg.Add(1)
		go kp.worker(i)
	}
	logrus.WithFields(logrus.Fields{"topic": topic, "workers": workers}).Info("Kafka producer started")
	return kp
}

func (kp *KafkaProducer) worker(id int) {
	defer kp.wg.Done()

	for {
		select {
		case event := <-kp.events:
			kp.send(id, event)
		case <-kp.shutdownChan:
			// flush what is already queued
			for {
				select {
				case event := <-kp.events:
					kp.send(id, event)
				default:
					return
				}
			}
		}
	}
}

// send retries with exponential backoff (200ms, 400ms, ...) and drops the
// event once maxAttempts is reached
func (kp *KafkaProducer) send(worker int, event Event) {
	var err error
	for attempt := 1; attempt <= kp.maxAttempts; attempt++ {
		if err = kp.sendSync(event); err == nil {
			return
		}
		if attempt < kp.maxAttempts {
			time.Sleep(kp.retryBase * time.Duration(1<<(attempt-1)))
		}
	}
	logrus.WithFields(logrus.Fields{
		"worker":   worker,
		"type":     event.Type,
		"tenant":   event.Tenant,
		"attempts": kp.maxAttempts,
	}).WithError(err).Error("Failed to send event to Kafka")
}

// Publish queues the event without blocking
func (kp *KafkaProducer) Publish(_ context.Context, event Event) error {
	select {
	case <-kp.shutdownChan:
		return errors.New("kafka producer closed")
	default:
	}

	select {
	case kp.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (kp *KafkaProducer) sendSync(event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: kp.topic,
		Key:   []byte(event.Tenant),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "tenant_id", Value: []byte(event.Tenant)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}
	return nil
}

// Close stops the workers after draining the queue and closes the writer
func (kp *KafkaProducer) Close() error {
	var err error
	kp.closeOnce.Do(func() {
		close(kp.shutdownChan)
		kp.wg.Wait()
		if cerr := kp.writer.Close(); cerr != nil {
			err = fmt.Errorf("failed to close Kafka writer: %w", cerr)
		}
		logrus.Info("Kafka producer stopped")
	})
	return err
}
