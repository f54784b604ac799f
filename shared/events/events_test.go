package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversOnlyToSameTenant(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := hub.Subscribe("tenant_a", CommentCreated)
	b := hub.Subscribe("tenant_b")
	defer a.Close()
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), New(CommentCreated, "tenant_a", "hello")))
	require.NoError(t, hub.Publish(context.Background(), New(CommentRated, "tenant_a", "ignored by type")))

	select {
	case ev := <-a.Events():
		assert.Equal(t, "hello", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("tenant_a subscriber got nothing")
	}

	select {
	case ev := <-a.Events():
		t.Fatalf("unexpected event %+v", ev)
	case ev := <-b.Events():
		t.Fatalf("tenant_b received tenant_a event %+v", ev)
	default:
	}
}

func TestHub_Close(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe("tenant_a")
	assert.Equal(t, 1, hub.Count("tenant_a"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Count("tenant_a"))

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.NoError(t, hub.Publish(context.Background(), New(CommentCreated, "tenant_a", nil)))
}

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaProducer_PublishAndDrainOnClose(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	kp := newKafkaProducer(w, "blog-events", 2)

	for i := 0; i < 10; i++ {
		require.NoError(t, kp.Publish(context.Background(), New(ArticlePublished, "tenant_a", i)))
	}
	require.NoError(t, kp.Close())

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	require.Len(t, w.msgs, 10)

	msg := w.msgs[0]
	assert.Equal(t, "blog-events", msg.Topic)
	assert.Equal(t, "tenant_a", string(msg.Key))
	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, ArticlePublished, ev.Type)

	assert.Error(t, kp.Publish(context.Background(), New(ArticlePublished, "tenant_a", nil)))
}

func TestFanout(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe("tenant_a")
	defer sub.Close()

	failing := publisherFunc(func(context.Context, Event) error { return errors.New("down") })
	err := Fanout(hub, failing).Publish(context.Background(), New(CommentCreated, "tenant_a", 1))
	assert.Error(t, err)
	assert.Len(t, sub.Events(), 1, "healthy publishers still receive the event")
}

type publisherFunc func(context.Context, Event) error

func (f publisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

func TestKafkaProducer_RetriesFailedWrites(t *testing.T) {
	t.Parallel()

	w := &flakyWriter{failures: 2}
	kp := newKafkaProducer(w, "blog-events", 1)
	kp.retryBase = time.Millisecond

	require.NoError(t, kp.Publish(context.Background(), New(CommentCreated, "tenant_a", nil)))
	require.NoError(t, kp.Close())

	assert.Equal(t, 3, w.calls)
	assert.Equal(t, 1, w.written)
}

type flakyWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  int
}

func (w *flakyWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failures {
		return errors.New("broker unavailable")
	}
	w.written += len(msgs)
	return nil
}

func (w *flakyWriter) Close() error { return nil }

type queueReader struct {
	msgs chan kafka.Message
}

func (r *queueReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.msgs:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *queueReader) Close() error { return nil }

func TestKafkaRelay_SkipsOwnEvents(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe("tenant_a")
	defer sub.Close()

	encode := func(e Event) kafka.Message {
		value, err := json.Marshal(e)
		require.NoError(t, err)
		return kafka.Message{Value: value}
	}
	own := New(CommentCreated, "tenant_a", "own")
	own.Origin = "instance-1"
	remote := New(CommentRated, "tenant_a", "remote")
	remote.Origin = "instance-2"

	reader := &queueReader{msgs: make(chan kafka.Message, 3)}
	reader.msgs <- encode(own)
	reader.msgs <- kafka.Message{Value: []byte("not json")}
	reader.msgs <- encode(remote)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newKafkaRelay(reader, "instance-1", hub).Run(ctx)
		close(done)
	}()

	select {
	case got := <-sub.Events():
		assert.Equal(t, CommentRated, got.Type)
		assert.Equal(t, "instance-2", got.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("remote event was not relayed")
	}
	cancel()
	<-done
	assert.Empty(t, sub.Events())
}

func TestWithOrigin(t *testing.T) {
	t.Parallel()

	var got Event
	p := WithOrigin("instance-1", publisherFunc(func(_ context.Context, e Event) error {
		got = e
		return nil
	}))
	require.NoError(t, p.Publish(context.Background(), New(ArticlePublished, "tenant_a", nil)))
	assert.Equal(t, "instance-1", got.Origin)
}
