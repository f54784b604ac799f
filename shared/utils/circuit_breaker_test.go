package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errUpstream = errors.New("upstream down")

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", 3, time.Minute)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Call(func() error { return errUpstream }), errUpstream)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errUpstream })
	assert.Equal(t, StateOpen, cb.GetState())

	now = now.Add(2 * time.Second)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errUpstream })
	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return errUpstream })

	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_CountOnly(t *testing.T) {
	t.Parallel()

	clientErr := BadRequest("invalid")
	cb := NewCircuitBreaker("test", 1, time.Minute).CountOnly(func(err error) bool {
		return !errors.Is(err, clientErr)
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Call(func() error { return clientErr }), clientErr)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cb := NewCircuitBreaker("test", 1, time.Minute)
	err := cb.Execute(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_CallerCancellationDoesNotCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", 5, time.Minute)
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		err := cb.Execute(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return fmt.Errorf("publish: %w", ctx.Err())
		})
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	// a deadline error that is not the caller's still counts
	for i := 0; i < 5; i++ {
		_ = cb.Call(func() error { return context.DeadlineExceeded })
	}
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_CancelledHalfOpenCallFreesSlot(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errUpstream })
	now = now.Add(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	err := cb.Execute(ctx, func(context.Context) error {
		cancel()
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}
