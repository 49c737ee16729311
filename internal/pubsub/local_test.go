package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPublishSubscribe(t *testing.T) {
	ps := NewLocal(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "events", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "events", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestLocalCancelClosesStream(t *testing.T) {
	ps := NewLocal(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)

	cancel()
	cancel() // second cancel is a no-op

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "stream should be closed after cancel")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("stream not closed after cancel")
	}

	assert.NoError(t, ps.Publish(ctx, "events", "dropped"))
}

func TestLocalFullBufferDoesNotBlock(t *testing.T) {
	ps := NewLocal(1)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "events", "first"))
	require.NoError(t, ps.Publish(ctx, "events", "second"))

	msg := <-ch
	assert.Equal(t, "first", msg.Payload)
	select {
	case <-ch:
		t.Fatal("overflowing message should have been dropped")
	default:
	}
}

func TestNewWithoutRedisIsLocal(t *testing.T) {
	ps, err := New(context.Background(), Config{})
	require.NoError(t, err)
	_, ok := ps.(*Local)
	assert.True(t, ok)
}
