package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceReader serves msgs in order, then blocks until ctx is done
type sliceReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error { return nil }

func (r *sliceReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func testConsumer(r MessageReader) *Consumer {
	c := newConsumer(r, "sale-events")
	c.minBackoff = time.Millisecond
	c.maxBackoff = 5 * time.Millisecond
	return c
}

func TestConsumerRetriesFailedMessageBeforeMovingOn(t *testing.T) {
	r := &sliceReader{msgs: []kafka.Message{{Offset: 0}, {Offset: 1}}}
	c := testConsumer(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var handled []int64
	failed := false
	handler := func(ctx context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		if msg.Offset == 0 && !failed {
			failed = true
			return errors.New("store unavailable")
		}
		handled = append(handled, msg.Offset)
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []int64{0, 1}, r.commits())
	mu.Lock()
	assert.Equal(t, []int64{0, 1}, handled)
	mu.Unlock()
}

func TestConsumerStopsWithoutCommittingOnCancel(t *testing.T) {
	r := &sliceReader{msgs: []kafka.Message{{Offset: 0}, {Offset: 1}}}
	c := testConsumer(r)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := make(chan struct{}, 16)
	handler := func(ctx context.Context, msg kafka.Message) error {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return errors.New("always failing")
	}

	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	<-attempts
	<-attempts
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, r.commits())
}

func TestConsumerSkipsMalformedMessage(t *testing.T) {
	r := &sliceReader{msgs: []kafka.Message{{Offset: 0, Value: []byte("not json")}, {Offset: 1}}}
	c := testConsumer(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, msg kafka.Message) error {
		if msg.Offset == 0 {
			return NewEventHandler().HandleMessage(ctx, msg)
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
