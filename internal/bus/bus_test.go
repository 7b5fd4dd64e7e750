package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu       sync.Mutex
	payloads []string
}

func (c *collector) handle(_ string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, string(payload))
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(nil)
	var got collector
	sub := b.Subscribe("1::2", got.handle)
	defer sub.Unsubscribe()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(context.Background(), "1::2", i))
	}

	require.Eventually(t, func() bool { return len(got.snapshot()) == 10 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, got.snapshot())
}

func TestPublishReachesEverySubscriberOfTopicOnly(t *testing.T) {
	b := New(nil)
	var first, second, other collector
	defer b.Subscribe("1::2", first.handle).Unsubscribe()
	defer b.Subscribe("1::2", second.handle).Unsubscribe()
	defer b.Subscribe("1::3", other.handle).Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "1::2", map[string]string{"k": "v"}))

	require.Eventually(t, func() bool {
		return len(first.snapshot()) == 1 && len(second.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, `{"k":"v"}`, first.snapshot()[0])
	assert.Empty(t, other.snapshot())
}

func TestPublishWithoutSubscribersSucceeds(t *testing.T) {
	b := New(nil)
	assert.NoError(t, b.Publish(context.Background(), "9::9", "hello"))
	assert.Equal(t, 0, b.SubscriberCount("9::9"))
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	b := New(nil)
	assert.Error(t, b.Publish(context.Background(), "1::2", make(chan int)))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	var got collector
	sub := b.Subscribe("1::2", got.handle)
	assert.Equal(t, 1, b.SubscriberCount("1::2"))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount("1::2"))

	require.NoError(t, b.Publish(context.Background(), "1::2", "late"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got.snapshot())
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := New(nil, WithQueueSize(1))
	release := make(chan struct{})
	var slow collector
	sub := b.Subscribe("1::2", func(topic string, payload []byte) {
		<-release
		slow.handle(topic, payload)
	})
	defer sub.Unsubscribe()

	var fast collector
	defer b.Subscribe("1::2", fast.handle).Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			_ = b.Publish(context.Background(), "1::2", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	close(release)

	require.Eventually(t, func() bool { return len(slow.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Less(t, len(slow.snapshot()), 50)
}

type fakeRelay struct {
	mu        sync.Mutex
	forwarded []string
	err       error
	incoming  chan relayEnvelope
}

func (f *fakeRelay) Forward(_ context.Context, topic string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwarded = append(f.forwarded, topic)
	return f.err
}

func (f *fakeRelay) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.forwarded...)
}

func (f *fakeRelay) Listen(ctx context.Context, deliver func(string, []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-f.incoming:
			deliver(env.Topic, env.Payload)
		}
	}
}

func TestRelayFailureDoesNotFailPublish(t *testing.T) {
	relay := &fakeRelay{err: errors.New("redis down")}
	b := New(nil, WithRelay(relay))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.RunRelay(ctx) }()

	assert.NoError(t, b.Publish(context.Background(), "1::2", "x"))
	require.Eventually(t, func() bool { return len(relay.sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1::2"}, relay.sent())
}

// stuckRelay blocks every Forward until release is closed.
type stuckRelay struct {
	release chan struct{}
	calls   chan string
}

func (r *stuckRelay) Forward(ctx context.Context, topic string, _ []byte) error {
	r.calls <- topic
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return nil
}

func (r *stuckRelay) Listen(ctx context.Context, _ func(string, []byte)) error {
	<-ctx.Done()
	return nil
}

func TestBlockedRelayDoesNotBlockPublisher(t *testing.T) {
	relay := &stuckRelay{release: make(chan struct{}), calls: make(chan string, 100)}
	b := New(nil, WithRelay(relay), WithRelayQueueSize(2))
	var got collector
	defer b.Subscribe("1::2", got.handle).Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.RunRelay(ctx) }()

	require.NoError(t, b.Publish(context.Background(), "1::2", 0))
	<-relay.calls

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 20; i++ {
			_ = b.Publish(context.Background(), "1::2", i)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish waited on the relay")
	}

	require.Eventually(t, func() bool { return len(got.snapshot()) == 21 }, time.Second, 5*time.Millisecond)

	close(relay.release)
	require.Eventually(t, func() bool { return len(relay.calls) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, relay.calls, 2)
}

func TestRelayedPayloadsReachLocalSubscribers(t *testing.T) {
	relay := &fakeRelay{incoming: make(chan relayEnvelope, 1)}
	b := New(nil, WithRelay(relay))
	var got collector
	defer b.Subscribe("4::7", got.handle).Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.RunRelay(ctx) }()

	relay.incoming <- relayEnvelope{Origin: "other", Topic: "4::7", Payload: json.RawMessage(`"remote"`)}
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `"remote"`, got.snapshot()[0])
}

func TestRelayEnvelopeSkipsOwnEcho(t *testing.T) {
	body, err := encodeRelay("node-a", "1::2", []byte(`{"a":1}`))
	require.NoError(t, err)

	_, _, ok := decodeRelay("node-a", body)
	assert.False(t, ok)

	topic, payload, ok := decodeRelay("node-b", body)
	require.True(t, ok)
	assert.Equal(t, "1::2", topic)
	assert.JSONEq(t, `{"a":1}`, string(payload))

	_, _, ok = decodeRelay("node-b", []byte("not json"))
	assert.False(t, ok)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "12::34", MessageTopic(12, 34))
	assert.Equal(t, "5::34", ChatTopic(5, 34))

	owner, ok := TopicOwner("12::34")
	require.True(t, ok)
	assert.Equal(t, int64(34), owner)

	for _, bad := range []string{"", "12", "::34", "12::", "a::34", "12::b", "1::2::3", "12::-4"} {
		_, ok := TopicOwner(bad)
		assert.False(t, ok, bad)
	}
}
