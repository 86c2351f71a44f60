package kafka

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-ledger/internal/events"
)

func TestEnvelopePublisher_KeysByCorrelationAndTagsHeaders(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, events.TopicOrderLifecycle, 1, zap.NewNop())
	env, err := events.New(events.OrderAssigned, "api", "order-42", events.OrderPayload{OrderID: "order-42", Status: "assigned"})
	require.NoError(t, err)

	require.NoError(t, EnvelopePublisher{P: p}.Publish(context.Background(), env))

	m := <-p.inbox
	assert.Equal(t, events.PartitionKey("order-42"), m.Key)
	headers := map[string]string{}
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, events.OrderAssigned, headers["x-event-type"])
	assert.Equal(t, "1", headers["x-event-version"])

	decoded, err := UnmarshalEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	p2, err := UnwrapPayload[events.OrderPayload](decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, "assigned", p2.Status)
}

func TestUnmarshalEnvelope_RejectsGarbage(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte("nope"))
	assert.Error(t, err)
	_, err = UnwrapPayload[events.OrderPayload]([]byte(`"str"`))
	assert.Error(t, err)
}

func TestProducer_PublishGivesUpWhenInboxFull(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, events.TopicOrderLifecycle, 1, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), []byte("k"), []byte("first")))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.Publish(ctx, []byte("k"), []byte("second"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

// silentBroker accepts TCP connections and never answers.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestEnvelopePublisher_BoundedBySilentBroker(t *testing.T) {
	p := NewProducer([]string{silentBroker(t)}, events.TopicOrderLifecycle, 1, zap.NewNop())
	loopCtx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	p.Start(loopCtx)

	pub := EnvelopePublisher{P: p}
	for i := range 4 {
		env, err := events.New(events.OrderCreated, "api", "order-1", events.OrderPayload{OrderID: "order-1"})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		start := time.Now()
		err = pub.Publish(ctx, env)
		cancel()

		assert.Less(t, time.Since(start), time.Second, "publish %d", i)
		if err != nil {
			assert.ErrorIs(t, err, context.DeadlineExceeded, "publish %d", i)
		}
	}
}
