package stream

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foodadmin/internal/apitest"
	"foodadmin/internal/model"
)

const (
	testTimeout = 5 * time.Second
	testTick    = 10 * time.Millisecond
)

type recorder struct {
	mu     sync.Mutex
	events []json.RawMessage
}

func (r *recorder) handle(data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) last() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func startConn(t *testing.T, srv *apitest.Server) *Conn {
	t.Helper()

	conn := New(srv.StreamURL(), zap.NewNop())
	t.Cleanup(conn.Close)

	connected := &recorder{}
	conn.Subscribe(EventConnected, connected.handle)
	conn.Connect(context.Background())

	require.Eventually(t, func() bool { return connected.count() > 0 }, testTimeout, testTick,
		"connection never established")
	return conn
}

func TestConn_DispatchesNamedEvents(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	conn := startConn(t, srv)

	newOrders := &recorder{}
	counts := &recorder{}
	conn.Subscribe(EventNewOrder, newOrders.handle)
	conn.Subscribe(EventOrdersCountUpdated, counts.handle)

	srv.PushEvent(EventNewOrder, model.Order{ID: "o-1", Status: model.StatusPreparing})
	require.Eventually(t, func() bool { return newOrders.count() == 1 }, testTimeout, testTick)

	var order model.Order
	require.NoError(t, json.Unmarshal(newOrders.last(), &order))
	assert.Equal(t, "o-1", order.ID)
	assert.Equal(t, model.StatusPreparing, order.Status)

	// Other event names do not leak into this subscription.
	assert.Zero(t, counts.count())
}

func TestConn_Unsubscribe(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	conn := startConn(t, srv)

	removed := &recorder{}
	kept := &recorder{}
	sub := conn.Subscribe(EventNewOrder, removed.handle)
	conn.Subscribe(EventNewOrder, kept.handle)

	conn.Unsubscribe(sub)
	conn.Unsubscribe(sub) // removing twice is a no-op

	srv.PushEvent(EventNewOrder, model.Order{ID: "o-2"})
	require.Eventually(t, func() bool { return kept.count() == 1 }, testTimeout, testTick)
	assert.Zero(t, removed.count(), "unsubscribed handler must not fire")
}

func TestConn_ReconnectsAfterDrop(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	conn := New(srv.StreamURL(), zap.NewNop())
	defer conn.Close()

	connected := &recorder{}
	orders := &recorder{}
	conn.Subscribe(EventConnected, connected.handle)
	conn.Subscribe(EventNewOrder, orders.handle)
	conn.Connect(context.Background())

	require.Eventually(t, func() bool { return connected.count() == 1 }, testTimeout, testTick)

	srv.DropConnections()
	require.Eventually(t, func() bool { return connected.count() >= 2 }, testTimeout, testTick,
		"connection was not re-established after the drop")

	// Subscriptions survive the reconnect.
	srv.PushEvent(EventNewOrder, model.Order{ID: "o-3"})
	require.Eventually(t, func() bool { return orders.count() == 1 }, testTimeout, testTick)
}

func TestConn_ConnectAfterCloseIsNoop(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	conn := New(srv.StreamURL(), zap.NewNop())
	conn.Close()
	conn.Connect(context.Background())
	conn.Close()

	connected := &recorder{}
	conn.Subscribe(EventConnected, connected.handle)
	assert.Never(t, func() bool { return connected.count() > 0 }, 100*time.Millisecond, testTick,
		"a closed connection must not start dialing")
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	conn := startConn(t, srv)
	conn.Close()
	conn.Close()
}
