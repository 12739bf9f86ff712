package notify

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"foodadmin/internal/stream"
)

// EventSource is the subset of the event-stream connection the counter uses.
type EventSource interface {
	Subscribe(event string, h stream.Handler) *stream.Subscription
	Unsubscribe(sub *stream.Subscription)
}

// Message is the notifyAdmin payload: a customer wrote into an order's chat.
type Message struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// Counter tracks unread chat messages per order. Opening an order's chat
// clears its counter.
type Counter struct {
	source EventSource
	logger *zap.Logger

	mu     sync.Mutex
	unread map[string]int
	sub    *stream.Subscription
}

func New(source EventSource, logger *zap.Logger) *Counter {
	return &Counter{
		source: source,
		logger: logger,
		unread: make(map[string]int),
	}
}

// Start subscribes to chat notifications. Calling Start again replaces the
// previous subscription, so a re-login never stacks handlers.
func (c *Counter) Start() {
	c.source.Unsubscribe(c.sub)
	c.sub = c.source.Subscribe(stream.EventNotifyAdmin, c.onNotify)
}

func (c *Counter) Close() {
	c.source.Unsubscribe(c.sub)
	c.sub = nil
}

// Unread returns the number of unread messages for one order.
func (c *Counter) Unread(orderID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread[orderID]
}

// Total returns the number of unread messages across all orders.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.unread {
		total += n
	}
	return total
}

// Clear marks an order's chat as read.
func (c *Counter) Clear(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.unread, orderID)
}

func (c *Counter) onNotify(data json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("dropping malformed notifyAdmin event", zap.Error(err))
		return
	}
	if msg.OrderID == "" {
		return
	}

	c.mu.Lock()
	c.unread[msg.OrderID]++
	c.mu.Unlock()
}
