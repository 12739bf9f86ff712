package stream

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"foodadmin/internal/metrics"
)

// Event names pushed by the backend.
const (
	EventNewOrder           = "newOrder"
	EventOrderStatusUpdated = "orderStatusUpdated"
	EventOrdersCountUpdated = "ordersCountUpdated"
	EventNotifyAdmin        = "notifyAdmin"

	// EventConnected is synthesized locally whenever the connection is
	// (re)established, so owners can refetch state missed while offline.
	EventConnected = "connected"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler receives the raw payload of a named event. Handlers for the same
// connection are invoked sequentially, never concurrently.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	event string
	id    int
}

// Conn is the single process-wide event-stream connection. It is created
// once, injected into every component that needs live updates, and owns an
// explicit Connect/Close lifecycle.
type Conn struct {
	rawURL   string
	clientID string
	dialer   *websocket.Dialer
	logger   *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	ws     *websocket.Conn
	closed bool

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func New(rawURL string, logger *zap.Logger) *Conn {
	return &Conn{
		rawURL:   rawURL,
		clientID: uuid.New().String()[:8],
		dialer:   websocket.DefaultDialer,
		logger:   logger,
		subs:     make(map[string]map[int]Handler),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a handler for a named event and returns its handle.
func (c *Conn) Subscribe(event string, h Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	if c.subs[event] == nil {
		c.subs[event] = make(map[int]Handler)
	}
	c.subs[event][c.nextID] = h
	return &Subscription{event: event, id: c.nextID}
}

// Unsubscribe removes a handler. Removing an already-removed subscription is
// a no-op.
func (c *Conn) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if handlers, ok := c.subs[sub.event]; ok {
		delete(handlers, sub.id)
	}
}

// Connect starts the connection loop. It returns immediately; the loop keeps
// the connection alive with capped exponential backoff until ctx is
// cancelled or Close is called. Connect after Close is a no-op.
func (c *Conn) Connect(ctx context.Context) {
	c.startOnce.Do(func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.mu.Unlock()

		go c.run(runCtx)
	})
}

// Close tears the connection down and waits for the loop to exit.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		cancel := c.cancel
		c.mu.Unlock()

		if cancel == nil {
			close(c.done)
			return
		}
		cancel()
		c.closeCurrent()
		<-c.done
	})
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		ws, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("event stream dial failed",
				zap.String("url", c.rawURL),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			metrics.StreamReconnectsTotal.Inc()

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff
		c.setCurrent(ws)
		c.logger.Info("event stream connected", zap.String("url", c.rawURL))
		c.dispatch(EventConnected, nil)

		c.readLoop(ctx, ws)
		c.setCurrent(nil)

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("event stream disconnected, reconnecting")
		metrics.StreamReconnectsTotal.Inc()
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("clientId", c.clientID)
	u.RawQuery = q.Encode()

	ws, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	return ws, err
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("event stream read failed", zap.Error(err))
			}
			ws.Close()
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Warn("dropping malformed event", zap.Error(err))
			continue
		}
		if env.Event == "" {
			continue
		}

		metrics.StreamEventsTotal.WithLabelValues(env.Event).Inc()
		c.dispatch(env.Event, env.Data)
	}
}

func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs[event]))
	for _, h := range c.subs[event] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

func (c *Conn) setCurrent(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

func (c *Conn) closeCurrent() {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}
