package counts

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"foodadmin/internal/model"
	"foodadmin/internal/stream"
)

// Fetcher is the REST side of the tracker, implemented by *api.Client.
type Fetcher interface {
	CountStatus(ctx context.Context) (model.StatusCounts, error)
}

// EventSource is the subset of the event-stream connection the tracker uses.
type EventSource interface {
	Subscribe(event string, h stream.Handler) *stream.Subscription
	Unsubscribe(sub *stream.Subscription)
}

// Tracker keeps the per-status order counts shown above the dashboard,
// seeded from a REST snapshot and kept live by ordersCountUpdated events.
type Tracker struct {
	ctx     context.Context
	fetcher Fetcher
	source  EventSource
	logger  *zap.Logger

	mu     sync.Mutex
	counts model.StatusCounts
	subs   []*stream.Subscription
}

func New(ctx context.Context, fetcher Fetcher, source EventSource, logger *zap.Logger) *Tracker {
	return &Tracker{
		ctx:     ctx,
		fetcher: fetcher,
		source:  source,
		logger:  logger,
		counts:  make(model.StatusCounts),
	}
}

// Start subscribes to count updates and loads the initial snapshot. Calling
// Start again replaces the previous subscriptions, so a re-login never
// stacks handlers.
func (t *Tracker) Start() error {
	for _, sub := range t.subs {
		t.source.Unsubscribe(sub)
	}
	t.subs = []*stream.Subscription{
		t.source.Subscribe(stream.EventOrdersCountUpdated, t.onCountsUpdated),
		t.source.Subscribe(stream.EventConnected, t.onConnected),
	}
	return t.Refresh(t.ctx)
}

func (t *Tracker) Close() {
	for _, sub := range t.subs {
		t.source.Unsubscribe(sub)
	}
	t.subs = nil
}

// Refresh replaces the counts with a fresh REST snapshot. On failure the
// previous counts stay in place.
func (t *Tracker) Refresh(ctx context.Context) error {
	counts, err := t.fetcher.CountStatus(ctx)
	if err != nil {
		t.logger.Error("count snapshot fetch failed", zap.Error(err))
		return err
	}

	t.mu.Lock()
	t.counts = counts
	t.mu.Unlock()
	return nil
}

// Counts returns a copy of the current per-status counts.
func (t *Tracker) Counts() model.StatusCounts {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(model.StatusCounts, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Get returns the count for one status.
func (t *Tracker) Get(status model.Status) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[status]
}

func (t *Tracker) onCountsUpdated(data json.RawMessage) {
	var counts model.StatusCounts
	if err := json.Unmarshal(data, &counts); err != nil {
		t.logger.Warn("dropping malformed ordersCountUpdated event", zap.Error(err))
		return
	}

	t.mu.Lock()
	t.counts = counts
	t.mu.Unlock()
}

func (t *Tracker) onConnected(json.RawMessage) {
	if err := t.Refresh(t.ctx); err != nil {
		t.logger.Warn("count refresh after reconnect failed", zap.Error(err))
	}
}
