package feed

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"foodadmin/internal/metrics"
	"foodadmin/internal/model"
	"foodadmin/internal/stream"
)

//go:generate mockgen -source ./feed.go -destination=./mocks/feed.go -package=mock_feed

// SnapshotFetcher is the REST side of the feed, implemented by *api.Client.
type SnapshotFetcher interface {
	AdminOrders(ctx context.Context, status model.Status) ([]model.Order, error)
}

// EventSource is the subset of the event-stream connection the feed uses.
type EventSource interface {
	Subscribe(event string, h stream.Handler) *stream.Subscription
	Unsubscribe(sub *stream.Subscription)
}

// Feed owns the dashboard order list for the active status filter. It merges
// a REST snapshot with the newOrder and orderStatusUpdated event streams,
// keeping one invariant at all times: every visible order has the filter's
// status. Membership is decided solely by an order's current status, never
// by which path delivered it.
type Feed struct {
	ctx     context.Context
	fetcher SnapshotFetcher
	source  EventSource
	logger  *zap.Logger

	mu      sync.Mutex
	filter  model.Status
	orders  []model.Order
	gen     uint64
	loading bool
	lastErr error
	subs    []*stream.Subscription
}

func New(ctx context.Context, fetcher SnapshotFetcher, source EventSource, logger *zap.Logger) *Feed {
	return &Feed{
		ctx:     ctx,
		fetcher: fetcher,
		source:  source,
		logger:  logger,
		filter:  model.DefaultStatus,
	}
}

// Start establishes the event subscriptions and loads the first snapshot.
func (f *Feed) Start() error {
	f.resubscribe()
	return f.Refresh(f.ctx)
}

// Close releases the event subscriptions.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, sub := range subs {
		f.source.Unsubscribe(sub)
	}
}

// Filter returns the active status filter.
func (f *Feed) Filter() model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter
}

// Orders returns a copy of the merged list, newest first.
func (f *Feed) Orders() []model.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Order, len(f.orders))
	copy(out, f.orders)
	return out
}

// Err returns the error from the most recent snapshot fetch, if any. A
// failed fetch never clears a previously merged list.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Loading reports whether a snapshot fetch is in flight.
func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// SetFilter switches the active status filter: non-matching orders are
// evicted immediately, the subscription set is replaced, and a fresh
// snapshot is fetched. A late response from a fetch issued for the previous
// filter is discarded.
func (f *Feed) SetFilter(status model.Status) error {
	if !status.Valid() {
		return &InvalidFilterError{Status: status}
	}

	f.mu.Lock()
	if status == f.filter {
		f.mu.Unlock()
		return nil
	}
	f.filter = status
	f.gen++
	f.evictLocked()
	f.mu.Unlock()

	f.resubscribe()
	return f.Refresh(f.ctx)
}

// Refresh fetches a snapshot for the current filter and replaces the list
// with it. On failure the previous list stays intact and the error is
// surfaced via Err. The loading flag is cleared on both paths.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	filter := f.filter
	gen := f.gen
	f.loading = true
	f.mu.Unlock()

	orders, err := f.fetcher.AdminOrders(ctx, filter)

	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.gen {
		// The filter changed while this fetch was in flight.
		f.logger.Debug("discarding stale snapshot", zap.String("filter", filter.String()))
		return nil
	}

	f.loading = false
	if err != nil {
		f.lastErr = err
		f.logger.Error("snapshot fetch failed", zap.String("filter", filter.String()), zap.Error(err))
		return err
	}

	f.lastErr = nil
	f.orders = f.orders[:0]
	for _, o := range orders {
		if o.Status == f.filter {
			f.orders = append(f.orders, o)
		}
	}
	metrics.FeedOrders.Set(float64(len(f.orders)))
	return nil
}

// HandleNewOrder applies a newOrder event: prepend when the order belongs to
// the active filter and is not already present, otherwise ignore.
func (f *Feed) HandleNewOrder(order model.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if order.Status != f.filter {
		return
	}
	if f.indexLocked(order.ID) >= 0 {
		return
	}
	f.orders = append([]model.Order{order}, f.orders...)
	metrics.FeedOrders.Set(float64(len(f.orders)))
}

// HandleStatusChanged applies an orderStatusUpdated event: evict when the
// order left the active filter, replace in place when it is already visible,
// prepend when it just transitioned into view. Applying the same event twice
// yields the same list as applying it once.
func (f *Feed) HandleStatusChanged(updated model.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.indexLocked(updated.ID)

	if updated.Status != f.filter {
		if idx >= 0 {
			f.orders = append(f.orders[:idx], f.orders[idx+1:]...)
		}
	} else if idx >= 0 {
		f.orders[idx] = updated
	} else {
		f.orders = append([]model.Order{updated}, f.orders...)
	}
	metrics.FeedOrders.Set(float64(len(f.orders)))
}

// resubscribe replaces the active subscription set, so exactly one pair of
// event handlers is registered at any time.
func (f *Feed) resubscribe() {
	f.mu.Lock()
	old := f.subs
	f.mu.Unlock()

	for _, sub := range old {
		f.source.Unsubscribe(sub)
	}

	subs := []*stream.Subscription{
		f.source.Subscribe(stream.EventNewOrder, f.onNewOrder),
		f.source.Subscribe(stream.EventOrderStatusUpdated, f.onStatusChanged),
		f.source.Subscribe(stream.EventConnected, f.onConnected),
	}

	f.mu.Lock()
	f.subs = subs
	f.mu.Unlock()
}

func (f *Feed) onNewOrder(data json.RawMessage) {
	var order model.Order
	if err := json.Unmarshal(data, &order); err != nil {
		f.logger.Warn("dropping malformed newOrder event", zap.Error(err))
		return
	}
	f.HandleNewOrder(order)
}

func (f *Feed) onStatusChanged(data json.RawMessage) {
	var order model.Order
	if err := json.Unmarshal(data, &order); err != nil {
		f.logger.Warn("dropping malformed orderStatusUpdated event", zap.Error(err))
		return
	}
	f.HandleStatusChanged(order)
}

// onConnected refetches the snapshot after a reconnect, since events pushed
// while offline were lost.
func (f *Feed) onConnected(json.RawMessage) {
	if err := f.Refresh(f.ctx); err != nil {
		f.logger.Warn("snapshot refresh after reconnect failed", zap.Error(err))
	}
}

func (f *Feed) indexLocked(id string) int {
	for i := range f.orders {
		if f.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *Feed) evictLocked() {
	kept := f.orders[:0]
	for _, o := range f.orders {
		if o.Status == f.filter {
			kept = append(kept, o)
		}
	}
	f.orders = kept
	metrics.FeedOrders.Set(float64(len(f.orders)))
}

// InvalidFilterError reports a filter value outside the status enumeration.
type InvalidFilterError struct {
	Status model.Status
}

func (e *InvalidFilterError) Error() string {
	return "invalid status filter: " + string(e.Status)
}
