package counts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foodadmin/internal/model"
	"foodadmin/internal/stream"
)

type fakeFetcher struct {
	counts model.StatusCounts
	err    error
	calls  int
}

func (f *fakeFetcher) CountStatus(context.Context) (model.StatusCounts, error) {
	f.calls++
	return f.counts, f.err
}

type fakeSource struct {
	handlers map[*stream.Subscription]stream.Handler
	events   map[*stream.Subscription]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		handlers: make(map[*stream.Subscription]stream.Handler),
		events:   make(map[*stream.Subscription]string),
	}
}

func (f *fakeSource) Subscribe(event string, h stream.Handler) *stream.Subscription {
	sub := &stream.Subscription{}
	f.handlers[sub] = h
	f.events[sub] = event
	return sub
}

func (f *fakeSource) Unsubscribe(sub *stream.Subscription) {
	delete(f.handlers, sub)
	delete(f.events, sub)
}

func (f *fakeSource) emit(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	for sub, h := range f.handlers {
		if f.events[sub] == event {
			h(data)
		}
	}
}

func TestTracker_StartLoadsSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{counts: model.StatusCounts{
		model.StatusPending:   2,
		model.StatusPreparing: 5,
	}}
	source := newFakeSource()
	tracker := New(context.Background(), fetcher, source, zap.NewNop())

	require.NoError(t, tracker.Start())
	defer tracker.Close()

	assert.Equal(t, 5, tracker.Get(model.StatusPreparing))
	assert.Equal(t, 2, tracker.Get(model.StatusPending))
	assert.Equal(t, 0, tracker.Get(model.StatusCancelled))
	assert.Len(t, source.handlers, 2)
}

func TestTracker_SnapshotFailureKeepsCounts(t *testing.T) {
	fetcher := &fakeFetcher{counts: model.StatusCounts{model.StatusPending: 3}}
	source := newFakeSource()
	tracker := New(context.Background(), fetcher, source, zap.NewNop())

	require.NoError(t, tracker.Start())
	defer tracker.Close()

	fetcher.err = errors.New("backend down")
	require.Error(t, tracker.Refresh(context.Background()))
	assert.Equal(t, 3, tracker.Get(model.StatusPending), "failed refresh must not wipe counts")
}

func TestTracker_CountEventReplacesCounts(t *testing.T) {
	fetcher := &fakeFetcher{counts: model.StatusCounts{model.StatusPending: 1}}
	source := newFakeSource()
	tracker := New(context.Background(), fetcher, source, zap.NewNop())

	require.NoError(t, tracker.Start())
	defer tracker.Close()

	source.emit(t, stream.EventOrdersCountUpdated, model.StatusCounts{
		model.StatusPending:    4,
		model.StatusDelivering: 1,
	})

	assert.Equal(t, 4, tracker.Get(model.StatusPending))
	assert.Equal(t, 1, tracker.Get(model.StatusDelivering))
}

func TestTracker_RefetchesOnReconnect(t *testing.T) {
	fetcher := &fakeFetcher{counts: model.StatusCounts{}}
	source := newFakeSource()
	tracker := New(context.Background(), fetcher, source, zap.NewNop())

	require.NoError(t, tracker.Start())
	defer tracker.Close()
	require.Equal(t, 1, fetcher.calls)

	fetcher.counts = model.StatusCounts{model.StatusCompleted: 7}
	source.emit(t, stream.EventConnected, struct{}{})

	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, 7, tracker.Get(model.StatusCompleted))
}

func TestTracker_RestartReplacesSubscriptions(t *testing.T) {
	fetcher := &fakeFetcher{counts: model.StatusCounts{}}
	source := newFakeSource()
	tracker := New(context.Background(), fetcher, source, zap.NewNop())

	// Login, logout, login.
	require.NoError(t, tracker.Start())
	tracker.Close()
	require.NoError(t, tracker.Start())
	require.NoError(t, tracker.Start())
	assert.Len(t, source.handlers, 2, "restart must not stack handlers")

	tracker.Close()
	assert.Empty(t, source.handlers)
}

func TestTracker_CountsReturnsCopy(t *testing.T) {
	fetcher := &fakeFetcher{counts: model.StatusCounts{model.StatusPending: 1}}
	source := newFakeSource()
	tracker := New(context.Background(), fetcher, source, zap.NewNop())

	require.NoError(t, tracker.Start())
	defer tracker.Close()

	got := tracker.Counts()
	got[model.StatusPending] = 99
	assert.Equal(t, 1, tracker.Get(model.StatusPending))
}

func TestTracker_MalformedEventIsDropped(t *testing.T) {
	fetcher := &fakeFetcher{counts: model.StatusCounts{model.StatusPending: 1}}
	source := newFakeSource()
	tracker := New(context.Background(), fetcher, source, zap.NewNop())

	require.NoError(t, tracker.Start())
	defer tracker.Close()

	source.emit(t, stream.EventOrdersCountUpdated, "not-a-count-map")
	assert.Equal(t, 1, tracker.Get(model.StatusPending))
}
