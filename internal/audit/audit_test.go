package audit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_audit "foodadmin/internal/audit/mocks"
)

const (
	testTimeout = 5 * time.Second
	testTick    = 10 * time.Millisecond
)

type capture struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *capture) add(value []byte) error {
	var entry Entry
	if err := json.Unmarshal(value, &entry); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *capture) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Action
	}
	return out
}

func newCapturingProducer(t *testing.T, c *capture) *mock_audit.MockProducer {
	ctrl := gomock.NewController(t)
	producer := mock_audit.NewMockProducer(ctrl)
	producer.EXPECT().
		SendMessage(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, value []byte) error {
			return c.add(value)
		}).
		AnyTimes()
	producer.EXPECT().Close().Return(nil).AnyTimes()
	return producer
}

func TestManager_FlushOnBatchSize(t *testing.T) {
	captured := &capture{}
	m := NewManager(newCapturingProducer(t, captured), 2, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	for i := 0; i < 3; i++ {
		m.Record(ctx, NewEntry("ana@example.com", "status_update", "o-1", "delivering"))
	}

	require.Eventually(t, func() bool { return captured.count() == 3 }, testTimeout, testTick,
		"batch must flush once it reaches the batch size")
}

func TestManager_FlushOnTimeout(t *testing.T) {
	captured := &capture{}
	m := NewManager(newCapturingProducer(t, captured), 1, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Record(ctx, NewEntry("ana@example.com", "login", "", ""))

	require.Eventually(t, func() bool { return captured.count() == 1 }, testTimeout, testTick,
		"a partial batch must flush after the timeout")
	assert.Equal(t, []string{"login"}, captured.actions())
}

func TestManager_ShutdownFlushesPending(t *testing.T) {
	captured := &capture{}
	m := NewManager(newCapturingProducer(t, captured), 2, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Record(ctx, NewEntry("ana@example.com", "print", "o-9", ""))
	m.Record(ctx, NewEntry("ana@example.com", "logout", "", ""))

	// Give the aggregator a moment to pull both entries off the input
	// channel before shutting down.
	require.Eventually(t, func() bool { return len(m.inputChan) == 0 }, testTimeout, testTick)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	m.Shutdown(shutdownCtx)

	assert.Equal(t, 2, captured.count(), "entries buffered at shutdown must still be published")
}

func TestManager_ShutdownDrainsQueuedInput(t *testing.T) {
	captured := &capture{}
	m := NewManager(newCapturingProducer(t, captured), 1, 100, time.Hour)

	ctx := context.Background()
	m.Start(ctx)

	// Shut down immediately after recording: entries the aggregator has not
	// pulled off the input channel yet must still make the final flush.
	for i := 0; i < 5; i++ {
		m.Record(ctx, NewEntry("ana@example.com", "status_update", "o-1", "delivering"))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	m.Shutdown(shutdownCtx)

	assert.Equal(t, 5, captured.count())
}

func TestManager_RecordAfterShutdownPublishesDirectly(t *testing.T) {
	captured := &capture{}
	m := NewManager(newCapturingProducer(t, captured), 1, 10, time.Hour)

	ctx := context.Background()
	m.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	m.Shutdown(shutdownCtx)

	m.Record(ctx, NewEntry("ana@example.com", "login", "", ""))
	assert.Equal(t, 1, captured.count(), "no staff action may go unrecorded")
}

func TestNewEntry(t *testing.T) {
	entry := NewEntry("ana@example.com", "status_update", "o-1", "completed")
	assert.NotEqual(t, entry.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, "ana@example.com", entry.Actor)
	assert.Equal(t, "status_update", entry.Action)
	assert.Equal(t, "o-1", entry.Subject)
	assert.Equal(t, "completed", entry.Detail)
	assert.WithinDuration(t, time.Now().UTC(), entry.At, time.Minute)
}
