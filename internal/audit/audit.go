package audit

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry records one staff action on the console.
type Entry struct {
	ID      uuid.UUID `json:"id"`
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Action  string    `json:"action"`
	Subject string    `json:"subject,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

func NewEntry(actor, action, subject, detail string) Entry {
	return Entry{
		ID:      uuid.New(),
		At:      time.Now().UTC(),
		Actor:   actor,
		Action:  action,
		Subject: subject,
		Detail:  detail,
	}
}

// Manager batches staff-action entries and hands the batches to a pool of
// publish workers. Batches flush on size or after a timeout, whichever
// comes first.
type Manager struct {
	workerCount int
	batchSize   int
	timeout     time.Duration
	producer    Producer

	inputChan  chan Entry
	batchChan  chan []Entry
	shutdownCh chan struct{}
	once       sync.Once

	wg sync.WaitGroup
}

func NewManager(producer Producer, workerCount, batchSize int, timeout time.Duration) *Manager {
	return &Manager{
		workerCount: workerCount,
		batchSize:   batchSize,
		timeout:     timeout,
		producer:    producer,
		inputChan:   make(chan Entry, workerCount*batchSize*2),
		batchChan:   make(chan []Entry, workerCount*2),
		shutdownCh:  make(chan struct{}),
	}
}

func (m *Manager) Start(ctx context.Context) {
	log.Println("Starting audit manager")
	m.wg.Add(1)
	go m.runAggregator(ctx)

	for i := 0; i < m.workerCount; i++ {
		m.wg.Add(1)
		go m.runWorker(ctx, i)
	}
}

// Record enqueues an entry. When the pipeline is already shutting down the
// entry is published synchronously so no action goes unrecorded.
func (m *Manager) Record(ctx context.Context, entry Entry) {
	select {
	case <-m.shutdownCh:
		m.publishBatch(context.Background(), -1, []Entry{entry})
		return
	default:
	}

	select {
	case m.inputChan <- entry:
	case <-m.shutdownCh:
		m.publishBatch(context.Background(), -1, []Entry{entry})
	case <-ctx.Done():
		m.publishBatch(context.Background(), -1, []Entry{entry})
	}
}

func (m *Manager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		log.Println("Initiating audit manager shutdown")
		close(m.shutdownCh)

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Println("Audit manager shutdown completed")
		case <-ctx.Done():
			log.Println("WARNING: audit manager shutdown interrupted")
		}

		if err := m.producer.Close(); err != nil {
			log.Printf("ERROR: Failed to close audit producer: %v", err)
		}
	})
}

func (m *Manager) runAggregator(ctx context.Context) {
	defer m.wg.Done()

	var (
		batch    []Entry
		timer    *time.Timer
		timeoutC <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
		if len(batch) > 0 {
			m.dispatchBatch(batch)
		}
		close(m.batchChan)
	}()

	for {
		select {
		case entry := <-m.inputChan:
			batch = append(batch, entry)
			if len(batch) >= m.batchSize {
				m.dispatchBatch(batch)
				batch = nil
				timeoutC = nil
			} else if len(batch) == 1 {
				timer = time.NewTimer(m.timeout)
				timeoutC = timer.C
			}

		case <-timeoutC:
			m.dispatchBatch(batch)
			batch = nil
			timeoutC = nil

		case <-ctx.Done():
			batch = m.drainInput(batch)
			return

		case <-m.shutdownCh:
			batch = m.drainInput(batch)
			return
		}
	}
}

// drainInput collects entries still buffered at shutdown so the final flush
// does not drop them.
func (m *Manager) drainInput(batch []Entry) []Entry {
	for {
		select {
		case entry := <-m.inputChan:
			batch = append(batch, entry)
		default:
			return batch
		}
	}
}

func (m *Manager) dispatchBatch(batch []Entry) {
	batchCopy := make([]Entry, len(batch))
	copy(batchCopy, batch)

	select {
	case m.batchChan <- batchCopy:
	default:
		// Workers are saturated, publish from the aggregator instead of
		// dropping the batch.
		m.publishBatch(context.Background(), -1, batchCopy)
	}
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()

	for {
		select {
		case batch, ok := <-m.batchChan:
			if !ok {
				return
			}
			m.publishBatch(ctx, id, batch)
		case <-ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case batch, ok := <-m.batchChan:
					if !ok {
						return
					}
					m.publishBatch(context.Background(), id, batch)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) publishBatch(ctx context.Context, workerID int, batch []Entry) {
	for _, entry := range batch {
		value, err := json.Marshal(entry)
		if err != nil {
			log.Printf("ERROR: Failed to marshal audit entry %s: %v", entry.ID, err)
			continue
		}
		if err := m.producer.SendMessage(ctx, []byte(entry.ID.String()), value); err != nil {
			log.Printf("ERROR: Worker %d failed to publish audit entry %s: %v", workerID, entry.ID, err)
		}
	}
}
