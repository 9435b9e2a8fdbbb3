package activitypub

import (
	"hash/crc32"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/util"
)

const (
	deliveryPollInterval = 5 * time.Second
	deliveryBatchSize    = 100
	deliveryTaskBuffer   = 64
	maxDeliveryAttempts  = 6
	processedSweepEvery  = time.Hour
)

// retrySchedule is the backoff applied after the n-th failed attempt.
var retrySchedule = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	time.Hour,
	6 * time.Hour,
}

// DeliveryWorker drains the persistent delivery queue. Items are
// sharded over the workers by inbox URI so deliveries to the same inbox
// stay ordered, one worker at a time.
type DeliveryWorker struct {
	database Database
	client   HTTPClient
	tasks    []chan domain.DeliveryItem
	quit     chan struct{}

	pollerWg sync.WaitGroup
	workerWg sync.WaitGroup

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool

	lastSweep time.Time
}

// NewDeliveryWorker builds a worker pool without starting it.
func NewDeliveryWorker(conf *util.AppConfig, database Database, client HTTPClient) *DeliveryWorker {
	workers := conf.Conf.DeliveryWorkers
	if workers < 1 {
		workers = 1
	}

	w := &DeliveryWorker{
		database: database,
		client:   client,
		tasks:    make([]chan domain.DeliveryItem, workers),
		quit:     make(chan struct{}),
		inFlight: make(map[uuid.UUID]bool),
	}
	for i := range w.tasks {
		w.tasks[i] = make(chan domain.DeliveryItem, deliveryTaskBuffer)
	}
	return w
}

// StartDeliveryWorker builds and starts the delivery pool.
func StartDeliveryWorker(conf *util.AppConfig, database Database, client HTTPClient) *DeliveryWorker {
	w := NewDeliveryWorker(conf, database, client)
	w.Start()
	return w
}

// Start launches the consumer goroutines and the queue poller.
func (w *DeliveryWorker) Start() {
	for i := range w.tasks {
		w.workerWg.Add(1)
		go w.consume(w.tasks[i])
	}
	w.pollerWg.Add(1)
	go w.poll()
	log.Printf("Delivery: Started %d delivery workers", len(w.tasks))
}

// Stop drains the pool: the poller stops first so no new work arrives,
// then the workers finish whatever they already pulled.
func (w *DeliveryWorker) Stop() {
	close(w.quit)
	w.pollerWg.Wait()
	for _, ch := range w.tasks {
		close(ch)
	}
	w.workerWg.Wait()
	log.Println("Delivery: Workers stopped")
}

func (w *DeliveryWorker) poll() {
	defer w.pollerWg.Done()

	ticker := time.NewTicker(deliveryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			if !w.processBatch() {
				return
			}
			w.maybeSweep()
		}
	}
}

// processBatch dispatches due queue items to their shard. Returns false
// when shutdown interrupted dispatch.
func (w *DeliveryWorker) processBatch() bool {
	err, items := w.database.ReadPendingDeliveries(time.Now(), deliveryBatchSize)
	if err != nil {
		log.Printf("Delivery: Failed to read pending deliveries: %v", err)
		return true
	}

	for _, item := range items {
		w.mu.Lock()
		if w.inFlight[item.Id] {
			w.mu.Unlock()
			continue
		}
		w.inFlight[item.Id] = true
		w.mu.Unlock()

		shard := shardFor(item.InboxURI, len(w.tasks))
		select {
		case w.tasks[shard] <- item:
		case <-w.quit:
			return false
		}
	}
	return true
}

// shardFor maps an inbox URI onto a worker index. Same inbox, same
// worker, so per-inbox ordering holds.
func shardFor(inboxURI string, workers int) int {
	return int(crc32.ChecksumIEEE([]byte(inboxURI)) % uint32(workers))
}

// maybeSweep clears expired replay-protection rows at most once an hour.
func (w *DeliveryWorker) maybeSweep() {
	if time.Since(w.lastSweep) < processedSweepEvery {
		return
	}
	w.lastSweep = time.Now()

	deleted, err := w.database.DeleteExpiredProcessedActivities(time.Now())
	if err != nil {
		log.Printf("Delivery: Failed to sweep processed activities: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Delivery: Swept %d expired processed activities", deleted)
	}
}

func (w *DeliveryWorker) consume(tasks <-chan domain.DeliveryItem) {
	defer w.workerWg.Done()
	for item := range tasks {
		w.deliver(item)
		w.mu.Lock()
		delete(w.inFlight, item.Id)
		w.mu.Unlock()
	}
}

// deliver attempts one queue item and settles its fate: delete on
// success or permanent failure, reschedule with backoff otherwise.
func (w *DeliveryWorker) deliver(item domain.DeliveryItem) {
	err, sender := w.database.ReadAccountById(item.AccountId)
	if err != nil || sender == nil {
		log.Printf("Delivery: Sender %s gone, dropping delivery %s", item.AccountId, item.Id)
		w.drop(item.Id)
		return
	}

	status, deliverErr := deliverSigned([]byte(item.ActivityJSON), item.InboxURI, sender, w.client)
	if deliverErr == nil {
		log.Printf("Delivery: Delivered %s to %s (status: %d)", item.Id, item.InboxURI, status)
		w.drop(item.Id)
		return
	}

	// 4xx responses will not get better with time, except for timeouts
	// and rate limits.
	permanent := status >= 400 && status < 500 && status != 408 && status != 429
	if permanent {
		log.Printf("Delivery: Permanent failure %d delivering %s to %s, dropping", status, item.Id, item.InboxURI)
		w.drop(item.Id)
		return
	}

	attempts := item.Attempts + 1
	if attempts >= maxDeliveryAttempts {
		log.Printf("Delivery: Giving up on %s to %s after %d attempts: %v", item.Id, item.InboxURI, attempts, deliverErr)
		w.drop(item.Id)
		return
	}

	backoff := retrySchedule[attempts-1]
	log.Printf("Delivery: Attempt %d to %s failed (%v), retrying in %v", attempts, item.InboxURI, deliverErr, backoff)
	if err := w.database.UpdateDeliveryAttempt(item.Id, attempts, time.Now().Add(backoff)); err != nil {
		log.Printf("Delivery: Failed to reschedule %s: %v", item.Id, err)
	}
}

func (w *DeliveryWorker) drop(id uuid.UUID) {
	if err := w.database.DeleteDelivery(id); err != nil {
		log.Printf("Delivery: Failed to delete delivery %s: %v", id, err)
	}
}
