// Package statsbuffer implements the stats buffer (C2): batched,
// thread-safe ingestion of per-query observations with time- and
// size-triggered flush.
package statsbuffer

import (
	"context"
	"sync"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

// QueryKind enumerates the query kinds recorded in a QueryObservation.
type QueryKind string

const (
	KindRead   QueryKind = "READ"
	KindWrite  QueryKind = "WRITE"
	KindSelect QueryKind = "SELECT"
	KindInsert QueryKind = "INSERT"
	KindUpdate QueryKind = "UPDATE"
	KindDelete QueryKind = "DELETE"
)

// QueryObservation is produced by every traced query. It is immutable
// once constructed.
type QueryObservation struct {
	TenantID   *int64
	Table      string
	Field      *string
	Kind       QueryKind
	DurationMs float64
	At         time.Time
}

// Inserter is the external sink the buffer flushes batches to.
type Inserter interface {
	InsertQueryStats(ctx context.Context, batch []QueryObservation) error
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	defaultMaxBuffer     = 10000
)

// Buffer is the single mutex-guarded append point for query
// observations. Append and swap-out are its only critical sections;
// the actual insert always happens outside the lock.
type Buffer struct {
	mu            sync.Mutex
	items         []QueryObservation
	lastFlush     time.Time
	batchSize     int
	flushInterval time.Duration
	maxBuffer     int

	inserter Inserter
	logger   *logging.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Buffer with the spec's default thresholds.
func New(inserter Inserter, logger *logging.Logger) *Buffer {
	return &Buffer{
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		maxBuffer:     defaultMaxBuffer,
		inserter:      inserter,
		logger:        logger,
		lastFlush:     time.Now(),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Log appends an observation. It is non-blocking except for the short
// append under the mutex; it forces a synchronous flush on the caller's
// goroutine only when the hard cap MaxBuffer is reached.
func (b *Buffer) Log(obs QueryObservation) {
	b.mu.Lock()
	b.items = append(b.items, obs)
	forceFlush := len(b.items) >= b.maxBuffer
	var batch []QueryObservation
	if forceFlush {
		batch = b.swapOutLocked()
	}
	b.mu.Unlock()

	if forceFlush {
		b.insertBatch(context.Background(), batch)
	}
}

// swapOutLocked must be called with mu held; it detaches the current
// buffer contents and resets lastFlush.
func (b *Buffer) swapOutLocked() []QueryObservation {
	batch := b.items
	b.items = nil
	b.lastFlush = time.Now()
	return batch
}

// Run starts a background ticker that fires every quarter of
// FlushInterval and flushes once BatchSize observations are buffered or
// FlushInterval has passed since the last flush.
// It blocks until ctx is cancelled or Stop is called.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval / 4)
	defer ticker.Stop()
	defer close(b.doneCh)

	for {
		select {
		case <-ctx.Done():
			b.flushNow(context.Background())
			return
		case <-b.stopCh:
			b.flushNow(context.Background())
			return
		case <-ticker.C:
			b.maybeFlush(ctx)
		}
	}
}

// Stop signals Run to flush and exit, and waits for it to finish.
func (b *Buffer) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

func (b *Buffer) maybeFlush(ctx context.Context) {
	b.mu.Lock()
	due := len(b.items) >= b.batchSize || time.Since(b.lastFlush) >= b.flushInterval
	var batch []QueryObservation
	if due && len(b.items) > 0 {
		batch = b.swapOutLocked()
	}
	b.mu.Unlock()

	if len(batch) > 0 {
		b.insertBatch(ctx, batch)
	}
}

func (b *Buffer) flushNow(ctx context.Context) {
	b.mu.Lock()
	batch := b.swapOutLocked()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.insertBatch(ctx, batch)
	}
}

// insertBatch issues the batched insert outside the buffer's lock.
// Errors are logged and the batch discarded — best-effort semantics,
// since stats are advisory (spec §4.2, §7 "Transient DB" policy).
func (b *Buffer) insertBatch(ctx context.Context, batch []QueryObservation) {
	if err := b.inserter.InsertQueryStats(ctx, batch); err != nil {
		b.logger.Warn("stats flush failed, batch discarded",
			logging.Int("batch_size", len(batch)), logging.String("error", err.Error()))
	}
}

// Len reports the current in-memory buffer depth, for tests and metrics.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
