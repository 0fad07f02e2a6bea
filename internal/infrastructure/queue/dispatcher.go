package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/api/metrics"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256

	followRetryMin = 500 * time.Millisecond
	followRetryMax = 30 * time.Second
)

// Feed is the account change source Follow keeps subscribed to.
type Feed interface {
	Watch(ctx context.Context) (<-chan ports.AccountChange, error)
}

// Dispatcher fans account snapshots out to a fixed set of workers using
// consistent hashing on the username, so snapshots of one account are
// delivered in store order while different accounts proceed in parallel.
type Dispatcher struct {
	workers []chan ports.AccountChange
	handler ports.AccountChangeHandler
	log     zerolog.Logger

	retryMin time.Duration
	retryMax time.Duration
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, handler ports.AccountChangeHandler, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.AccountChange, numWorkers),
		handler:  handler,
		log:      log,
		retryMin: followRetryMin,
		retryMax: followRetryMax,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.AccountChange, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands a snapshot to the worker responsible for its username. It
// blocks once that worker's buffer is full or returns false when ctx ends.
func (d *Dispatcher) Enqueue(ctx context.Context, change ports.AccountChange) bool {
	idx := d.shardIndex(change.Username)
	select {
	case d.workers[idx] <- change:
		metrics.SnapshotQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return true
	case <-ctx.Done():
		return false
	}
}

// Pump enqueues every snapshot read from changes until the channel closes or
// ctx is cancelled.
func (d *Dispatcher) Pump(ctx context.Context, changes <-chan ports.AccountChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				d.log.Warn().Msg("account change feed closed")
				return
			}
			if !d.Enqueue(ctx, change) {
				return
			}
		}
	}
}

// Follow pumps feed until ctx is cancelled. A feed that fails or closes is
// reopened with exponential backoff. Snapshots published while no feed was
// open are lost, so after every reopen the records returned by current are
// enqueued ahead of the new feed.
func (d *Dispatcher) Follow(ctx context.Context, feed Feed, current func(context.Context) []ports.AccountChange) {
	delay := d.retryMin
	reopened := false
	for {
		changes, err := feed.Watch(ctx)
		switch {
		case err == nil:
			if reopened && current != nil {
				for _, change := range current(ctx) {
					if !d.Enqueue(ctx, change) {
						return
					}
				}
				d.log.Info().Msg("account change feed reopened")
			}
			d.Pump(ctx, changes)
			reopened = true
			delay = d.retryMin
		case ctx.Err() == nil:
			d.log.Error().Err(err).Dur("retry_in", delay).Msg("account change feed subscribe failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err != nil {
			delay = min(delay*2, d.retryMax)
		}
	}
}

// shardIndex maps a username deterministically to a worker index.
func (d *Dispatcher) shardIndex(username string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.AccountChange) {
	depth := metrics.SnapshotQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			depth.Set(float64(len(ch)))
			d.log.Debug().
				Str("username", change.Username).
				Bool("deleted", change.Account == nil).
				Int("worker_id", id).
				Msg("delivering account snapshot")
			d.handler.Deliver(ctx, change)
		}
	}
}
