package archiver

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/trackstore"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultRetention   = 48 * time.Hour
	DefaultParallelism = 4
)

// BatchSink persists a batch of track records durably.
type BatchSink interface {
	WriteBatch(ctx context.Context, records []*fleet.TrackRecord) error
}

type Options struct {
	TrackStore *trackstore.Store
	Sink       BatchSink

	// How long records stay queryable in memory before eviction
	Retention time.Duration

	Interval    time.Duration
	Parallelism int
}

// Archiver moves track records from the in-memory store into durable
// storage and evicts in-memory history past the retention window. Failed
// batches are requeued so records are never lost between runs.
type Archiver struct {
	tracks      *trackstore.Store
	sink        BatchSink
	retention   time.Duration
	interval    time.Duration
	parallelism int
}

func New(options Options) *Archiver {
	if options.Retention <= 0 {
		options.Retention = DefaultRetention
	}
	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}
	if options.Parallelism <= 0 {
		options.Parallelism = DefaultParallelism
	}

	return &Archiver{
		tracks:      options.TrackStore,
		sink:        options.Sink,
		retention:   options.Retention,
		interval:    options.Interval,
		parallelism: options.Parallelism,
	}
}

// Run performs archive cycles on a fixed interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Info().
		Str("interval", a.interval.String()).
		Str("retention", a.retention.String()).
		Msg("Starting track archiver")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Perform(ctx)
		}
	}
}

// Perform runs a single archive cycle: drain pending records, persist
// them grouped per vehicle, requeue anything that failed, then evict
// in-memory history older than the retention window.
func (a *Archiver) Perform(ctx context.Context) {
	startTime := time.Now()

	pending := a.tracks.DrainPending()
	if len(pending) > 0 {
		failed := a.persist(ctx, pending)
		if len(failed) > 0 {
			a.tracks.RequeuePending(failed)
		}

		log.Info().
			Int("records", len(pending)).
			Int("failed", len(failed)).
			Str("time", time.Since(startTime).String()).
			Msg("Archived track records")
	}

	evicted := a.tracks.EvictBefore(time.Now().UTC().Add(-a.retention))
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Msg("Evicted expired track records")
	}
}

func (a *Archiver) persist(ctx context.Context, records []*fleet.TrackRecord) []*fleet.TrackRecord {
	batches := map[string][]*fleet.TrackRecord{}
	for _, record := range records {
		batches[record.VehicleID] = append(batches[record.VehicleID], record)
	}

	var failedMutex sync.Mutex
	var failed []*fleet.TrackRecord

	archivePool := pool.New().WithMaxGoroutines(a.parallelism)

	for _, batch := range batches {
		batch := batch

		archivePool.Go(func() {
			operation := func() error {
				return a.sink.WriteBatch(ctx, batch)
			}

			retryPolicy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
			if err := backoff.Retry(operation, backoff.WithContext(retryPolicy, ctx)); err != nil {
				log.Error().
					Err(err).
					Str("vehicle", batch[0].VehicleID).
					Int("records", len(batch)).
					Msg("Failed to archive track batch")

				failedMutex.Lock()
				failed = append(failed, batch...)
				failedMutex.Unlock()
			}
		})
	}

	archivePool.Wait()

	return failed
}
