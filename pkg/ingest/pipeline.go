package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/spatialindex"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
	"github.com/transitrack/transitrack/pkg/trackstore"
	"github.com/transitrack/transitrack/pkg/vehiclestate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultStopResolveTimeout    = 200 * time.Millisecond
	DefaultMaxStopDistanceMeters = 500.0
)

// TrackSink is an optional durable write-through target for track records.
// When unset the archiver persists records behind the ingestion path.
type TrackSink interface {
	Write(ctx context.Context, record *fleet.TrackRecord) error
}

// Result acknowledges an ingested event. Applied distinguishes "recorded
// into history" from "promoted to current state" - a stale event is still
// recorded.
type Result struct {
	RecordID primitive.ObjectID `json:"record_id"`
	Applied  bool               `json:"applied"`
	Reason   string             `json:"reason,omitempty"`
}

type Options struct {
	TrackStore   *trackstore.Store
	States       *vehiclestate.Table
	VehicleIndex *spatialindex.Grid
	Stops        *stopnetwork.Network

	// Optional strict registration policy - nil auto-registers any vehicle
	Registry VehicleRegistry

	// Optional durable write-through sink
	Sink TrackSink

	// Optional redis-backed memoisation of nearest-stop lookups
	StopCache *cache.Cache[string]

	StopResolveTimeout    time.Duration
	MaxStopDistanceMeters float64
}

// Pipeline normalises telemetry events and applies them to the track
// store, state table and spatial index. Per event it runs
// validate -> enrich -> append -> conditionally promote, so history is
// never lossy even when current-state promotion is rejected as stale.
type Pipeline struct {
	validate *validator.Validate

	tracks       *trackstore.Store
	states       *vehiclestate.Table
	vehicleIndex *spatialindex.Grid
	stops        *stopnetwork.Network

	registry  VehicleRegistry
	sink      TrackSink
	stopCache *cache.Cache[string]

	stopResolveTimeout    time.Duration
	maxStopDistanceMeters float64
}

func NewPipeline(options Options) *Pipeline {
	if options.StopResolveTimeout <= 0 {
		options.StopResolveTimeout = DefaultStopResolveTimeout
	}
	if options.MaxStopDistanceMeters <= 0 {
		options.MaxStopDistanceMeters = DefaultMaxStopDistanceMeters
	}

	return &Pipeline{
		validate:              validator.New(),
		tracks:                options.TrackStore,
		states:                options.States,
		vehicleIndex:          options.VehicleIndex,
		stops:                 options.Stops,
		registry:              options.Registry,
		sink:                  options.Sink,
		stopCache:             options.StopCache,
		stopResolveTimeout:    options.StopResolveTimeout,
		maxStopDistanceMeters: options.MaxStopDistanceMeters,
	}
}

// Ingest applies one telemetry event. Validation failures are terminal and
// leave no partial writes; a failed nearest-stop enrichment degrades to an
// empty stop reference rather than failing the event.
func (p *Pipeline) Ingest(ctx context.Context, event *fleet.TelemetryEvent) (*Result, error) {
	if err := p.validate.Struct(event); err != nil {
		return nil, fmt.Errorf("%w: %s", fleet.ErrInvalidQuery, err)
	}
	if err := event.Location.Validate(); err != nil {
		return nil, err
	}

	if p.registry != nil && !p.registry.Known(event.VehicleID) {
		return nil, fmt.Errorf("%w: vehicle %s is not registered", fleet.ErrNotFound, event.VehicleID)
	}

	record := &fleet.TrackRecord{
		RecordID:   primitive.NewObjectID(),
		VehicleID:  event.VehicleID,
		ObservedAt: event.ObservedAt.UTC(),
		Location:   event.Location,
		SpeedKMH:   event.SpeedKMH,
		HeadingDeg: event.HeadingDeg,
		GPS:        event.GPS,
		Occupancy:  event.Occupancy,
		Source:     event.Source,
		IngestedAt: time.Now().UTC(),
	}

	record.NearestStopID = p.resolveNearestStop(ctx, event.Location)

	if p.sink != nil {
		if err := p.writeThrough(ctx, record); err != nil {
			return nil, err
		}
	}

	p.tracks.Append(record)

	updateResult := p.states.ApplyUpdateWithHook(record, func() {
		p.vehicleIndex.Upsert(record.VehicleID, record.Location)
	})

	if !updateResult.Applied {
		log.Debug().
			Str("vehicle", record.VehicleID).
			Time("observed_at", record.ObservedAt).
			Msg("Telemetry recorded but stale for current state")
	}

	return &Result{
		RecordID: record.RecordID,
		Applied:  updateResult.Applied,
		Reason:   updateResult.Reason,
	}, nil
}

// writeThrough persists the record with a single bounded retry for
// transient store conditions before surfacing the failure.
func (p *Pipeline) writeThrough(ctx context.Context, record *fleet.TrackRecord) error {
	operation := func() error {
		return p.sink.Write(ctx, record)
	}

	retryPolicy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	if err := backoff.Retry(operation, backoff.WithContext(retryPolicy, ctx)); err != nil {
		return fmt.Errorf("%w: persisting track record: %s", fleet.ErrStore, err)
	}

	return nil
}

// resolveNearestStop is a best-effort enrichment with a bounded budget.
// On timeout it logs and returns an empty id - ingestion proceeds.
func (p *Pipeline) resolveNearestStop(ctx context.Context, location *fleet.Location) string {
	ctx, cancel := context.WithTimeout(ctx, p.stopResolveTimeout)
	defer cancel()

	resultCh := make(chan string, 1)
	go func() {
		resultCh <- p.lookupNearestStop(ctx, location)
	}()

	select {
	case stopID := <-resultCh:
		return stopID
	case <-ctx.Done():
		log.Warn().Dur("budget", p.stopResolveTimeout).Msg("Nearest stop resolution exceeded budget")
		return ""
	}
}

const stopCacheMiss = "N/A"

func (p *Pipeline) lookupNearestStop(ctx context.Context, location *fleet.Location) string {
	var cellKey string
	if p.stopCache != nil {
		// Cell-granularity memoisation: every point in the same grid cell
		// shares one answer, which is within one cell size of exact
		cellKey = fmt.Sprintf("neareststop/%s", p.stops.CellKey(location))

		if cached, err := p.stopCache.Get(ctx, cellKey); err == nil {
			if cached == stopCacheMiss {
				return ""
			}

			return cached
		}
	}

	stopID, _, ok := p.stops.NearestStop(location, p.maxStopDistanceMeters)

	if p.stopCache != nil {
		cacheValue := stopID
		if !ok {
			cacheValue = stopCacheMiss
		}

		if err := p.stopCache.Set(ctx, cellKey, cacheValue); err != nil {
			log.Debug().Err(err).Msg("Failed to cache nearest stop")
		}
	}

	if !ok {
		return ""
	}

	return stopID
}
