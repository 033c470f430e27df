package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/spatialindex"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
	"github.com/transitrack/transitrack/pkg/trackstore"
	"github.com/transitrack/transitrack/pkg/vehiclestate"
)

type fixture struct {
	tracks       *trackstore.Store
	states       *vehiclestate.Table
	vehicleIndex *spatialindex.Grid
	stops        *stopnetwork.Network
	pipeline     *Pipeline
}

func newFixture(t *testing.T, options func(*Options)) *fixture {
	t.Helper()

	f := &fixture{
		tracks:       trackstore.NewStore(),
		states:       vehiclestate.NewTable(),
		vehicleIndex: spatialindex.NewGrid(spatialindex.DefaultCellSizeMeters),
		stops:        stopnetwork.NewNetwork(spatialindex.DefaultCellSizeMeters),
	}

	pipelineOptions := Options{
		TrackStore:   f.tracks,
		States:       f.states,
		VehicleIndex: f.vehicleIndex,
		Stops:        f.stops,
	}
	if options != nil {
		options(&pipelineOptions)
	}

	f.pipeline = NewPipeline(pipelineOptions)

	return f
}

func event(vehicleID string, observedAt time.Time, lon float64, lat float64) *fleet.TelemetryEvent {
	return &fleet.TelemetryEvent{
		VehicleID:  vehicleID,
		ObservedAt: observedAt,
		Location:   fleet.NewLocation(lon, lat),
		Source:     "test-feed",
	}
}

func TestPipeline_IngestPromotes(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	result, err := f.pipeline.Ingest(context.Background(), event("KDA-001", base, 36.8219, -1.2921))
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, vehiclestate.ReasonNew, result.Reason)
	assert.False(t, result.RecordID.IsZero())

	state := f.states.Get("KDA-001")
	require.NotNil(t, state)
	assert.Equal(t, base, state.LastObservedAt)

	entries := f.vehicleIndex.WithinRadius(fleet.NewLocation(36.8219, -1.2921), 50, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, "KDA-001", entries[0].Key)
}

func TestPipeline_InvalidGeometryLeavesNoTrace(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := f.pipeline.Ingest(context.Background(), event("KDA-002", base, 36.8219, 999))
	assert.ErrorIs(t, err, fleet.ErrInvalidGeometry)

	records, rangeErr := f.tracks.Range("KDA-002", nil, nil, 0)
	require.NoError(t, rangeErr)
	assert.Empty(t, records)
	assert.Nil(t, f.states.Get("KDA-002"))
}

func TestPipeline_MalformedEventRejected(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing vehicle id", func(t *testing.T) {
		bad := event("", base, 36.8, -1.29)
		_, err := f.pipeline.Ingest(context.Background(), bad)
		assert.ErrorIs(t, err, fleet.ErrInvalidQuery)
	})

	t.Run("negative speed", func(t *testing.T) {
		speed := -4.0
		bad := event("KDA-003", base, 36.8, -1.29)
		bad.SpeedKMH = &speed

		_, err := f.pipeline.Ingest(context.Background(), bad)
		assert.ErrorIs(t, err, fleet.ErrInvalidQuery)
	})

	t.Run("heading out of range", func(t *testing.T) {
		heading := 360.0
		bad := event("KDA-003", base, 36.8, -1.29)
		bad.HeadingDeg = &heading

		_, err := f.pipeline.Ingest(context.Background(), bad)
		assert.ErrorIs(t, err, fleet.ErrInvalidQuery)
	})
}

func TestPipeline_OutOfOrderEventRecordedNotPromoted(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := f.pipeline.Ingest(context.Background(), event("KDA-004", base.Add(100*time.Second), 36.8219, -1.2921))
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := f.pipeline.Ingest(context.Background(), event("KDA-004", base.Add(90*time.Second), 36.83, -1.30))
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, vehiclestate.ReasonStale, second.Reason)

	state := f.states.Get("KDA-004")
	require.NotNil(t, state)
	assert.Equal(t, base.Add(100*time.Second), state.LastObservedAt)

	records, err := f.tracks.Range("KDA-004", nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// The stale event must not have moved the spatial index either
	entries := f.vehicleIndex.WithinRadius(fleet.NewLocation(36.8219, -1.2921), 50, 0)
	require.Len(t, entries, 1)
}

func TestPipeline_ReingestIdenticalEvent(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	identical := event("KDA-005", base, 36.8219, -1.2921)

	first, err := f.pipeline.Ingest(context.Background(), identical)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	// Equal ObservedAt with a later arrival: last writer wins, so the
	// duplicate promotes again - and history keeps both entries
	second, err := f.pipeline.Ingest(context.Background(), identical)
	require.NoError(t, err)
	assert.True(t, second.Applied)
	assert.NotEqual(t, first.RecordID, second.RecordID)

	records, err := f.tracks.Range("KDA-005", nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPipeline_NearestStopEnrichment(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.stops.Upsert(&fleet.Stop{
		PrimaryIdentifier: "stop-kencom",
		Code:              "NBO001",
		Name:              "Kencom",
		Location:          fleet.NewLocation(36.8219, -1.2860),
		IsActive:          true,
	}))

	t.Run("stop within budgeted distance", func(t *testing.T) {
		result, err := f.pipeline.Ingest(context.Background(), event("KDA-006", base, 36.8219, -1.2864))
		require.NoError(t, err)
		require.True(t, result.Applied)

		assert.Equal(t, "stop-kencom", f.states.Get("KDA-006").NearestStopID)

		latest := f.tracks.Latest("KDA-006")
		require.NotNil(t, latest)
		assert.Equal(t, "stop-kencom", latest.NearestStopID)
	})

	t.Run("no stop in range degrades to empty", func(t *testing.T) {
		result, err := f.pipeline.Ingest(context.Background(), event("KDA-007", base, 36.95, -1.40))
		require.NoError(t, err)
		require.True(t, result.Applied)

		assert.Empty(t, f.states.Get("KDA-007").NearestStopID)
	})
}

type staticRegistry map[string]bool

func (r staticRegistry) Known(vehicleID string) bool {
	return r[vehicleID]
}

func TestPipeline_StrictRegistrationPolicy(t *testing.T) {
	f := newFixture(t, func(options *Options) {
		options.Registry = staticRegistry{"KDA-010": true}
	})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("registered vehicle accepted", func(t *testing.T) {
		result, err := f.pipeline.Ingest(context.Background(), event("KDA-010", base, 36.8, -1.29))
		require.NoError(t, err)
		assert.True(t, result.Applied)
	})

	t.Run("unknown vehicle rejected with no writes", func(t *testing.T) {
		_, err := f.pipeline.Ingest(context.Background(), event("KDA-999", base, 36.8, -1.29))
		assert.ErrorIs(t, err, fleet.ErrNotFound)

		records, rangeErr := f.tracks.Range("KDA-999", nil, nil, 0)
		require.NoError(t, rangeErr)
		assert.Empty(t, records)
	})
}

type flakySink struct {
	attempts  int
	failFirst int
}

func (s *flakySink) Write(_ context.Context, _ *fleet.TrackRecord) error {
	s.attempts += 1
	if s.attempts <= s.failFirst {
		return errors.New("transient store failure")
	}

	return nil
}

func TestPipeline_SinkRetry(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("transient failure recovered by single retry", func(t *testing.T) {
		sink := &flakySink{failFirst: 1}
		f := newFixture(t, func(options *Options) {
			options.Sink = sink
		})

		result, err := f.pipeline.Ingest(context.Background(), event("KDA-020", base, 36.8, -1.29))
		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.Equal(t, 2, sink.attempts)
	})

	t.Run("persistent failure surfaces as store error", func(t *testing.T) {
		sink := &flakySink{failFirst: 10}
		f := newFixture(t, func(options *Options) {
			options.Sink = sink
		})

		_, err := f.pipeline.Ingest(context.Background(), event("KDA-021", base, 36.8, -1.29))
		assert.ErrorIs(t, err, fleet.ErrStore)

		// One retry only, and no partial in-memory writes
		assert.Equal(t, 2, sink.attempts)
		assert.Nil(t, f.states.Get("KDA-021"))

		records, rangeErr := f.tracks.Range("KDA-021", nil, nil, 0)
		require.NoError(t, rangeErr)
		assert.Empty(t, records)
	})
}
