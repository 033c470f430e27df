package trackstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitrack/transitrack/pkg/fleet"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newRecord(vehicleID string, observedAt time.Time, ingestedAt time.Time) *fleet.TrackRecord {
	return &fleet.TrackRecord{
		RecordID:   primitive.NewObjectID(),
		VehicleID:  vehicleID,
		ObservedAt: observedAt,
		Location:   fleet.NewLocation(36.8219, -1.2921),
		IngestedAt: ingestedAt,
	}
}

func TestStore_LatestPrefersMaxObservedAt(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Out-of-order arrival: T100 lands before T90
	store.Append(newRecord("KDA-001", base.Add(100*time.Second), base.Add(101*time.Second)))
	store.Append(newRecord("KDA-001", base.Add(90*time.Second), base.Add(102*time.Second)))

	latest := store.Latest("KDA-001")
	require.NotNil(t, latest)
	assert.Equal(t, base.Add(100*time.Second), latest.ObservedAt)
}

func TestStore_LatestTieBrokenByIngestedAt(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := newRecord("KDA-001", base, base.Add(1*time.Second))
	second := newRecord("KDA-001", base, base.Add(2*time.Second))
	store.Append(first)
	store.Append(second)

	latest := store.Latest("KDA-001")
	require.NotNil(t, latest)
	assert.Equal(t, second.RecordID, latest.RecordID)
}

func TestStore_LatestUnknownVehicle(t *testing.T) {
	assert.Nil(t, NewStore().Latest("missing"))
}

func TestStore_RangeDescendingAndComplete(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Append in a shuffled order; Range must return each exactly once,
	// sorted descending
	offsets := []int{30, 10, 50, 20, 40}
	for i, offset := range offsets {
		store.Append(newRecord("KDA-002", base.Add(time.Duration(offset)*time.Second), base.Add(time.Duration(i)*time.Millisecond)))
	}

	records, err := store.Range("KDA-002", nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, records, 5)

	for i := 0; i < len(records)-1; i++ {
		assert.True(t, records[i].ObservedAt.After(records[i+1].ObservedAt))
	}
	assert.Equal(t, base.Add(50*time.Second), records[0].ObservedAt)
	assert.Equal(t, base.Add(10*time.Second), records[4].ObservedAt)
}

func TestStore_RangeBounds(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		store.Append(newRecord("KDA-003", base.Add(time.Duration(i)*time.Minute), base.Add(time.Duration(i)*time.Minute)))
	}

	t.Run("inclusive from/to", func(t *testing.T) {
		from := base.Add(2 * time.Minute)
		to := base.Add(5 * time.Minute)

		records, err := store.Range("KDA-003", &from, &to, 0)
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, to, records[0].ObservedAt)
		assert.Equal(t, from, records[3].ObservedAt)
	})

	t.Run("limit truncates", func(t *testing.T) {
		records, err := store.Range("KDA-003", nil, nil, 3)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("invalid range", func(t *testing.T) {
		from := base.Add(5 * time.Minute)
		to := base.Add(2 * time.Minute)

		_, err := store.Range("KDA-003", &from, &to, 0)
		assert.ErrorIs(t, err, fleet.ErrInvalidRange)
	})

	t.Run("limit clamped to maximum", func(t *testing.T) {
		records, err := store.Range("KDA-003", nil, nil, 10000)
		require.NoError(t, err)
		assert.Len(t, records, 10)
	})
}

func TestStore_DuplicatesKept(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.Append(newRecord("KDA-004", base, base))
	store.Append(newRecord("KDA-004", base, base.Add(time.Second)))

	records, err := store.Range("KDA-004", nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStore_EvictBefore(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		store.Append(newRecord("KDA-005", base.Add(time.Duration(i)*time.Hour), base.Add(time.Duration(i)*time.Hour)))
	}

	evicted := store.EvictBefore(base.Add(3 * time.Hour))
	assert.Equal(t, 3, evicted)

	records, err := store.Range("KDA-005", nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	t.Run("latest record survives a total eviction", func(t *testing.T) {
		evicted := store.EvictBefore(base.Add(100 * time.Hour))
		assert.Equal(t, 1, evicted)

		latest := store.Latest("KDA-005")
		require.NotNil(t, latest)
		assert.Equal(t, base.Add(4*time.Hour), latest.ObservedAt)
	})
}

func TestStore_ConcurrentAppends(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for v := 0; v < 8; v++ {
		vehicleID := fmt.Sprintf("KDA-%03d", v)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				store.Append(newRecord(vehicleID, base.Add(time.Duration(i)*time.Second), base.Add(time.Duration(i)*time.Second)))
			}
		}()
	}
	wg.Wait()

	for v := 0; v < 8; v++ {
		vehicleID := fmt.Sprintf("KDA-%03d", v)

		latest := store.Latest(vehicleID)
		require.NotNil(t, latest)
		assert.Equal(t, base.Add(199*time.Second), latest.ObservedAt)

		records, err := store.Range(vehicleID, nil, nil, MaxRangeLimit)
		require.NoError(t, err)
		assert.Len(t, records, 200)
	}
}

func TestStore_DrainPending(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := newRecord("KDA-006", base, base)
	second := newRecord("KDA-006", base.Add(time.Second), base.Add(time.Second))
	store.Append(first)
	store.Append(second)

	drained := store.DrainPending()
	require.Len(t, drained, 2)
	assert.Empty(t, store.DrainPending())

	store.RequeuePending(drained)
	assert.Len(t, store.DrainPending(), 2)
}

func TestStore_PendingQueueBounded(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Never drained, as when no archiver runs - the queue must shed the
	// oldest entries instead of growing forever
	extra := 5
	for i := 0; i < MaxPendingRecords+extra; i++ {
		store.Append(newRecord("KDA-007", base.Add(time.Duration(i)*time.Second), base.Add(time.Duration(i)*time.Second)))
	}

	drained := store.DrainPending()
	require.Len(t, drained, MaxPendingRecords)

	// Oldest fell off, newest survived
	assert.Equal(t, base.Add(time.Duration(extra)*time.Second), drained[0].ObservedAt)
	assert.Equal(t, base.Add(time.Duration(MaxPendingRecords+extra-1)*time.Second), drained[len(drained)-1].ObservedAt)

	// History itself keeps everything regardless of the queue cap
	records, err := store.Range("KDA-007", nil, nil, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, base.Add(time.Duration(MaxPendingRecords+extra-1)*time.Second), records[0].ObservedAt)
}
