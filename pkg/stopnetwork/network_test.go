package stopnetwork

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/spatialindex"
)

func stop(id string, code string, name string, lon float64, lat float64) *fleet.Stop {
	return &fleet.Stop{
		PrimaryIdentifier: id,
		Code:              code,
		Name:              name,
		Location:          fleet.NewLocation(lon, lat),
		IsActive:          true,
		ServedRoutes:      []string{"route-105"},
	}
}

func TestNetwork_UpsertUniqueness(t *testing.T) {
	network := NewNetwork(spatialindex.DefaultCellSizeMeters)

	require.NoError(t, network.Upsert(stop("stop-1", "NBO001", "Kencom", 36.8219, -1.2864)))

	t.Run("same id can update itself", func(t *testing.T) {
		updated := stop("stop-1", "NBO001", "Kencom", 36.8220, -1.2864)
		assert.NoError(t, network.Upsert(updated))
	})

	t.Run("code collision with different id", func(t *testing.T) {
		err := network.Upsert(stop("stop-2", "NBO001", "Archives", 36.8250, -1.2850))
		assert.ErrorIs(t, err, fleet.ErrDuplicateKey)
		assert.Nil(t, network.Get("stop-2"))
	})

	t.Run("name collision with different id", func(t *testing.T) {
		err := network.Upsert(stop("stop-3", "NBO003", "Kencom", 36.8250, -1.2850))
		assert.ErrorIs(t, err, fleet.ErrDuplicateKey)
	})

	t.Run("rename frees the old keys", func(t *testing.T) {
		require.NoError(t, network.Upsert(stop("stop-1", "NBO099", "Kencom East", 36.8219, -1.2864)))
		assert.NoError(t, network.Upsert(stop("stop-4", "NBO001", "Kencom", 36.8250, -1.2850)))
	})

	t.Run("invalid location rejected", func(t *testing.T) {
		bad := stop("stop-5", "NBO005", "Nowhere", 36.8, 999)
		assert.ErrorIs(t, network.Upsert(bad), fleet.ErrInvalidGeometry)
	})
}

func TestNetwork_NearestStop(t *testing.T) {
	network := NewNetwork(spatialindex.DefaultCellSizeMeters)
	point := fleet.NewLocation(36.8219, -1.2864)

	// Three stops at roughly 50m, 200m and 500m north of the point
	require.NoError(t, network.Upsert(stop("stop-50m", "A", "Near", point.Longitude(), point.Latitude()+0.00045)))
	require.NoError(t, network.Upsert(stop("stop-200m", "B", "Mid", point.Longitude(), point.Latitude()+0.0018)))
	require.NoError(t, network.Upsert(stop("stop-500m", "C", "Far", point.Longitude(), point.Latitude()+0.0045)))

	t.Run("nearest within generous bound", func(t *testing.T) {
		stopID, distance, ok := network.NearestStop(point, 300)
		require.True(t, ok)
		assert.Equal(t, "stop-50m", stopID)
		assert.InDelta(t, 50, distance, 5)
	})

	t.Run("bound tighter than the closest stop", func(t *testing.T) {
		_, _, ok := network.NearestStop(point, 30)
		assert.False(t, ok)
	})

	t.Run("unbounded", func(t *testing.T) {
		stopID, _, ok := network.NearestStop(fleet.NewLocation(36.9, -1.2), 0)
		require.True(t, ok)
		assert.Equal(t, "stop-500m", stopID)
	})

	t.Run("inactive stops are not resolvable", func(t *testing.T) {
		inactive := stop("stop-50m", "A", "Near", point.Longitude(), point.Latitude()+0.00045)
		inactive.IsActive = false
		require.NoError(t, network.Upsert(inactive))

		stopID, _, ok := network.NearestStop(point, 300)
		require.True(t, ok)
		assert.Equal(t, "stop-200m", stopID)
	})
}

func TestNetwork_Remove(t *testing.T) {
	network := NewNetwork(spatialindex.DefaultCellSizeMeters)
	point := fleet.NewLocation(36.8219, -1.2864)

	require.NoError(t, network.Upsert(stop("stop-1", "A", "Near", point.Longitude(), point.Latitude()+0.0005)))

	require.NoError(t, network.Remove("stop-1"))
	assert.Nil(t, network.Get("stop-1"))

	_, _, ok := network.NearestStop(point, 1000)
	assert.False(t, ok)

	assert.ErrorIs(t, network.Remove("stop-1"), fleet.ErrNotFound)

	// Code is free for reuse after removal
	assert.NoError(t, network.Upsert(stop("stop-2", "A", "Near", point.Longitude(), point.Latitude())))
}

func TestNetwork_GetReturnsCopy(t *testing.T) {
	network := NewNetwork(spatialindex.DefaultCellSizeMeters)

	require.NoError(t, network.Upsert(stop("stop-1", "A", "Near", 36.8, -1.28)))

	fetched := network.Get("stop-1")
	fetched.Name = "scribbled"

	assert.Equal(t, "Near", network.Get("stop-1").Name)
}

func TestNetwork_UnboundedOnEmptyNetwork(t *testing.T) {
	network := NewNetwork(spatialindex.DefaultCellSizeMeters)

	_, _, ok := network.NearestStop(fleet.NewLocation(36.8, -1.28), 0)
	assert.False(t, ok)
}
