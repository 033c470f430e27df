package dataimporter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/ingest"
	"github.com/transitrack/transitrack/pkg/spatialindex"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
)

func TestImportStops(t *testing.T) {
	source := strings.Join([]string{
		"id,code,name,longitude,latitude,zone,routes,active",
		"stop-kencom,NBO001,Kencom,36.8219,-1.2860,CBD,111|237,true",
		"stop-gpo,NBO003,GPO,36.8172,-1.2864,CBD,,true",
		"stop-old-depot,NBO099,Old Depot,36.9000,-1.3000,,,false",
		"stop-dup,NBO001,Duplicate Code,36.8300,-1.2900,,,true",
	}, "\n")

	network := stopnetwork.NewNetwork(spatialindex.DefaultCellSizeMeters)

	imported, err := ImportStops(context.Background(), strings.NewReader(source), network, false)
	require.NoError(t, err)

	// The duplicate code row is rejected, everything else lands
	assert.Equal(t, 3, imported)
	assert.Equal(t, 3, network.Count())

	kencom := network.Get("stop-kencom")
	require.NotNil(t, kencom)
	assert.Equal(t, []string{"111", "237"}, kencom.ServedRoutes)
	assert.Equal(t, "CBD", kencom.Zone)
	assert.True(t, kencom.IsActive)

	// Inactive stops load but stay out of proximity search
	depot := network.Get("stop-old-depot")
	require.NotNil(t, depot)
	assert.False(t, depot.IsActive)

	_, _, found := network.NearestStop(fleet.NewLocation(36.9000, -1.3000), 100)
	assert.False(t, found)
}

func TestImportVehicles(t *testing.T) {
	source := `
vehicles:
  - fleet_number: KDA-001
    plate: KDA 001A
    operator: Metro Shuttle
    status: IN_SERVICE
    assigned_route: "111"
  - fleet_number: KDA-002
    operator: Metro Shuttle
  - plate: KDJ 999X
`

	registry := ingest.NewFleetRegistry()

	imported, err := ImportVehicles(context.Background(), strings.NewReader(source), registry, false)
	require.NoError(t, err)

	// The entry without a fleet number is skipped
	assert.Equal(t, 2, imported)

	first := registry.Get("KDA-001")
	require.NotNil(t, first)
	assert.Equal(t, "111", first.AssignedRoute)

	// Status defaults to in service when omitted
	second := registry.Get("KDA-002")
	require.NotNil(t, second)
	assert.Equal(t, fleet.VehicleStatusInService, second.Status)

	assert.True(t, registry.Known("KDA-001"))
	assert.False(t, registry.Known("KDJ-999"))
}
