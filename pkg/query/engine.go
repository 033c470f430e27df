package query

import (
	"fmt"
	"time"

	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/spatialindex"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
	"github.com/transitrack/transitrack/pkg/trackstore"
	"github.com/transitrack/transitrack/pkg/vehiclestate"
)

const (
	DefaultNearbyRadiusMeters = 500.0
	DefaultNearbyLimit        = 20
	MaxNearbyLimit            = 200
)

// Engine is the read facade over the live stores. All responses are
// copies - callers never see store internals.
type Engine struct {
	tracks       *trackstore.Store
	states       *vehiclestate.Table
	vehicleIndex *spatialindex.Grid
	stops        *stopnetwork.Network
}

func NewEngine(tracks *trackstore.Store, states *vehiclestate.Table, vehicleIndex *spatialindex.Grid, stops *stopnetwork.Network) *Engine {
	return &Engine{
		tracks:       tracks,
		states:       states,
		vehicleIndex: vehicleIndex,
		stops:        stops,
	}
}

// VehicleView is a vehicle state enriched with its resolved nearest stop.
// A dangling stop reference resolves to nil, never an error.
type VehicleView struct {
	State       *fleet.VehicleState `json:"state" groups:"basic,detailed"`
	NearestStop *fleet.Stop         `json:"nearest_stop,omitempty" groups:"detailed"`
}

// NearbyVehicle pairs a view with its exact distance from the query point.
type NearbyVehicle struct {
	VehicleView
	DistanceMeters float64 `json:"distance_meters" groups:"basic,detailed"`
}

// CurrentState returns the live view of one vehicle.
func (e *Engine) CurrentState(vehicleID string) (*VehicleView, error) {
	state := e.states.Get(vehicleID)
	if state == nil {
		return nil, fmt.Errorf("%w: vehicle %s", fleet.ErrNotFound, vehicleID)
	}

	return e.enrich(state), nil
}

// ListVehicles returns live views matching the filter, ordered by vehicle id.
func (e *Engine) ListVehicles(filter *vehiclestate.ListFilter) []*VehicleView {
	states := e.states.List(filter)

	views := make([]*VehicleView, 0, len(states))
	for _, state := range states {
		views = append(views, e.enrich(state))
	}

	return views
}

// History returns the vehicle's track records within [from, to], newest
// first. An unknown vehicle has an empty history, not an error.
func (e *Engine) History(vehicleID string, from *time.Time, to *time.Time, limit int) ([]*fleet.TrackRecord, error) {
	return e.tracks.Range(vehicleID, from, to, limit)
}

// LatestRecord returns the newest track record for the vehicle.
func (e *Engine) LatestRecord(vehicleID string) (*fleet.TrackRecord, error) {
	record := e.tracks.Latest(vehicleID)
	if record == nil {
		return nil, fmt.Errorf("%w: vehicle %s has no track records", fleet.ErrNotFound, vehicleID)
	}

	return record, nil
}

// NearbyVehicles returns vehicles whose current position lies within
// radiusMeters of point, ascending by distance then vehicle id. Entries
// whose state was decommissioned mid-query are skipped.
func (e *Engine) NearbyVehicles(point *fleet.Location, radiusMeters float64, limit int) ([]*NearbyVehicle, error) {
	if err := point.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %f", fleet.ErrInvalidQuery, radiusMeters)
	}

	if limit <= 0 {
		limit = DefaultNearbyLimit
	} else if limit > MaxNearbyLimit {
		limit = MaxNearbyLimit
	}

	entries := e.vehicleIndex.WithinRadius(point, radiusMeters, limit)

	nearby := make([]*NearbyVehicle, 0, len(entries))
	for _, entry := range entries {
		state := e.states.Get(entry.Key)
		if state == nil {
			continue
		}

		nearby = append(nearby, &NearbyVehicle{
			VehicleView:    *e.enrich(state),
			DistanceMeters: entry.DistanceMeters,
		})
	}

	return nearby, nil
}

// NearestStop resolves the closest active stop to point. maxDistanceMeters
// of zero or less means unbounded.
func (e *Engine) NearestStop(point *fleet.Location, maxDistanceMeters float64) (*fleet.Stop, float64, error) {
	if err := point.Validate(); err != nil {
		return nil, 0, err
	}

	stopID, distance, ok := e.stops.NearestStop(point, maxDistanceMeters)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no stop within %.0fm", fleet.ErrNotFound, maxDistanceMeters)
	}

	stop := e.stops.Get(stopID)
	if stop == nil {
		// Indexed entry outlived the stop record
		return nil, 0, fmt.Errorf("%w: no stop within %.0fm", fleet.ErrNotFound, maxDistanceMeters)
	}

	return stop, distance, nil
}

func (e *Engine) enrich(state *fleet.VehicleState) *VehicleView {
	view := &VehicleView{State: state}

	if state.NearestStopID != "" {
		view.NearestStop = e.stops.Get(state.NearestStopID)
	}

	return view
}
