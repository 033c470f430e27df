package vehiclestate

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/transitrack/transitrack/pkg/fleet"
)

const shardCount = 64

const (
	ReasonNew   = "new"
	ReasonStale = "stale"
)

// UpdateResult reports the outcome of a compare-and-set attempt. A stale
// rejection is a normal outcome, not an error.
type UpdateResult struct {
	Applied bool
	Reason  string
}

// Table holds the single live state record per vehicle. Updates for the
// same vehicle serialise on a shard lock so no two concurrent writers can
// both win against the same prior state; different vehicles rarely contend.
type Table struct {
	shards [shardCount]shard
}

type shard struct {
	mu     sync.RWMutex
	states map[string]*fleet.VehicleState
}

func NewTable() *Table {
	table := &Table{}
	for i := range table.shards {
		table.shards[i].states = map[string]*fleet.VehicleState{}
	}

	return table
}

func (t *Table) shardFor(vehicleID string) *shard {
	hash := fnv.New32a()
	hash.Write([]byte(vehicleID))

	return &t.shards[hash.Sum32()%shardCount]
}

// ApplyUpdate promotes the record to current state iff the vehicle has no
// state yet or the record's ObservedAt is not earlier than the stored
// LastObservedAt. Equal timestamps resolve last-writer-wins on IngestedAt,
// since telemetry from multiple sources can share an observation time.
func (t *Table) ApplyUpdate(record *fleet.TrackRecord) UpdateResult {
	return t.ApplyUpdateWithHook(record, nil)
}

// ApplyUpdateWithHook additionally runs hook while still holding the
// vehicle's lock when the update applies. Callers use it to keep derived
// structures, like the spatial index, in step with the promotion decision.
func (t *Table) ApplyUpdateWithHook(record *fleet.TrackRecord, hook func()) UpdateResult {
	tableShard := t.shardFor(record.VehicleID)

	tableShard.mu.Lock()
	defer tableShard.mu.Unlock()

	existing := tableShard.states[record.VehicleID]
	if existing != nil {
		if record.ObservedAt.Before(existing.LastObservedAt) {
			return UpdateResult{Applied: false, Reason: ReasonStale}
		}
		if record.ObservedAt.Equal(existing.LastObservedAt) && record.IngestedAt.Before(existing.LastIngestedAt) {
			return UpdateResult{Applied: false, Reason: ReasonStale}
		}
	}

	state := &fleet.VehicleState{
		VehicleID:      record.VehicleID,
		LastObservedAt: record.ObservedAt,
		Location:       record.Location,
		SpeedKMH:       record.SpeedKMH,
		HeadingDeg:     record.HeadingDeg,
		NearestStopID:  record.NearestStopID,
		Occupancy:      record.Occupancy,
		Status:         fleet.VehicleStatusInService,
		LastIngestedAt: record.IngestedAt,
	}

	if existing != nil {
		// Carry over fields the telemetry feed does not own
		state.RouteID = existing.RouteID
		state.Status = existing.Status
		state.PredictedArrivals = existing.PredictedArrivals
		state.DemandForecasts = existing.DemandForecasts
		state.LastForecastAt = existing.LastForecastAt
	}

	tableShard.states[record.VehicleID] = state

	if hook != nil {
		hook()
	}

	return UpdateResult{Applied: true, Reason: ReasonNew}
}

func (t *Table) Get(vehicleID string) *fleet.VehicleState {
	tableShard := t.shardFor(vehicleID)

	tableShard.mu.RLock()
	defer tableShard.mu.RUnlock()

	state := tableShard.states[vehicleID]
	if state == nil {
		return nil
	}

	stateCopy := *state

	return &stateCopy
}

type ListFilter struct {
	RouteID string
	Status  fleet.VehicleStatus
}

// List returns a snapshot of every live state matching the filter, ordered
// by vehicle id so repeated calls over the same data are stable.
func (t *Table) List(filter *ListFilter) []*fleet.VehicleState {
	var states []*fleet.VehicleState

	for i := range t.shards {
		tableShard := &t.shards[i]

		tableShard.mu.RLock()
		for _, state := range tableShard.states {
			if filter != nil {
				if filter.RouteID != "" && state.RouteID != filter.RouteID {
					continue
				}
				if filter.Status != "" && state.Status != filter.Status {
					continue
				}
			}

			stateCopy := *state
			states = append(states, &stateCopy)
		}
		tableShard.mu.RUnlock()
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].VehicleID < states[j].VehicleID
	})

	return states
}

// Decommission removes the live state for a vehicle. History elsewhere is
// untouched.
func (t *Table) Decommission(vehicleID string) error {
	return t.DecommissionWithHook(vehicleID, nil)
}

// DecommissionWithHook additionally runs hook while still holding the
// vehicle's lock when the state is removed. Callers use it to drop derived
// entries, like the vehicle's spatial index position, together with the
// state - otherwise a concurrent update could interleave between the two
// removals.
func (t *Table) DecommissionWithHook(vehicleID string, hook func()) error {
	tableShard := t.shardFor(vehicleID)

	tableShard.mu.Lock()
	defer tableShard.mu.Unlock()

	if _, exists := tableShard.states[vehicleID]; !exists {
		return fmt.Errorf("%w: no live state for vehicle %s", fleet.ErrNotFound, vehicleID)
	}

	delete(tableShard.states, vehicleID)

	if hook != nil {
		hook()
	}

	return nil
}

// SetAssignment updates the route/status metadata carried on the live
// state without touching the telemetry fields.
func (t *Table) SetAssignment(vehicleID string, routeID string, status fleet.VehicleStatus) error {
	tableShard := t.shardFor(vehicleID)

	tableShard.mu.Lock()
	defer tableShard.mu.Unlock()

	state := tableShard.states[vehicleID]
	if state == nil {
		return fmt.Errorf("%w: no live state for vehicle %s", fleet.ErrNotFound, vehicleID)
	}

	if routeID != "" {
		state.RouteID = routeID
	}
	if status != "" {
		state.Status = status
	}

	return nil
}

// ApplyForecast attaches forecasting annotations to the live state. A
// missing vehicle is ignored - forecasts are best-effort decoration.
func (t *Table) ApplyForecast(vehicleID string, arrivals []fleet.PredictedArrival, demand []fleet.DemandForecast, at time.Time) {
	tableShard := t.shardFor(vehicleID)

	tableShard.mu.Lock()
	defer tableShard.mu.Unlock()

	state := tableShard.states[vehicleID]
	if state == nil {
		return
	}

	state.PredictedArrivals = arrivals
	state.DemandForecasts = demand
	state.LastForecastAt = &at
}
