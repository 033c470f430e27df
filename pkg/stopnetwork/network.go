package stopnetwork

import (
	"fmt"
	"sync"

	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/spatialindex"
)

// Network is the in-memory registry of stops with a spatial index over
// active stop positions. Stops are administered externally and change
// slowly; the tracking core only reads them.
type Network struct {
	mu sync.RWMutex

	stops  map[string]*fleet.Stop
	byCode map[string]string
	byName map[string]string

	index *spatialindex.Grid
}

func NewNetwork(cellSizeMeters float64) *Network {
	return &Network{
		stops:  map[string]*fleet.Stop{},
		byCode: map[string]string{},
		byName: map[string]string{},
		index:  spatialindex.NewGrid(cellSizeMeters),
	}
}

func (n *Network) Get(stopID string) *fleet.Stop {
	n.mu.RLock()
	defer n.mu.RUnlock()

	stop := n.stops[stopID]
	if stop == nil {
		return nil
	}

	stopCopy := *stop

	return &stopCopy
}

// Upsert inserts or replaces a stop. Code and name are unique across the
// network - a collision with a different stop id fails with ErrDuplicateKey
// and changes nothing.
func (n *Network) Upsert(stop *fleet.Stop) error {
	if stop.PrimaryIdentifier == "" {
		return fmt.Errorf("%w: stop requires a primary identifier", fleet.ErrInvalidQuery)
	}
	if err := stop.Location.Validate(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if existingID, exists := n.byCode[stop.Code]; exists && existingID != stop.PrimaryIdentifier {
		return fmt.Errorf("%w: stop code %q already belongs to %s", fleet.ErrDuplicateKey, stop.Code, existingID)
	}
	if existingID, exists := n.byName[stop.Name]; exists && existingID != stop.PrimaryIdentifier {
		return fmt.Errorf("%w: stop name %q already belongs to %s", fleet.ErrDuplicateKey, stop.Name, existingID)
	}

	if previous := n.stops[stop.PrimaryIdentifier]; previous != nil {
		delete(n.byCode, previous.Code)
		delete(n.byName, previous.Name)
	}

	stopCopy := *stop
	n.stops[stop.PrimaryIdentifier] = &stopCopy
	n.byCode[stop.Code] = stop.PrimaryIdentifier
	n.byName[stop.Name] = stop.PrimaryIdentifier

	if stop.IsActive {
		n.index.Upsert(stop.PrimaryIdentifier, stop.Location)
	} else {
		n.index.Remove(stop.PrimaryIdentifier)
	}

	return nil
}

func (n *Network) Remove(stopID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	stop := n.stops[stopID]
	if stop == nil {
		return fmt.Errorf("%w: stop %s", fleet.ErrNotFound, stopID)
	}

	delete(n.stops, stopID)
	delete(n.byCode, stop.Code)
	delete(n.byName, stop.Name)
	n.index.Remove(stopID)

	return nil
}

// NearestStop resolves the closest active stop to the point. A
// maxDistanceMeters <= 0 means unbounded. Returns ok=false when nothing
// qualifies.
func (n *Network) NearestStop(point *fleet.Location, maxDistanceMeters float64) (string, float64, bool) {
	var entries []spatialindex.Entry
	if maxDistanceMeters > 0 {
		entries = n.index.WithinRadius(point, maxDistanceMeters, 1)
	} else {
		entries = n.index.KNearest(point, 1)
	}

	if len(entries) == 0 {
		return "", 0, false
	}

	return entries[0].Key, entries[0].DistanceMeters, true
}

// CellKey exposes the spatial index's cell identifier for a point, used to
// memoise nearest-stop lookups per cell.
func (n *Network) CellKey(point *fleet.Location) string {
	return n.index.CellKey(point)
}

func (n *Network) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.stops)
}

func (n *Network) All() []*fleet.Stop {
	n.mu.RLock()
	defer n.mu.RUnlock()

	stops := make([]*fleet.Stop, 0, len(n.stops))
	for _, stop := range n.stops {
		stopCopy := *stop
		stops = append(stops, &stopCopy)
	}

	return stops
}
