package spatialindex

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/transitrack/transitrack/pkg/fleet"
)

// DefaultCellSizeMeters matches the default proximity query radius so a
// typical withinRadius scan touches a handful of cells. Tune it per index
// if the expected query radius differs.
const DefaultCellSizeMeters = 500.0

const keyShardCount = 32

// Half the Earth's circumference - no two points are further apart
const maxSearchRadiusMeters = 20100000.0

// Entry is one indexed point returned from a proximity query.
type Entry struct {
	Key            string
	DistanceMeters float64
}

// Grid indexes points on a coarse geographic grid. Proximity queries use a
// bounding-box prefilter over cells followed by an exact haversine check,
// so cost scales with the candidate cells rather than the full index.
//
// Updates lock a single key shard plus the affected cells; queries only
// take per-cell read locks. A concurrent reader observes the pre- or
// post-update position for a key, never a torn pair.
type Grid struct {
	cellSizeMeters  float64
	cellSizeDegrees float64

	keyShards [keyShardCount]keyShard

	cellsMu sync.RWMutex
	cells   map[cellCoord]*cell
}

type keyShard struct {
	mu    sync.Mutex
	cells map[string]cellCoord
}

type cellCoord struct {
	x int
	y int
}

type cell struct {
	mu sync.RWMutex

	// Set under both cellsMu and mu when the emptied cell leaves the grid,
	// so a writer holding a stale pointer re-resolves instead of inserting
	// into an orphan
	dead bool

	entries map[string]fleet.Location
}

func NewGrid(cellSizeMeters float64) *Grid {
	if cellSizeMeters <= 0 {
		cellSizeMeters = DefaultCellSizeMeters
	}

	grid := &Grid{
		cellSizeMeters:  cellSizeMeters,
		cellSizeDegrees: cellSizeMeters / 111320.0,
		cells:           map[cellCoord]*cell{},
	}
	for i := range grid.keyShards {
		grid.keyShards[i].cells = map[string]cellCoord{}
	}

	return grid
}

func (g *Grid) keyShardFor(key string) *keyShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))

	return &g.keyShards[hash.Sum32()%keyShardCount]
}

func (g *Grid) coordFor(location *fleet.Location) cellCoord {
	return cellCoord{
		x: int(math.Floor((location.Longitude() + 180) / g.cellSizeDegrees)),
		y: int(math.Floor((location.Latitude() + 90) / g.cellSizeDegrees)),
	}
}

// CellKey returns a stable identifier for the grid cell containing the
// location, usable as a cache key for per-cell memoisation.
func (g *Grid) CellKey(location *fleet.Location) string {
	coord := g.coordFor(location)

	return fmt.Sprintf("%d:%d", coord.x, coord.y)
}

func (g *Grid) cellAt(coord cellCoord, create bool) *cell {
	g.cellsMu.RLock()
	gridCell := g.cells[coord]
	g.cellsMu.RUnlock()

	if gridCell != nil || !create {
		return gridCell
	}

	g.cellsMu.Lock()
	defer g.cellsMu.Unlock()

	if gridCell = g.cells[coord]; gridCell == nil {
		gridCell = &cell{entries: map[string]fleet.Location{}}
		g.cells[coord] = gridCell
	}

	return gridCell
}

// Upsert inserts or moves a key. When a key changes cell it is added to
// the new cell before leaving the old one, so a concurrent query may
// briefly see both positions - queries deduplicate by key.
func (g *Grid) Upsert(key string, location *fleet.Location) {
	shard := g.keyShardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	newCoord := g.coordFor(location)
	oldCoord, existed := shard.cells[key]
	shard.cells[key] = newCoord

	for {
		newCell := g.cellAt(newCoord, true)

		newCell.mu.Lock()
		if newCell.dead {
			newCell.mu.Unlock()
			continue
		}
		newCell.entries[key] = *location
		newCell.mu.Unlock()

		break
	}

	if existed && oldCoord != newCoord {
		g.removeFromCell(oldCoord, key)
	}
}

func (g *Grid) Remove(key string) {
	shard := g.keyShardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	coord, existed := shard.cells[key]
	if !existed {
		return
	}
	delete(shard.cells, key)

	g.removeFromCell(coord, key)
}

// removeFromCell deletes the key from its cell and discards the cell once
// empty, so a fleet sweeping across the map does not accumulate dead cells
// for coordsCovering to walk.
func (g *Grid) removeFromCell(coord cellCoord, key string) {
	gridCell := g.cellAt(coord, false)
	if gridCell == nil {
		return
	}

	gridCell.mu.Lock()
	delete(gridCell.entries, key)
	empty := len(gridCell.entries) == 0
	gridCell.mu.Unlock()

	if !empty {
		return
	}

	// Re-check under both locks: a concurrent Upsert may have landed an
	// entry between the unlock above and here
	g.cellsMu.Lock()
	if current := g.cells[coord]; current == gridCell {
		gridCell.mu.Lock()
		if len(gridCell.entries) == 0 {
			gridCell.dead = true
			delete(g.cells, coord)
		}
		gridCell.mu.Unlock()
	}
	g.cellsMu.Unlock()
}

// CellCount reports how many grid cells currently hold entries.
func (g *Grid) CellCount() int {
	g.cellsMu.RLock()
	defer g.cellsMu.RUnlock()

	return len(g.cells)
}

// WithinRadius returns indexed points with true haversine distance at most
// radiusMeters from the point, ascending by distance and then by key. A
// limit <= 0 means unbounded.
func (g *Grid) WithinRadius(point *fleet.Location, radiusMeters float64, limit int) []Entry {
	if radiusMeters <= 0 {
		return nil
	}

	box := point.BoundingBox(radiusMeters)

	nearest := map[string]float64{}
	for _, coord := range g.coordsCovering(box) {
		gridCell := g.cellAt(coord, false)
		if gridCell == nil {
			continue
		}

		gridCell.mu.RLock()
		for key, location := range gridCell.entries {
			distance := point.DistanceMeters(&location)
			if distance > radiusMeters {
				continue
			}

			if known, seen := nearest[key]; !seen || distance < known {
				nearest[key] = distance
			}
		}
		gridCell.mu.RUnlock()
	}

	entries := make([]Entry, 0, len(nearest))
	for key, distance := range nearest {
		entries = append(entries, Entry{Key: key, DistanceMeters: distance})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DistanceMeters == entries[j].DistanceMeters {
			return entries[i].Key < entries[j].Key
		}

		return entries[i].DistanceMeters < entries[j].DistanceMeters
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries
}

// KNearest returns up to k indexed points ascending by distance then key.
// It widens a radius search until k candidates fit inside it - once k
// results all lie within the searched radius nothing outside can be
// closer.
func (g *Grid) KNearest(point *fleet.Location, k int) []Entry {
	if k <= 0 {
		return nil
	}

	radius := g.cellSizeMeters
	for {
		entries := g.WithinRadius(point, radius, k)
		if len(entries) == k || radius >= maxSearchRadiusMeters {
			return entries
		}

		radius *= 4
	}
}

// coordsCovering lists the grid cells overlapping the bounding box,
// splitting the longitude span where it crosses the antimeridian.
func (g *Grid) coordsCovering(box fleet.BoundingBox) []cellCoord {
	minY := int(math.Floor((box.MinLatitude + 90) / g.cellSizeDegrees))
	maxY := int(math.Floor((box.MaxLatitude + 90) / g.cellSizeDegrees))

	type span struct {
		minLon float64
		maxLon float64
	}

	var spans []span
	switch {
	case box.MaxLongitude-box.MinLongitude >= 360:
		spans = []span{{-180, 180}}
	case box.MinLongitude < -180:
		spans = []span{{box.MinLongitude + 360, 180}, {-180, box.MaxLongitude}}
	case box.MaxLongitude > 180:
		spans = []span{{box.MinLongitude, 180}, {-180, box.MaxLongitude - 360}}
	default:
		spans = []span{{box.MinLongitude, box.MaxLongitude}}
	}

	// For very wide boxes enumerating coordinates would dwarf the number of
	// populated cells, so walk the populated cells instead
	covered := 0
	for _, lonSpan := range spans {
		minX := int(math.Floor((lonSpan.minLon + 180) / g.cellSizeDegrees))
		maxX := int(math.Floor((lonSpan.maxLon + 180) / g.cellSizeDegrees))
		covered += (maxX - minX + 1) * (maxY - minY + 1)
	}

	g.cellsMu.RLock()
	populated := len(g.cells)
	g.cellsMu.RUnlock()

	if covered > populated {
		g.cellsMu.RLock()
		coords := make([]cellCoord, 0, populated)
		for coord := range g.cells {
			coords = append(coords, coord)
		}
		g.cellsMu.RUnlock()

		return coords
	}

	var coords []cellCoord
	for _, lonSpan := range spans {
		minX := int(math.Floor((lonSpan.minLon + 180) / g.cellSizeDegrees))
		maxX := int(math.Floor((lonSpan.maxLon + 180) / g.cellSizeDegrees))

		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				coords = append(coords, cellCoord{x: x, y: y})
			}
		}
	}

	return coords
}
