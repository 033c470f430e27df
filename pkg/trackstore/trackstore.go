package trackstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/transitrack/transitrack/pkg/fleet"
)

const (
	DefaultRangeLimit = 50
	MaxRangeLimit     = 500
)

// Cap on the write-behind queue so an embedding with no draining archiver
// cannot grow it without bound. Overflow sheds the oldest entries first -
// they stay queryable in history, only their durable flush is lost.
const MaxPendingRecords = 100000

// Store is the append-only history of track records, bucketed per vehicle.
// Out-of-order and duplicate observation timestamps are accepted - history
// is a faithful log of what arrived, not a deduplicated view.
type Store struct {
	mu       sync.RWMutex
	vehicles map[string]*history

	pendingMu sync.Mutex
	pending   []*fleet.TrackRecord
}

type history struct {
	mu sync.RWMutex

	// Ascending by ObservedAt; equal timestamps keep arrival order
	records []*fleet.TrackRecord
}

func NewStore() *Store {
	return &Store{
		vehicles: map[string]*history{},
	}
}

func (s *Store) bucket(vehicleID string) *history {
	s.mu.RLock()
	vehicleHistory := s.vehicles[vehicleID]
	s.mu.RUnlock()

	if vehicleHistory != nil {
		return vehicleHistory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if vehicleHistory = s.vehicles[vehicleID]; vehicleHistory == nil {
		vehicleHistory = &history{}
		s.vehicles[vehicleID] = vehicleHistory
	}

	return vehicleHistory
}

// Append records a snapshot into the vehicle's history. It never rejects a
// validated record regardless of time order, and the record is visible to
// reads as soon as Append returns. Appends for different vehicles do not
// block each other.
func (s *Store) Append(record *fleet.TrackRecord) {
	vehicleHistory := s.bucket(record.VehicleID)

	vehicleHistory.mu.Lock()
	index := sort.Search(len(vehicleHistory.records), func(i int) bool {
		return vehicleHistory.records[i].ObservedAt.After(record.ObservedAt)
	})
	vehicleHistory.records = append(vehicleHistory.records, nil)
	copy(vehicleHistory.records[index+1:], vehicleHistory.records[index:])
	vehicleHistory.records[index] = record
	vehicleHistory.mu.Unlock()

	s.pendingMu.Lock()
	s.pending = trimPending(append(s.pending, record))
	s.pendingMu.Unlock()
}

func trimPending(pending []*fleet.TrackRecord) []*fleet.TrackRecord {
	if overflow := len(pending) - MaxPendingRecords; overflow > 0 {
		// Reslicing keeps the backing array; append's next reallocation
		// copies only the live entries, so memory stays bounded
		pending = pending[overflow:]
	}

	return pending
}

// Latest returns the record with the maximal ObservedAt for the vehicle,
// ties broken by the latest IngestedAt.
func (s *Store) Latest(vehicleID string) *fleet.TrackRecord {
	s.mu.RLock()
	vehicleHistory := s.vehicles[vehicleID]
	s.mu.RUnlock()

	if vehicleHistory == nil {
		return nil
	}

	vehicleHistory.mu.RLock()
	defer vehicleHistory.mu.RUnlock()

	return vehicleHistory.latestLocked()
}

func (h *history) latestLocked() *fleet.TrackRecord {
	if len(h.records) == 0 {
		return nil
	}

	latest := h.records[len(h.records)-1]
	for i := len(h.records) - 2; i >= 0; i-- {
		if !h.records[i].ObservedAt.Equal(latest.ObservedAt) {
			break
		}
		if h.records[i].IngestedAt.After(latest.IngestedAt) {
			latest = h.records[i]
		}
	}

	return latest
}

// Range returns records for the vehicle descending by ObservedAt, bounded
// by limit. A zero limit applies DefaultRangeLimit; limits above
// MaxRangeLimit are clamped. Both range bounds are inclusive.
func (s *Store) Range(vehicleID string, from *time.Time, to *time.Time, limit int) ([]*fleet.TrackRecord, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, fmt.Errorf("%w: from %s is after to %s", fleet.ErrInvalidRange, from, to)
	}

	if limit <= 0 {
		limit = DefaultRangeLimit
	} else if limit > MaxRangeLimit {
		limit = MaxRangeLimit
	}

	s.mu.RLock()
	vehicleHistory := s.vehicles[vehicleID]
	s.mu.RUnlock()

	if vehicleHistory == nil {
		return nil, nil
	}

	vehicleHistory.mu.RLock()
	defer vehicleHistory.mu.RUnlock()

	var results []*fleet.TrackRecord
	for i := len(vehicleHistory.records) - 1; i >= 0 && len(results) < limit; i-- {
		record := vehicleHistory.records[i]

		if from != nil && record.ObservedAt.Before(*from) {
			// Records are ascending so nothing earlier can match
			break
		}
		if to != nil && record.ObservedAt.After(*to) {
			continue
		}

		results = append(results, record)
	}

	return results, nil
}

// EvictBefore drops records observed before the cutoff, returning how many
// were removed. The record backing Latest always survives, and eviction
// holds the same per-vehicle lock as Range so reads never see a torn
// history.
func (s *Store) EvictBefore(cutoff time.Time) int {
	s.mu.RLock()
	buckets := make([]*history, 0, len(s.vehicles))
	for _, vehicleHistory := range s.vehicles {
		buckets = append(buckets, vehicleHistory)
	}
	s.mu.RUnlock()

	evicted := 0
	for _, vehicleHistory := range buckets {
		vehicleHistory.mu.Lock()

		index := sort.Search(len(vehicleHistory.records), func(i int) bool {
			return !vehicleHistory.records[i].ObservedAt.Before(cutoff)
		})

		if index == len(vehicleHistory.records) && index > 0 {
			// Everything is older than the horizon - keep the latest record
			latest := vehicleHistory.latestLocked()
			evicted += len(vehicleHistory.records) - 1
			vehicleHistory.records = []*fleet.TrackRecord{latest}
		} else if index > 0 {
			evicted += index
			vehicleHistory.records = append([]*fleet.TrackRecord{}, vehicleHistory.records[index:]...)
		}

		vehicleHistory.mu.Unlock()
	}

	return evicted
}

// Vehicles returns the ids of every vehicle with history.
func (s *Store) Vehicles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicleIDs := make([]string, 0, len(s.vehicles))
	for vehicleID := range s.vehicles {
		vehicleIDs = append(vehicleIDs, vehicleID)
	}

	sort.Strings(vehicleIDs)

	return vehicleIDs
}

// DrainPending hands over every record appended since the last drain. The
// archiver uses this for write-behind persistence.
func (s *Store) DrainPending() []*fleet.TrackRecord {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	drained := s.pending
	s.pending = nil

	return drained
}

// RequeuePending returns records to the pending queue after a failed flush
// so the next archiver run retries them. Requeued records are older than
// anything queued since, so they go to the front - and fall off first if
// the cap is hit.
func (s *Store) RequeuePending(records []*fleet.TrackRecord) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	s.pending = trimPending(append(records, s.pending...))
}
