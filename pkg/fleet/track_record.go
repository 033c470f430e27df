package fleet

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TrackRecord is a normalised telemetry snapshot. Once appended to the
// track store it is immutable - corrections arrive as new records.
type TrackRecord struct {
	RecordID primitive.ObjectID `json:"record_id" groups:"basic,detailed"`

	VehicleID  string    `json:"vehicle_id" groups:"basic,detailed"`
	ObservedAt time.Time `json:"observed_at" groups:"basic,detailed"`

	Location *Location `json:"location" groups:"basic,detailed"`

	SpeedKMH   *float64 `json:"speed_kmh,omitempty" groups:"basic,detailed"`
	HeadingDeg *float64 `json:"heading_deg,omitempty" groups:"basic,detailed"`

	// Weak reference into the stop network. May dangle if the stop is
	// later deleted - readers treat an unresolvable id as unknown.
	NearestStopID string `json:"nearest_stop_id,omitempty" groups:"basic,detailed"`

	GPS       *GPSMeta   `json:"gps,omitempty" groups:"detailed"`
	Occupancy *Occupancy `json:"occupancy,omitempty" groups:"basic,detailed"`

	Source string `json:"source,omitempty" groups:"detailed"`

	IngestedAt time.Time `json:"ingested_at" groups:"detailed"`
}

// Newer reports whether this record supersedes other for current-state
// purposes. Equal observation timestamps resolve last-writer-wins on
// arrival order, since independent feeds can share a timestamp.
func (r *TrackRecord) Newer(other *TrackRecord) bool {
	if r.ObservedAt.Equal(other.ObservedAt) {
		return !r.IngestedAt.Before(other.IngestedAt)
	}

	return r.ObservedAt.After(other.ObservedAt)
}
