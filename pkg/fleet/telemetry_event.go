package fleet

import "time"

// TelemetryEvent is one raw position/status report from a vehicle. It is
// normalised into a TrackRecord before anything is stored.
type TelemetryEvent struct {
	VehicleID  string    `json:"vehicle_id" validate:"required"`
	ObservedAt time.Time `json:"observed_at" validate:"required"`

	Location *Location `json:"location" validate:"required"`

	SpeedKMH   *float64 `json:"speed_kmh,omitempty" validate:"omitempty,gte=0"`
	HeadingDeg *float64 `json:"heading_deg,omitempty" validate:"omitempty,gte=0,lt=360"`

	GPS       *GPSMeta   `json:"gps,omitempty"`
	Occupancy *Occupancy `json:"occupancy,omitempty"`

	Source string `json:"source,omitempty"`
}

type GPSMeta struct {
	HDOP *float64 `json:"hdop,omitempty" groups:"detailed"`
	Fix  *int     `json:"fix,omitempty" groups:"detailed"`
}

type Occupancy struct {
	ObservedCount *int     `json:"observed_count,omitempty" validate:"omitempty,gte=0" groups:"basic,detailed"`
	Confidence    *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1" groups:"basic,detailed"`
}
