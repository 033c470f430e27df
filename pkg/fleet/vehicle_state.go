package fleet

import "time"

// VehicleState is the single current-belief record for a vehicle. The
// state table only replaces it when a newer observation arrives.
type VehicleState struct {
	VehicleID      string    `json:"vehicle_id" groups:"basic,detailed"`
	LastObservedAt time.Time `json:"last_observed_at" groups:"basic,detailed"`

	Location *Location `json:"location" groups:"basic,detailed"`

	SpeedKMH   *float64 `json:"speed_kmh,omitempty" groups:"basic,detailed"`
	HeadingDeg *float64 `json:"heading_deg,omitempty" groups:"basic,detailed"`

	NearestStopID string `json:"nearest_stop_id,omitempty" groups:"basic,detailed"`

	Occupancy *Occupancy `json:"occupancy,omitempty" groups:"basic,detailed"`

	RouteID string        `json:"route_id,omitempty" groups:"basic,detailed"`
	Status  VehicleStatus `json:"status" groups:"basic,detailed"`

	// Optional annotations from the forecasting service
	PredictedArrivals []PredictedArrival `json:"predicted_arrivals,omitempty" groups:"detailed"`
	DemandForecasts   []DemandForecast   `json:"demand_forecasts,omitempty" groups:"detailed"`
	LastForecastAt    *time.Time         `json:"last_forecast_at,omitempty" groups:"detailed"`

	LastIngestedAt time.Time `json:"last_ingested_at" groups:"detailed"`
}

type PredictedArrival struct {
	StopID       string    `json:"stop_id" groups:"detailed"`
	ETA          time.Time `json:"eta" groups:"detailed"`
	UncertaintyS *float64  `json:"uncertainty_s,omitempty" groups:"detailed"`
}

type DemandForecast struct {
	StopID     string   `json:"stop_id" groups:"detailed"`
	Score      *float64 `json:"score,omitempty" groups:"detailed"`
	HorizonMin *int     `json:"horizon_min,omitempty" groups:"detailed"`
}
