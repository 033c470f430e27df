package fleet

import "time"

// Stop is a named location in the route network. Administered externally,
// read-only from the tracking core's perspective.
type Stop struct {
	PrimaryIdentifier string `json:"primary_identifier" groups:"basic,detailed"`

	Code string `json:"code" groups:"basic,detailed"`
	Name string `json:"name" groups:"basic,detailed"`

	Location *Location `json:"location" groups:"basic,detailed"`

	Zone      string   `json:"zone,omitempty" groups:"detailed"`
	Amenities []string `json:"amenities,omitempty" groups:"detailed"`

	IsActive     bool     `json:"is_active" groups:"basic,detailed"`
	ServedRoutes []string `json:"served_routes,omitempty" groups:"basic,detailed"`

	DemandScore      float64    `json:"demand_score,omitempty" groups:"detailed"`
	LastDemandUpdate *time.Time `json:"last_demand_update,omitempty" groups:"detailed"`
}
