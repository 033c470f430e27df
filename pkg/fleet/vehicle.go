package fleet

type VehicleStatus string

const (
	VehicleStatusInService    VehicleStatus = "IN_SERVICE"
	VehicleStatusOutOfService VehicleStatus = "OUT_OF_SERVICE"
	VehicleStatusMaintenance  VehicleStatus = "MAINTENANCE"
)

// Vehicle is the fleet registry entry for a bus - slow-changing metadata,
// distinct from the live VehicleState tracking record.
type Vehicle struct {
	FleetNumber string `json:"fleet_number" yaml:"fleet_number" groups:"basic,detailed"`

	Plate    string `json:"plate,omitempty" yaml:"plate,omitempty" groups:"detailed"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty" groups:"basic,detailed"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty" groups:"detailed"`

	Capacity *VehicleCapacity `json:"capacity,omitempty" yaml:"capacity,omitempty" groups:"detailed"`

	Features []string `json:"features,omitempty" yaml:"features,omitempty" groups:"detailed"`

	Status VehicleStatus `json:"status" yaml:"status" groups:"basic,detailed"`

	AssignedRoute string `json:"assigned_route,omitempty" yaml:"assigned_route,omitempty" groups:"basic,detailed"`
	CurrentTripID string `json:"current_trip_id,omitempty" yaml:"current_trip_id,omitempty" groups:"detailed"`
}

type VehicleCapacity struct {
	Seated   *int `json:"seated,omitempty" yaml:"seated,omitempty" groups:"detailed"`
	Standing *int `json:"standing,omitempty" yaml:"standing,omitempty" groups:"detailed"`
}
