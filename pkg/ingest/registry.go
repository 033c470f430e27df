package ingest

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/database"
	"github.com/transitrack/transitrack/pkg/fleet"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// VehicleRegistry answers whether a vehicle id belongs to the known fleet.
// Wiring one into the pipeline enables the strict registration policy.
type VehicleRegistry interface {
	Known(vehicleID string) bool
}

// FleetRegistry is an in-memory registry of fleet metadata, loaded from
// the vehicles collection and written through on change.
type FleetRegistry struct {
	mu       sync.RWMutex
	vehicles map[string]*fleet.Vehicle
}

func NewFleetRegistry() *FleetRegistry {
	return &FleetRegistry{
		vehicles: map[string]*fleet.Vehicle{},
	}
}

func (r *FleetRegistry) Known(vehicleID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.vehicles[vehicleID]

	return exists
}

func (r *FleetRegistry) Get(vehicleID string) *fleet.Vehicle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vehicle := r.vehicles[vehicleID]
	if vehicle == nil {
		return nil
	}

	vehicleCopy := *vehicle

	return &vehicleCopy
}

func (r *FleetRegistry) Insert(vehicle *fleet.Vehicle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vehicleCopy := *vehicle
	r.vehicles[vehicle.FleetNumber] = &vehicleCopy
}

func (r *FleetRegistry) All() []*fleet.Vehicle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vehicles := make([]*fleet.Vehicle, 0, len(r.vehicles))
	for _, vehicle := range r.vehicles {
		vehicleCopy := *vehicle
		vehicles = append(vehicles, &vehicleCopy)
	}

	return vehicles
}

func (r *FleetRegistry) LoadFromDatabase(ctx context.Context) error {
	vehiclesCollection := database.GetCollection("vehicles")

	cursor, err := vehiclesCollection.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	loaded := 0
	for cursor.Next(ctx) {
		var vehicle fleet.Vehicle
		if err := cursor.Decode(&vehicle); err != nil {
			log.Error().Err(err).Msg("Failed to decode Vehicle")
			continue
		}

		r.Insert(&vehicle)
		loaded += 1
	}

	log.Info().Int("vehicles", loaded).Msg("Loaded fleet registry")

	return cursor.Err()
}

func (r *FleetRegistry) SaveVehicle(ctx context.Context, vehicle *fleet.Vehicle) error {
	vehiclesCollection := database.GetCollection("vehicles")

	filter := bson.M{"fleetnumber": vehicle.FleetNumber}
	update := bson.M{"$set": vehicle}

	_, err := vehiclesCollection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))

	return err
}
