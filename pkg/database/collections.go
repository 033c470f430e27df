package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func createIndexes() {
	createStopsIndexes()
	createTracksIndexes()
	createVehiclesIndexes()
}

func createStopsIndexes() {
	stopsCollection := GetCollection("stops")
	stopsIndex := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "primaryidentifier", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "location.coordinates", Value: "2dsphere"}},
		},
	}

	opts := options.CreateIndexes()
	_, err := stopsCollection.Indexes().CreateMany(context.Background(), stopsIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}

func createTracksIndexes() {
	tracksCollection := GetCollection("tracks")
	tracksIndex := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "vehicleid", Value: 1},
				{Key: "observedat", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "location.coordinates", Value: "2dsphere"}},
		},
		{
			Keys: bson.D{{Key: "neareststopid", Value: 1}},
		},
	}

	opts := options.CreateIndexes()
	_, err := tracksCollection.Indexes().CreateMany(context.Background(), tracksIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}

func createVehiclesIndexes() {
	vehicleStatesCollection := GetCollection("vehicle_states")
	vehicleStatesIndex := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "vehicleid", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "location.coordinates", Value: "2dsphere"}},
		},
	}

	opts := options.CreateIndexes()
	_, err := vehicleStatesCollection.Indexes().CreateMany(context.Background(), vehicleStatesIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}

	vehiclesCollection := GetCollection("vehicles")
	vehiclesIndex := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fleetnumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	opts = options.CreateIndexes()
	_, err = vehiclesCollection.Indexes().CreateMany(context.Background(), vehiclesIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
