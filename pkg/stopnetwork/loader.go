package stopnetwork

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/database"
	"github.com/transitrack/transitrack/pkg/fleet"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LoadFromDatabase fills the network from the stops collection. Invalid
// documents are skipped and logged rather than aborting the load.
func (n *Network) LoadFromDatabase(ctx context.Context) error {
	stopsCollection := database.GetCollection("stops")

	cursor, err := stopsCollection.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	loaded := 0
	for cursor.Next(ctx) {
		var stop fleet.Stop
		if err := cursor.Decode(&stop); err != nil {
			log.Error().Err(err).Msg("Failed to decode Stop")
			continue
		}

		if err := n.Upsert(&stop); err != nil {
			log.Error().Err(err).Str("stop", stop.PrimaryIdentifier).Msg("Failed to load Stop")
			continue
		}

		loaded += 1
	}

	log.Info().Int("stops", loaded).Msg("Loaded stop network")

	return cursor.Err()
}

// SaveStop writes a stop through to the database after it has been
// accepted into the live network.
func (n *Network) SaveStop(ctx context.Context, stop *fleet.Stop) error {
	stopsCollection := database.GetCollection("stops")

	filter := bson.M{"primaryidentifier": stop.PrimaryIdentifier}
	update := bson.M{"$set": stop}

	_, err := stopsCollection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))

	return err
}

// DeleteStop removes the stop document backing a removed network entry.
func (n *Network) DeleteStop(ctx context.Context, stopID string) error {
	stopsCollection := database.GetCollection("stops")

	_, err := stopsCollection.DeleteOne(ctx, bson.M{"primaryidentifier": stopID})

	return err
}
