package ingest

import (
	"context"

	"github.com/transitrack/transitrack/pkg/database"
	"github.com/transitrack/transitrack/pkg/fleet"
)

// MongoSink writes track records straight into the tracks collection for
// deployments that want durability on the ingestion path instead of the
// archiver's write-behind.
type MongoSink struct{}

func (s MongoSink) Write(ctx context.Context, record *fleet.TrackRecord) error {
	tracksCollection := database.GetCollection("tracks")

	_, err := tracksCollection.InsertOne(ctx, record)

	return err
}
