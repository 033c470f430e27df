package archiver

import (
	"context"

	"github.com/transitrack/transitrack/pkg/database"
	"github.com/transitrack/transitrack/pkg/fleet"
)

// MongoBatchSink archives track records into the tracks collection.
type MongoBatchSink struct{}

func (s MongoBatchSink) WriteBatch(ctx context.Context, records []*fleet.TrackRecord) error {
	tracksCollection := database.GetCollection("tracks")

	documents := make([]interface{}, 0, len(records))
	for _, record := range records {
		documents = append(documents, record)
	}

	_, err := tracksCollection.InsertMany(ctx, documents)

	return err
}
