package api

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/archiver"
	"github.com/transitrack/transitrack/pkg/database"
	"github.com/transitrack/transitrack/pkg/forecast"
	"github.com/transitrack/transitrack/pkg/ingest"
	"github.com/transitrack/transitrack/pkg/query"
	"github.com/transitrack/transitrack/pkg/redis_client"
	"github.com/transitrack/transitrack/pkg/spatialindex"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
	"github.com/transitrack/transitrack/pkg/trackstore"
	"github.com/transitrack/transitrack/pkg/util"
	"github.com/transitrack/transitrack/pkg/vehiclestate"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the core web API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the web server",
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						log.Fatal().Err(err).Msg("Failed to connect to Redis")
					}

					ctx := context.Background()

					cellSize := util.GetEnvironmentFloat("TRANSITRACK_CELL_SIZE", spatialindex.DefaultCellSizeMeters)

					tracks := trackstore.NewStore()
					states := vehiclestate.NewTable()
					vehicleIndex := spatialindex.NewGrid(cellSize)
					stops := stopnetwork.NewNetwork(cellSize)

					if err := stops.LoadFromDatabase(ctx); err != nil {
						return err
					}

					registry := ingest.NewFleetRegistry()
					if err := registry.LoadFromDatabase(ctx); err != nil {
						return err
					}

					pipelineOptions := ingest.Options{
						TrackStore:            tracks,
						States:                states,
						VehicleIndex:          vehicleIndex,
						Stops:                 stops,
						StopCache:             ingest.CreateStopCache(),
						StopResolveTimeout:    util.GetEnvironmentDuration("TRANSITRACK_STOP_RESOLVE_TIMEOUT", ingest.DefaultStopResolveTimeout),
						MaxStopDistanceMeters: util.GetEnvironmentFloat("TRANSITRACK_MAX_STOP_DISTANCE", ingest.DefaultMaxStopDistanceMeters),
					}

					if util.GetEnvironmentVariable("TRANSITRACK_STRICT_REGISTRATION", "NO") == "YES" {
						pipelineOptions.Registry = registry
					}
					if util.GetEnvironmentVariable("TRANSITRACK_WRITE_THROUGH", "NO") == "YES" {
						pipelineOptions.Sink = ingest.MongoSink{}
					}

					pipeline := ingest.NewPipeline(pipelineOptions)
					engine := query.NewEngine(tracks, states, vehicleIndex, stops)

					if err := ingest.StartConsumers(pipeline); err != nil {
						return err
					}

					trackArchiver := archiver.New(archiver.Options{
						TrackStore: tracks,
						Sink:       archiver.MongoBatchSink{},
						Retention:  util.GetEnvironmentDuration("TRANSITRACK_RETENTION", archiver.DefaultRetention),
						Interval:   util.GetEnvironmentDuration("TRANSITRACK_ARCHIVE_INTERVAL", archiver.DefaultInterval),
					})
					go trackArchiver.Run(ctx)

					forecastClient := forecast.NewClient(forecast.Options{
						TrackStore: tracks,
						States:     states,
					})
					go forecastClient.Run(ctx)

					return SetupServer(c.String("listen"), Dependencies{
						Pipeline:     pipeline,
						Engine:       engine,
						States:       states,
						VehicleIndex: vehicleIndex,
						Stops:        stops,
						Registry:     registry,
					})
				},
			},
		},
	}
}
