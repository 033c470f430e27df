package dataimporter

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/database"
	"github.com/transitrack/transitrack/pkg/ingest"
	"github.com/transitrack/transitrack/pkg/spatialindex"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "data-importer",
		Usage: "Import stop & fleet datasets into the database",
		Subcommands: []*cli.Command{
			{
				Name:  "stops",
				Usage: "Import a stops CSV file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path of the stops CSV file",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}

					file, err := os.Open(c.String("file"))
					if err != nil {
						return err
					}
					defer file.Close()

					network := stopnetwork.NewNetwork(spatialindex.DefaultCellSizeMeters)

					imported, err := ImportStops(context.Background(), file, network, true)
					if err != nil {
						return err
					}

					log.Info().Int("stops", imported).Msg("Stop import complete")

					return nil
				},
			},
			{
				Name:  "vehicles",
				Usage: "Import a fleet YAML file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path of the fleet YAML file",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}

					file, err := os.Open(c.String("file"))
					if err != nil {
						return err
					}
					defer file.Close()

					registry := ingest.NewFleetRegistry()

					imported, err := ImportVehicles(context.Background(), file, registry, true)
					if err != nil {
						return err
					}

					log.Info().Int("vehicles", imported).Msg("Fleet import complete")

					return nil
				},
			},
		},
	}
}
