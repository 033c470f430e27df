package dataimporter

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/ingest"
	"gopkg.in/yaml.v3"
)

type fleetDocument struct {
	Vehicles []*fleet.Vehicle `yaml:"vehicles"`
}

// ImportVehicles loads fleet metadata from YAML into the registry,
// optionally writing each vehicle through to the database. Entries
// without a fleet number are skipped.
func ImportVehicles(ctx context.Context, source io.Reader, registry *ingest.FleetRegistry, persist bool) (int, error) {
	var document fleetDocument
	if err := yaml.NewDecoder(source).Decode(&document); err != nil {
		return 0, err
	}

	imported := 0
	for _, vehicle := range document.Vehicles {
		if vehicle.FleetNumber == "" {
			log.Error().Msg("Skipping fleet entry without a fleet number")
			continue
		}

		if vehicle.Status == "" {
			vehicle.Status = fleet.VehicleStatusInService
		}

		registry.Insert(vehicle)

		if persist {
			if err := registry.SaveVehicle(ctx, vehicle); err != nil {
				return imported, err
			}
		}

		imported += 1
	}

	return imported, nil
}
