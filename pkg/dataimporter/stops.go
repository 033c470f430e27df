package dataimporter

import (
	"context"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
)

type stopRow struct {
	PrimaryIdentifier string  `csv:"id"`
	Code              string  `csv:"code"`
	Name              string  `csv:"name"`
	Longitude         float64 `csv:"longitude"`
	Latitude          float64 `csv:"latitude"`
	Zone              string  `csv:"zone"`
	ServedRoutes      string  `csv:"routes"`
	Active            string  `csv:"active"`
}

func (row *stopRow) toStop() *fleet.Stop {
	stop := &fleet.Stop{
		PrimaryIdentifier: row.PrimaryIdentifier,
		Code:              row.Code,
		Name:              row.Name,
		Location:          fleet.NewLocation(row.Longitude, row.Latitude),
		Zone:              row.Zone,
		IsActive:          !strings.EqualFold(row.Active, "false"),
	}

	if row.ServedRoutes != "" {
		stop.ServedRoutes = strings.Split(row.ServedRoutes, "|")
	}

	return stop
}

// ImportStops loads stop definitions from CSV into the live network,
// optionally writing each accepted stop through to the database. Rows the
// network rejects are logged and skipped.
func ImportStops(ctx context.Context, source io.Reader, network *stopnetwork.Network, persist bool) (int, error) {
	var rows []*stopRow
	if err := gocsv.Unmarshal(source, &rows); err != nil {
		return 0, err
	}

	imported := 0
	for _, row := range rows {
		stop := row.toStop()

		if err := network.Upsert(stop); err != nil {
			log.Error().Err(err).Str("stop", stop.PrimaryIdentifier).Msg("Rejected stop row")
			continue
		}

		if persist {
			if err := network.SaveStop(ctx, stop); err != nil {
				return imported, err
			}
		}

		imported += 1
	}

	return imported, nil
}
