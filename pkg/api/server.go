package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/transitrack/transitrack/pkg/api/routes"
	"github.com/transitrack/transitrack/pkg/ingest"
	"github.com/transitrack/transitrack/pkg/query"
	"github.com/transitrack/transitrack/pkg/spatialindex"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
	"github.com/transitrack/transitrack/pkg/vehiclestate"
)

type Dependencies struct {
	Pipeline     *ingest.Pipeline
	Engine       *query.Engine
	States       *vehiclestate.Table
	VehicleIndex *spatialindex.Grid
	Stops        *stopnetwork.Network
	Registry     *ingest.FleetRegistry
}

func SetupServer(listen string, deps Dependencies) error {
	webApp := fiber.New()
	webApp.Use(NewLogger())

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	routes.TracksRouter(group.Group("/tracks"), deps.Pipeline, deps.Engine)
	routes.VehiclesRouter(group.Group("/vehicles"), deps.Engine, deps.States, deps.VehicleIndex, deps.Registry)
	routes.StopsRouter(group.Group("/stops"), deps.Engine, deps.Stops)

	return webApp.Listen(listen)
}
