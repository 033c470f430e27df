package routes

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/ingest"
	"github.com/transitrack/transitrack/pkg/query"
	"github.com/transitrack/transitrack/pkg/spatialindex"
	"github.com/transitrack/transitrack/pkg/vehiclestate"
)

func VehiclesRouter(router fiber.Router, engine *query.Engine, states *vehiclestate.Table, vehicleIndex *spatialindex.Grid, registry *ingest.FleetRegistry) {
	router.Get("/", listVehicles(engine))
	router.Get("/:identifier", getVehicle(engine, registry))
	router.Get("/:identifier/history", getVehicleHistory(engine))
	router.Get("/:identifier/latest", getVehicleLatest(engine))
	router.Put("/:identifier/assignment", setVehicleAssignment(states))
	router.Delete("/:identifier", decommissionVehicle(states, vehicleIndex))
}

func listVehicles(engine *query.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var filter *vehiclestate.ListFilter

		routeID := c.Query("route")
		status := c.Query("status")
		if routeID != "" || status != "" {
			filter = &vehiclestate.ListFilter{
				RouteID: routeID,
				Status:  fleet.VehicleStatus(status),
			}
		}

		views := engine.ListVehicles(filter)

		reduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: []string{"basic"},
		}, views)
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": "Failed to reduce vehicle list",
			})
		}

		return c.JSON(reduced)
	}
}

func getVehicle(engine *query.Engine, registry *ingest.FleetRegistry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.Params("identifier")

		view, err := engine.CurrentState(identifier)
		if err != nil {
			return apiError(c, err)
		}

		response := fiber.Map{
			"state":        view.State,
			"nearest_stop": view.NearestStop,
		}
		if registry != nil {
			response["vehicle"] = registry.Get(identifier)
		}

		reduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: []string{"basic", "detailed"},
		}, response)
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": "Failed to reduce vehicle",
			})
		}

		return c.JSON(reduced)
	}
}

func getVehicleHistory(engine *query.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.Params("identifier")

		from, ok := parseTimeQuery(c, "from")
		if !ok {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter from should be an RFC3339 datetime",
			})
		}

		to, ok := parseTimeQuery(c, "to")
		if !ok {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter to should be an RFC3339 datetime",
			})
		}

		limit, err := strconv.Atoi(c.Query("limit", "0"))
		if err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter limit must be an integer",
			})
		}

		records, err := engine.History(identifier, from, to, limit)
		if err != nil {
			return apiError(c, err)
		}

		return c.JSON(records)
	}
}

func getVehicleLatest(engine *query.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		record, err := engine.LatestRecord(c.Params("identifier"))
		if err != nil {
			return apiError(c, err)
		}

		return c.JSON(record)
	}
}

type assignmentRequest struct {
	RouteID string `json:"route_id"`
	Status  string `json:"status"`
}

func setVehicleAssignment(states *vehiclestate.Table) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request assignmentRequest
		if err := c.BodyParser(&request); err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Body must be a valid assignment",
			})
		}

		if err := states.SetAssignment(c.Params("identifier"), request.RouteID, fleet.VehicleStatus(request.Status)); err != nil {
			return apiError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func decommissionVehicle(states *vehiclestate.Table, vehicleIndex *spatialindex.Grid) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.Params("identifier")

		// The index entry goes with the state, or proximity queries would
		// keep returning the retired vehicle
		err := states.DecommissionWithHook(identifier, func() {
			vehicleIndex.Remove(identifier)
		})
		if err != nil {
			return apiError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func parseTimeQuery(c *fiber.Ctx, name string) (*time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		return nil, true
	}

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, false
	}

	return &parsed, true
}
