package routes

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/ingest"
	"github.com/transitrack/transitrack/pkg/query"
)

func TracksRouter(router fiber.Router, pipeline *ingest.Pipeline, engine *query.Engine) {
	router.Post("/", ingestTrack(pipeline))
	router.Get("/nearby", nearbyVehicles(engine))
}

func ingestTrack(pipeline *ingest.Pipeline) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var event fleet.TelemetryEvent
		if err := c.BodyParser(&event); err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Body must be a valid telemetry event",
			})
		}

		result, err := pipeline.Ingest(c.Context(), &event)
		if err != nil {
			return apiError(c, err)
		}

		c.SendStatus(fiber.StatusAccepted)
		return c.JSON(result)
	}
}

func nearbyVehicles(engine *query.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		point, ok := parsePoint(c)
		if !ok {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameters lon & lat must be valid co-ordinates",
			})
		}

		radius, err := strconv.ParseFloat(c.Query("radius", "500"), 64)
		if err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter radius must be a number",
			})
		}

		limit, err := strconv.Atoi(c.Query("limit", "0"))
		if err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter limit must be an integer",
			})
		}

		nearby, err := engine.NearbyVehicles(point, radius, limit)
		if err != nil {
			return apiError(c, err)
		}

		reduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: []string{"basic"},
		}, nearby)
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": "Failed to reduce nearby vehicles",
			})
		}

		return c.JSON(reduced)
	}
}

func parsePoint(c *fiber.Ctx) (*fleet.Location, bool) {
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)

	if lonErr != nil || latErr != nil {
		return nil, false
	}

	return fleet.NewLocation(lon, lat), true
}
