package routes

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/query"
	"github.com/transitrack/transitrack/pkg/stopnetwork"
)

func StopsRouter(router fiber.Router, engine *query.Engine, network *stopnetwork.Network) {
	router.Get("/", listStops(network))
	router.Get("/nearest", getNearestStop(engine))
	router.Get("/:identifier", getStop(network))
	router.Post("/", upsertStop(network))
	router.Delete("/:identifier", deleteStop(network))
}

func listStops(network *stopnetwork.Network) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stops := network.All()

		reduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: []string{"basic"},
		}, stops)
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": "Failed to reduce stop list",
			})
		}

		return c.JSON(reduced)
	}
}

func getNearestStop(engine *query.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		point, ok := parsePoint(c)
		if !ok {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameters lon & lat must be valid co-ordinates",
			})
		}

		maxDistance, err := strconv.ParseFloat(c.Query("max_distance", "0"), 64)
		if err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter max_distance must be a number",
			})
		}

		stop, distance, err := engine.NearestStop(point, maxDistance)
		if err != nil {
			return apiError(c, err)
		}

		return c.JSON(fiber.Map{
			"stop":            stop,
			"distance_meters": distance,
		})
	}
}

func getStop(network *stopnetwork.Network) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stop := network.Get(c.Params("identifier"))
		if stop == nil {
			c.SendStatus(fiber.StatusNotFound)
			return c.JSON(fiber.Map{
				"error": "Could not find Stop matching Stop Identifier",
			})
		}

		return c.JSON(stop)
	}
}

func upsertStop(network *stopnetwork.Network) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var stop fleet.Stop
		if err := c.BodyParser(&stop); err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Body must be a valid stop",
			})
		}

		if err := network.Upsert(&stop); err != nil {
			return apiError(c, err)
		}

		if err := network.SaveStop(c.Context(), &stop); err != nil {
			return apiError(c, err)
		}

		c.SendStatus(fiber.StatusCreated)
		return c.JSON(&stop)
	}
}

func deleteStop(network *stopnetwork.Network) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.Params("identifier")

		if err := network.Remove(identifier); err != nil {
			return apiError(c, err)
		}

		if err := network.DeleteStop(c.Context(), identifier); err != nil {
			return apiError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
