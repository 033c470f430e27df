package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/transitrack/transitrack/pkg/fleet"
)

// apiError maps domain sentinel errors onto HTTP statuses.
func apiError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, fleet.ErrInvalidGeometry),
		errors.Is(err, fleet.ErrInvalidRange),
		errors.Is(err, fleet.ErrInvalidQuery):
		status = fiber.StatusBadRequest
	case errors.Is(err, fleet.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, fleet.ErrDuplicateKey):
		status = fiber.StatusConflict
	case errors.Is(err, fleet.ErrStore):
		status = fiber.StatusServiceUnavailable
	}

	c.SendStatus(status)
	return c.JSON(fiber.Map{
		"error": err.Error(),
	})
}
