package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/MatiasHerrera/PagoLink/internal/pkg/payments"
)

var validate = validator.New()

// parseAndValidate decodes the JSON body into dst and runs struct validation.
func parseAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// errorResponse maps a payments-layer error to the HTTP status and JSON body
// for client-facing endpoints. Webhook responses are mapped separately
// because their contract is narrower.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case payments.IsValidationError(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, payments.ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limit_exceeded", "message": "too many requests"})
	case errors.Is(err, payments.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "record not found"})
	case errors.Is(err, payments.ErrProviderCall):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "provider_unavailable", "message": "payment provider call failed"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "unexpected error"})
	}
}
