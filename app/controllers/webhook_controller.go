package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MatiasHerrera/PagoLink/internal/pkg/payments"
)

type webhookBody struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HandleProviderWebhook is the asynchronous notification intake. The
// response contract is narrow on purpose: 2xx for every business outcome,
// non-2xx only for a malformed body, a failed signature or rate limiting —
// the only conditions where a provider retry or alert is useful.
func HandleProviderWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	var body webhookBody
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
	}

	// The provider also delivers the event tag and id as query parameters;
	// the body wins when both are present.
	eventType := strings.TrimSpace(body.Type)
	if eventType == "" {
		eventType = strings.TrimSpace(c.Query("type", c.Query("topic")))
	}
	dataID := strings.TrimSpace(body.Data.ID)
	if dataID == "" {
		dataID = strings.TrimSpace(c.Query("data.id", c.Query("id")))
	}

	n := payments.WebhookNotification{
		Type:      eventType,
		DataID:    dataID,
		RequestID: strings.TrimSpace(c.Get("X-Request-Id")),
		Signature: strings.TrimSpace(c.Get("X-Signature")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := payments.Default().ProcessWebhook(ctx, n, rawBody); err != nil {
		switch {
		case errors.Is(err, payments.ErrUnauthorizedWebhook):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		case errors.Is(err, payments.ErrMalformedPayload):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		case errors.Is(err, payments.ErrRateLimited):
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limit_exceeded"})
		default:
			// Unreachable by contract; acknowledge rather than invite a retry.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
