package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MatiasHerrera/PagoLink/internal/pkg/payments"
)

type createPlanRequest struct {
	Name          string        `json:"name" validate:"required,min=3,max=150"`
	Frequency     int           `json:"frequency" validate:"required,min=1"`
	FrequencyType string        `json:"frequency_type" validate:"oneof=days months"`
	Amount        float64       `json:"amount" validate:"required,gt=0"`
	Currency      string        `json:"currency" validate:"required,len=3"`
	Trial         *trialRequest `json:"trial" validate:"omitempty"`
	Repetitions   int           `json:"repetitions" validate:"min=0"`
	BackURL       string        `json:"back_url"`
}

// HandleCreatePlan creates a reusable billing template. Admin only.
func HandleCreatePlan(c *fiber.Ctx) error {
	var req createPlanRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	in := payments.CreatePlanInput{
		Name:          req.Name,
		Frequency:     req.Frequency,
		FrequencyType: req.FrequencyType,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Repetitions:   req.Repetitions,
		BackURL:       req.BackURL,
	}
	if req.Trial != nil {
		in.Trial = &payments.TrialSpec{
			Frequency:     req.Trial.Frequency,
			FrequencyType: req.Trial.FrequencyType,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	plan, err := payments.Default().CreatePlan(ctx, in)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

// HandleListPlans returns all billing templates.
func HandleListPlans(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	plans, err := payments.Default().ListPlans(ctx)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}
