package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MatiasHerrera/PagoLink/internal/pkg/payments"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/usercontext"
)

type trialRequest struct {
	Frequency     int    `json:"frequency" validate:"required,min=1"`
	FrequencyType string `json:"frequency_type" validate:"oneof=days months"`
}

type recurringRequest struct {
	Frequency     int           `json:"frequency" validate:"required,min=1"`
	FrequencyType string        `json:"frequency_type" validate:"oneof=days months"`
	Amount        float64       `json:"amount" validate:"required,gt=0"`
	Currency      string        `json:"currency" validate:"required,len=3"`
	Trial         *trialRequest `json:"trial" validate:"omitempty"`
	StartDate     *time.Time    `json:"start_date"`
	EndDate       *time.Time    `json:"end_date"`
}

type createSubscriptionRequest struct {
	PlanID         *uint             `json:"plan_id"`
	Reason         string            `json:"reason" validate:"max=200"`
	Recurring      *recurringRequest `json:"recurring" validate:"omitempty"`
	PayerEmail     string            `json:"payer_email" validate:"omitempty,email"`
	BackURL        string            `json:"back_url"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// HandleCreateSubscription creates a recurring-approval at the provider and
// the pending local subscription record.
func HandleCreateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createSubscriptionRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	in := payments.CreateSubscriptionInput{
		UserID:         userCtx.UserID,
		PlanID:         req.PlanID,
		Reason:         req.Reason,
		PayerEmail:     req.PayerEmail,
		BackURL:        req.BackURL,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.Recurring != nil {
		in.Recurring = &payments.RecurringSpec{
			Frequency:     req.Recurring.Frequency,
			FrequencyType: req.Recurring.FrequencyType,
			Amount:        req.Recurring.Amount,
			Currency:      req.Recurring.Currency,
			StartDate:     req.Recurring.StartDate,
			EndDate:       req.Recurring.EndDate,
		}
		if req.Recurring.Trial != nil {
			in.Recurring.Trial = &payments.TrialSpec{
				Frequency:     req.Recurring.Trial.Frequency,
				FrequencyType: req.Recurring.Trial.FrequencyType,
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := payments.Default().CreateSubscription(ctx, in)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleCancelSubscription cancels one of the authenticated user's
// subscriptions at the provider and locally.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "invalid subscription id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sub, err := payments.Default().CancelSubscription(ctx, userCtx.UserID, uint(id))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

// HandleListSubscriptions returns the authenticated user's subscriptions.
func HandleListSubscriptions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := payments.Default().ListUserSubscriptions(ctx, userCtx.UserID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"subscriptions": list})
}
