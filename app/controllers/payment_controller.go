package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MatiasHerrera/PagoLink/internal/pkg/payments"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/usercontext"
)

type lineItemRequest struct {
	ID        string  `json:"id"`
	Title     string  `json:"title" validate:"required,max=256"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	UnitPrice float64 `json:"unit_price" validate:"required,gt=0"`
}

type marketplaceRequest struct {
	CollectorID string  `json:"collector_id" validate:"required"`
	FeeAmount   float64 `json:"fee_amount"`
	FeePercent  float64 `json:"fee_percent"`
}

type redirectURLsRequest struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type createPaymentRequest struct {
	Items          []lineItemRequest      `json:"items" validate:"required,min=1,dive"`
	Currency       string                 `json:"currency" validate:"required,len=3"`
	Metadata       map[string]interface{} `json:"metadata"`
	Marketplace    *marketplaceRequest    `json:"marketplace"`
	Redirects      *redirectURLsRequest   `json:"redirect_urls"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// HandleCreatePayment creates a checkout preference and the pending local
// payment record for the authenticated user.
func HandleCreatePayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createPaymentRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	items := make([]payments.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = payments.LineItem{
			ID:        item.ID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	in := payments.CreatePaymentInput{
		UserID:         userCtx.UserID,
		Items:          items,
		Currency:       req.Currency,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.Marketplace != nil {
		in.Marketplace = &payments.MarketplaceConfig{
			CollectorID: req.Marketplace.CollectorID,
			FeeAmount:   req.Marketplace.FeeAmount,
			FeePercent:  req.Marketplace.FeePercent,
		}
	}
	if req.Redirects != nil {
		in.Redirects = &payments.RedirectURLs{
			Success: req.Redirects.Success,
			Failure: req.Redirects.Failure,
			Pending: req.Redirects.Pending,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := payments.Default().CreatePayment(ctx, in)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleGetPayment returns one of the authenticated user's payments.
func HandleGetPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "invalid payment id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payment, err := payments.Default().GetUserPayment(ctx, userCtx.UserID, uint(id))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(payment)
}

// HandleListPayments returns the authenticated user's payments, newest first.
func HandleListPayments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := payments.Default().ListUserPayments(ctx, userCtx.UserID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"payments": list})
}
