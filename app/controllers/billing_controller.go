package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/billing"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/database"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/usercontext"
)

const billingProvider = "stripe"

type planChangeRequest struct {
	NewTier         string `json:"newTier"`
	BillingInterval string `json:"billingInterval"`
}

// HandlePlanChange handles POST /api/v1/billing/plan-change. Upgrades return
// a checkout URL; downgrades are scheduled for period end. All failures come
// back as 200 {success:false} so the UI renders the message instead of a
// transport error.
func HandlePlanChange(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req planChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(fiber.Map{"success": false, "error": "Invalid request body."})
	}

	svc := billing.NewServiceFromDB()
	result, err := svc.ChangePlan(c.Context(), userCtx.FactoryID, req.NewTier, req.BillingInterval)
	if err != nil {
		return c.JSON(fiber.Map{"success": false, "error": userFacingBillingError(err)})
	}

	if result.ChangeType == billing.ChangeUpgrade {
		return c.JSON(fiber.Map{
			"success":          true,
			"requiresCheckout": true,
			"checkoutUrl":      result.CheckoutURL,
			"changeType":       string(result.ChangeType),
			"message":          result.Message,
		})
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"changeType":    string(result.ChangeType),
		"newTier":       result.NewTier,
		"newInterval":   result.NewInterval,
		"maxLines":      result.MaxLines,
		"effectiveDate": result.EffectiveAt,
		"message":       result.Message,
	})
}

// HandleBillingWebhook handles POST /api/v1/billing/webhook. The raw body is
// verified against the provider signature, deduplicated, then dispatched.
// After successful dispatch the endpoint always acknowledges with 200 so the
// provider does not redeliver events whose side work failed.
func HandleBillingWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	gateway := billing.NewStripeGatewayFromEnv()
	event, err := gateway.VerifyWebhook(payload, signature)
	if err != nil {
		log.Printf("[Billing] webhook rejected: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid webhook"})
	}

	repo := billing.NewRepository(database.GetDB())
	stored := &models.BillingWebhookEvent{
		Provider:        billingProvider,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	}
	fresh, err := repo.CreateWebhookEventIfNotExists(stored)
	if err != nil {
		log.Printf("[Billing] webhook dedup store failed for %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage failure"})
	}
	if !fresh {
		// Already seen; handlers are idempotent anyway but skip the work.
		return c.JSON(fiber.Map{"received": true})
	}

	reconciler := billing.NewReconcilerFromDB()
	processingError := ""
	if err := reconciler.HandleEvent(c.Context(), event); err != nil {
		log.Printf("[Billing] webhook %s (%s) processing failed: %v", event.ID, event.Type, err)
		processingError = err.Error()
	}
	if err := repo.MarkWebhookProcessed(stored.ID, processingError); err != nil {
		log.Printf("[Billing] mark webhook %s processed: %v", event.ID, err)
	}

	return c.JSON(fiber.Map{"received": true})
}

// HandleGetBillingRecord handles GET /api/v1/billing/record, the poll target
// the UI uses after checkout redirects.
func HandleGetBillingRecord(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := billing.NewRepository(database.GetDB())
	record, err := repo.GetOrCreateBillingRecord(userCtx.FactoryID)
	if err != nil {
		log.Printf("[Billing] load record for factory %d: %v", userCtx.FactoryID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load billing record"})
	}
	return c.JSON(record)
}

// userFacingBillingError maps service errors to plain-language messages.
// Known request errors carry their own text; everything else is generic so no
// raw provider detail leaks to the UI.
func userFacingBillingError(err error) string {
	switch {
	case errors.Is(err, billing.ErrUnknownTier),
		errors.Is(err, billing.ErrInvalidInterval),
		errors.Is(err, billing.ErrSamePlan),
		errors.Is(err, billing.ErrNoSubscription),
		errors.Is(err, billing.ErrProviderFailure):
		return err.Error()
	default:
		return "Plan change failed. Please try again or contact support."
	}
}
