package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/stitchtrackhq/StitchTrack/app/controllers"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/env"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "StitchTrack API",
		})
	})

	v1 := api.Group("/v1")

	// Public routes: token issue, provider webhook, buyer progress view.
	v1.Post("/auth/token", controllers.HandleIssueToken)
	v1.Post("/billing/webhook", controllers.HandleBillingWebhook)
	v1.Get("/po-view/:token", controllers.HandleBuyerPOView)

	// Authenticated routes.
	auth := v1.Group("", middleware.APITokenAuthMiddleware())
	auth.Get("/me", controllers.HandleGetMe)
	auth.Delete("/auth/token", controllers.HandleRevokeToken)

	auth.Get("/billing/record", controllers.HandleGetBillingRecord)
	auth.Post("/billing/plan-change", middleware.RequireFactoryAdmin, controllers.HandlePlanChange)

	auth.Get("/lines", controllers.HandleListLines)
	auth.Post("/lines", middleware.RequireFactoryAdmin, controllers.HandleCreateLine)
	auth.Delete("/lines/:id", middleware.RequireFactoryAdmin, controllers.HandleDeactivateLine)

	auth.Get("/purchase-orders", controllers.HandleListPurchaseOrders)
	auth.Post("/purchase-orders", controllers.HandleCreatePurchaseOrder)
	auth.Patch("/purchase-orders/:id/status", controllers.HandleUpdatePurchaseOrderStatus)
	auth.Get("/purchase-orders/:id/progress", controllers.HandleGetPurchaseOrderProgress)

	auth.Post("/entries", controllers.HandleSubmitEntry)
	auth.Get("/dashboard", controllers.HandleGetDashboard)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Falls back to the limiter's in-memory storage when unset.
func newLimiterStorage() fiber.Storage {
	host := env.GetEnv("CACHE_HOST", "")
	if host == "" {
		return nil
	}
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Database: 1,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
