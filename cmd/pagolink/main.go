package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MatiasHerrera/PagoLink/app/repository"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/cache"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/database"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/env"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/mercadopago"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/payments"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()

	repository.SetGlobalFactory(repository.NewFactory(database.GetDB()))

	// idempotency + rate limiting live in Redis when available so multiple
	// instances share state; the in-memory fallback is for local development
	var store payments.Store
	var limiter payments.Limiter
	if env.GetEnv("CACHE_HOST", "") != "" {
		cache.SetupCache()
		store = payments.NewRedisStore(cache.GetClient(), "pagolink")
		limiter = payments.NewRedisLimiter(cache.GetClient(), "pagolink")
	} else {
		log.Println("[PagoLink] CACHE_HOST not set, using in-memory idempotency store and rate limiter")
		store = payments.NewMemoryStore()
		limiter = payments.NewMemoryLimiter()
	}

	svc := payments.NewService(
		payments.NewRepository(database.GetDB()),
		mercadopago.NewClientFromEnv(),
		store,
		limiter,
		payments.Config{
			WebhookSecret:         env.GetEnv("MP_WEBHOOK_SECRET", ""),
			NotificationURL:       env.GetEnv("MP_NOTIFICATION_URL", ""),
			AllowedRedirectHosts:  splitHosts(env.GetEnv("REDIRECT_ALLOWED_HOSTS", "")),
			RequireHTTPSRedirects: env.GetEnv("REDIRECT_REQUIRE_HTTPS", "true") == "true",
		},
	)
	payments.SetDefault(svc)

	app := fiber.New(fiber.Config{
		AppName:   "PagoLink",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

func splitHosts(raw string) []string {
	var hosts []string
	for _, h := range strings.Split(raw, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
