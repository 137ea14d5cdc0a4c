package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CourseFox/app/controllers"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/constants"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
	"github.com/ManuelReschke/CourseFox/internal/pkg/payment"
	"github.com/ManuelReschke/CourseFox/internal/pkg/router"
)

func main() {
	app, manager := NewApplication()
	if err := manager.Start(); err != nil {
		log.Fatalf("failed to start reconciliation sweep: %v", err)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down...")
		manager.Stop()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	metrics.Register()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/coursefox to project root
		"../../../", // Fallback
	}

	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + constants.OpenAPISpecRel); err == nil {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	svc := payment.NewServiceFromDB(database.GetDB(), payment.NewRazorpayClientFromEnv(), payment.ConfigFromEnv())

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: constants.DocsBasePath,
		FilePath: basePath + constants.OpenAPISpecRel,
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Payments:        controllers.NewPaymentController(svc, env.GetEnv("RAZORPAY_KEY_ID", "")),
		Identity:        middleware.IdentityConfigFromEnv(),
		Redis:           cache.GetClient(),
		MetricsUser:     env.GetEnv("METRICS_USER", ""),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
		ReadyCheck:      readyCheck,
	})

	manager := jobqueue.NewManager(svc, jobqueue.RedisLease(cache.GetClient()), jobqueue.ConfigFromEnv())
	return app, manager
}

func readyCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	db := database.GetDB()
	if db == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := cache.GetClient().Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}
