package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockroom/internal/caching"
	"stockroom/internal/config"
	"stockroom/internal/handlers"
	"stockroom/internal/jobs"
	"stockroom/internal/jobs/background"
	"stockroom/internal/metrics"
	"stockroom/internal/middleware"
	"stockroom/internal/repositories"
	"stockroom/internal/services"
	"stockroom/pkg/database"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load(os.Getenv("STOCKROOM_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var cache caching.SummaryCache
	if cfg.Redis.Addr != "" {
		cache = caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	} else {
		log.Printf("WARN: Redis not configured, inventory summaries are computed on every request")
	}

	var archiver services.TagArchiver
	if cfg.Minio.Endpoint != "" {
		archiver, err = services.NewMinioTagArchiver(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
		if err != nil {
			log.Fatalf("Failed to initialize MinIO archiver: %v", err)
		}
		if err := archiver.EnsureBucketExists(ctx); err != nil {
			log.Printf("WARN: Failed to ensure archive bucket %s: %v", cfg.Minio.Bucket, err)
		}
	}

	store := repositories.NewPostgresStore(pool)
	auditSvc := services.NewAuditService(repositories.NewAuditEventRepo(pool))

	availabilitySvc := services.NewAvailabilityService(store, cache, cfg.Redis.SummaryTTL, m)
	routerSvc := services.NewConditionRouter(store, availabilitySvc, auditSvc, archiver, m)
	tagSvc := services.NewTagService(store, routerSvc, availabilitySvc, auditSvc, archiver, m)
	allocationSvc := services.NewAllocationService(store, availabilitySvc, services.NewBundleExpander(), auditSvc, archiver, m)
	instanceSvc := services.NewInstanceService(store, availabilitySvc, auditSvc, m)

	if cfg.Jobs.Enabled {
		alerts := jobs.NewInventoryAlertService(store, availabilitySvc)
		scheduler, err := background.NewJobScheduler(cfg.Jobs, availabilitySvc, tagSvc, alerts, auditSvc, m)
		if err != nil {
			log.Fatalf("Failed to create job scheduler: %v", err)
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				log.Printf("Failed to stop job scheduler: %v", err)
			}
		}()
	}

	router := &handlers.Router{
		Allocations: handlers.NewAllocationHandlers(allocationSvc, tagSvc),
		Instances:   handlers.NewInstanceHandlers(instanceSvc, routerSvc),
		SKUs:        handlers.NewSKUHandlers(availabilitySvc),
		Audit:       handlers.NewAuditLogsHandlers(auditSvc),
	}
	healthHandlers := handlers.NewHealthHandlers(pool, cache, archiver, version)

	e := echo.New()
	e.HideBanner = true

	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Pre(echoMiddleware.RemoveTrailingSlash())

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := e.Group("/v1")
	v1.Use(versionMiddleware.VersionHeader("v1"))
	if cfg.Auth.JWTSecret != "" {
		v1.Use(middleware.JWTMiddleware(cfg.Auth.JWTSecret))
	} else {
		log.Printf("WARNING: JWT_SECRET not set, trusting the %s header for actor identity", middleware.ActorHeader)
		v1.Use(middleware.HeaderActorMiddleware())
	}
	router.Register(v1)

	go func() {
		log.Printf("Stockroom server v%s starting on port %d", version, cfg.Server.Port)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
}
