package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/auth"
	"github.com/iliyamo/field-service-platform/internal/config"
	"github.com/iliyamo/field-service-platform/internal/database"
	"github.com/iliyamo/field-service-platform/internal/handler"
	"github.com/iliyamo/field-service-platform/internal/middleware"
	"github.com/iliyamo/field-service-platform/internal/queue"
	"github.com/iliyamo/field-service-platform/internal/realtime"
	"github.com/iliyamo/field-service-platform/internal/repository"
	"github.com/iliyamo/field-service-platform/internal/router"
	"github.com/iliyamo/field-service-platform/internal/tenant"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	businesses := repository.NewBusinessRepo(db)
	principals := repository.NewPrincipalRepo(db)
	tokens := repository.NewTokenRepo(db)
	resets := repository.NewResetRepo(db)

	resolver := tenant.NewResolver(businesses, cfg.BaseDomain, cfg.ExecSubdomain, cfg.Env == "dev")

	authSvc := &auth.Service{
		Principals: principals,
		Tokens:     tokens,
		Resets:     resets,
		Businesses: businesses,
		Secret:     cfg.JWTSecret,
		AccessTTL:  time.Duration(cfg.AccessTTLMin) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
		ResetTTL:   time.Duration(cfg.ResetTTLMin) * time.Minute,
		BcryptCost: cfg.BcryptCost,
	}

	hub := realtime.NewHub()
	go queue.StartPickupStatusConsumer(os.Getenv("RABBITMQ_URL"), hub)

	// Redis-backed token bucket on the credential endpoints.  A missing
	// Redis degrades to a pass-through limiter rather than blocking boot.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, rate limiting disabled")
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.ResolveTenant(resolver))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, authSvc), limiter, cfg.JWTSecret, cfg.EnforceTenant)
	router.RegisterBusiness(e, handler.NewBusinessHandler(cfg, businesses, principals), limiter)
	router.RegisterPickups(e, handler.NewPickupHandler(), cfg.JWTSecret, cfg.EnforceTenant)
	router.RegisterRealtime(e, handler.NewRealtimeHandler(hub, cfg.JWTSecret), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s base_domain=%s)", addr, cfg.Env, cfg.BaseDomain)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
