package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/digkill/chimeralens/internal/api"
	"github.com/digkill/chimeralens/internal/auth"
	"github.com/digkill/chimeralens/internal/catalog"
	"github.com/digkill/chimeralens/internal/config"
	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/payments"
	"github.com/digkill/chimeralens/internal/provider"
	"github.com/digkill/chimeralens/internal/repository"
	"github.com/digkill/chimeralens/internal/service"
	"github.com/digkill/chimeralens/internal/storage"
	"github.com/digkill/chimeralens/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	runner, err := provider.New(cfg, logr)
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}

	uploader, err := storage.NewUploader(storage.ConfigFrom(cfg))
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	gateway := payments.NewGateway(cfg.StripeSecretKey)
	signer := auth.NewSigner(cfg.JWTSecret, cfg.JWTTTL)
	templates := catalog.DefaultTemplates()
	registry := catalog.DefaultModels()

	accountRepo := repository.NewAccountRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	planRepo := repository.NewPlanRepository(db)
	promoRepo := repository.NewPromoRepository(db)

	planService := service.NewPlanService(cfg, planRepo)
	if err := planService.EnsureDefaultPlan(ctx); err != nil {
		log.Fatalf("ensure default plan: %v", err)
	}

	deps := api.Deps{
		Identity:    service.NewIdentityService(logr, accountRepo, cfg.GuestStartingCredits, cfg.GuestRecencyWindow),
		Auth:        service.NewAuthService(logr, accountRepo, signer, cfg.RegisteredStartingCredits),
		Accounts:    service.NewAccountService(logr, accountRepo),
		Generations: service.NewGenerationService(db, logr, templates, registry, generationRepo, runner, uploader, cfg.GenerationTimeout),
		Billing:     service.NewBillingService(cfg, logr, planRepo, orderRepo, gateway),
		Webhooks:    service.NewWebhookService(db, logr, orderRepo, gateway, cfg.StripeWebhookSecret),
		Plans:       planService,
		Promos:      service.NewPromoService(db, logr, promoRepo, cfg.PromoBonusCredits),
		Templates:   templates,
		Models:      registry,
		Signer:      signer,
	}

	server := api.NewServer(api.Options{
		Addr:           cfg.ListenAddr,
		AdminUsername:  cfg.AdminUsername,
		AdminPassword:  cfg.AdminPassword,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		WriteTimeout:   cfg.GenerationTimeout + cfg.RequestTimeout,
	}, logr, deps)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}
}
