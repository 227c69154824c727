package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/digkill/chimeralens/internal/auth"
	"github.com/digkill/chimeralens/internal/catalog"
	"github.com/digkill/chimeralens/internal/service"
)

const (
	headerGuestID     = "X-Guest-Id"
	headerFingerprint = "X-Device-Fingerprint"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Identity    *service.IdentityService
	Auth        *service.AuthService
	Accounts    *service.AccountService
	Generations *service.GenerationService
	Billing     *service.BillingService
	Webhooks    *service.WebhookService
	Plans       *service.PlanService
	Promos      *service.PromoService
	Templates   *catalog.Templates
	Models      *catalog.Models
	Signer      *auth.Signer
}

// Options configure the listener. WriteTimeout must outlast the provider call
// on POST /generations.
type Options struct {
	Addr           string
	AdminUsername  string
	AdminPassword  string
	AllowedOrigins []string
	MaxUploadBytes int64
	WriteTimeout   time.Duration
}

type Server struct {
	opts   Options
	log    *slog.Logger
	deps   Deps
	router *chi.Mux
}

func NewServer(opts Options, log *slog.Logger, deps Deps) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 150 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerGuestID, headerFingerprint},
		ExposedHeaders:   []string{headerGuestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{opts: opts, log: log, deps: deps, router: r}
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Get("/templates", s.handleTemplates)
	r.Get("/models", s.handleModels)
	r.Get("/billing/plans", s.handlePlans)
	r.Post("/billing/webhooks/stripe", s.handleStripeWebhook)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(identified chi.Router) {
		identified.Use(s.identify)
		identified.Get("/auth/me", s.handleMe)
		identified.Patch("/auth/password", s.handleChangePassword)
		identified.Patch("/auth/profile", s.handleUpdateProfile)
		identified.Route("/generations", func(r chi.Router) {
			r.Post("/", s.handleGenerate)
			r.Get("/", s.handleListGenerations)
			r.Get("/{id}", s.handleGetGeneration)
			r.Get("/{id}/download", s.handleDownloadGeneration)
		})
		identified.Post("/billing/checkout", s.handleCheckout)
		identified.Get("/billing/history", s.handleHistory)
		identified.Post("/promo/redeem", s.handleRedeemPromo)
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.basicAuth)
		admin.Route("/plans", func(r chi.Router) {
			r.Get("/", s.handleAdminListPlans)
			r.Post("/", s.handleAdminCreatePlan)
			r.Put("/{id}", s.handleAdminUpdatePlan)
			r.Delete("/{id}", s.handleAdminDeletePlan)
		})
		admin.Route("/promo-codes", func(r chi.Router) {
			r.Get("/", s.handleAdminListPromos)
			r.Post("/", s.handleAdminCreatePromo)
			r.Put("/{id}", s.handleAdminUpdatePromo)
			r.Delete("/{id}", s.handleAdminDeletePromo)
		})
		admin.Get("/accounts", s.handleAdminListAccounts)
		admin.Get("/accounts/{id}", s.handleAdminGetAccount)
		admin.Post("/accounts/{id}/credits", s.handleAdminAdjustCredits)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.opts.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Templates.List())
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"models": s.deps.Models.Keys()})
}
