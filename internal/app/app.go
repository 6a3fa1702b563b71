package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"authorkit/internal/bookshelf"
	"authorkit/internal/config"
	apierrors "authorkit/internal/errors"
	"authorkit/internal/infrastructure"
	"authorkit/internal/license"
	custommw "authorkit/internal/middleware"
	"authorkit/internal/ratelimit"
	"authorkit/internal/security"
	handlers "authorkit/internal/transport/http"
	"authorkit/internal/webhook"
)

// Version is set at build time.
var Version = "dev"

// Application is the dependency-injection container. Everything is
// constructed once at startup and passed into the handlers.
type Application struct {
	Config     *config.Config
	Router     *chi.Mux
	Server     *http.Server
	Logger     *slog.Logger
	Store      bookshelf.Store
	Limiter    *ratelimit.Limiter
	Client     *license.Client
	Signer     *security.TokenSigner
	Verifier   *security.WebhookVerifier
	Dispatcher *webhook.Dispatcher
}

// NewApplication loads configuration and builds the full container.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := infrastructure.InitializeLogger(cfg.Logging)
	logger.Info("application starting",
		slog.String("version", Version),
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Server.Port),
	)

	store, err := bookshelf.NewPostgresStore(cfg.Database, cfg.IsDevelopment(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect bookshelf store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bookshelf schema: %w", err)
	}

	rlStore, err := newRateLimitStore(ctx, cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate limit store: %w", err)
	}

	return assemble(cfg, logger, store, rlStore), nil
}

// assemble wires handlers and middleware around already-built
// dependencies. Tests call it with fakes.
func assemble(cfg *config.Config, logger *slog.Logger, store bookshelf.Store, rlStore ratelimit.Store) *Application {
	a := &Application{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Limiter:    ratelimit.NewLimiter(rlStore),
		Client:     license.NewClient(cfg.Payments, logger),
		Signer:     security.NewTokenSigner(cfg.Download.TokenSecret),
		Verifier:   security.NewWebhookVerifier(cfg.Webhook.Secret, cfg.IsProduction(), logger),
		Dispatcher: webhook.NewDispatcher(logger),
	}

	a.setupRouter()
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return a
}

// newRateLimitStore builds the configured rate-limit backend.
func newRateLimitStore(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Store, error) {
	switch cfg.Backend {
	case "redis":
		return ratelimit.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return ratelimit.NewMemoryStore(cfg.SweepHighWater), nil
	}
}

// setupRouter configures the HTTP router with all routes.
func (a *Application) setupRouter() {
	cfg := a.Config
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.CORS(custommw.CORSConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
	}))
	r.Use(custommw.Compress(5))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrMethodNotAllowed))
	})

	licenseHandler := handlers.NewLicenseHandler(a.Client, a.Signer, cfg, a.Logger)
	webhookHandler := handlers.NewWebhookHandler(a.Verifier, a.Dispatcher, a.Logger)
	bookshelfHandler := handlers.NewBookshelfHandler(a.Store, cfg.IsDevelopment(), a.Logger)
	healthHandler := handlers.NewHealthHandler(a.Store, a.Client, a.Logger)

	rl := func(bucket string, max int, window time.Duration) func(http.Handler) http.Handler {
		return custommw.RateLimit(a.Limiter, bucket, ratelimit.Limit{
			MaxRequests: max,
			Window:      window,
		}, a.Logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", healthHandler.Healthz)
		r.Get("/download", licenseHandler.Download)

		// Webhooks are authenticated by signature, not rate limited.
		r.Post("/webhooks/provider", webhookHandler.Receive)

		r.Group(func(r chi.Router) {
			r.Use(rl("license", cfg.RateLimit.LicenseMax, cfg.RateLimit.LicenseWindow))
			r.Post("/validate-license", licenseHandler.ValidateLicense)
			r.Post("/activate-license", licenseHandler.ActivateLicense)
			r.Post("/deactivate-license", licenseHandler.DeactivateLicense)
			r.Post("/check-update", licenseHandler.CheckUpdate)
		})

		r.Route("/bookshelf", func(r chi.Router) {
			r.Get("/keepalive", bookshelfHandler.Keepalive)
			r.With(rl("books_list", cfg.RateLimit.ListMax, cfg.RateLimit.ListWindow)).
				Get("/books", bookshelfHandler.ListBooks)

			r.Group(func(r chi.Router) {
				r.Use(rl("bookshelf_write", cfg.RateLimit.WriteMax, cfg.RateLimit.WriteWindow))
				r.Post("/register", bookshelfHandler.RegisterSite)
				r.Post("/deregister", bookshelfHandler.DeregisterSite)
				r.Post("/sync", bookshelfHandler.SyncBook)
				r.Post("/remove", bookshelfHandler.RemoveBook)
			})
		})

		r.With(rl("email", cfg.RateLimit.EmailMax, cfg.RateLimit.EmailWindow)).
			Post("/email-capture", bookshelfHandler.EmailCapture)
	})

	a.Router = r
}

// Start begins serving in a background goroutine.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "HTTP server listening",
		slog.String("addr", a.Server.Addr))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("HTTP server failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully and closes the store.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if closer, ok := a.Store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn("failed to close bookshelf store",
				slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run serves until interrupted, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "received shutdown signal",
			slog.String("signal", sig.String()))
	}

	return a.Stop(context.Background())
}
