package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fluxgate/fluxgate/internal/auth/session"
	authtwitter "github.com/fluxgate/fluxgate/internal/auth/twitter"
	"github.com/fluxgate/fluxgate/internal/billing"
	"github.com/fluxgate/fluxgate/internal/config"
	"github.com/fluxgate/fluxgate/internal/db"
	"github.com/fluxgate/fluxgate/internal/logging"
	"github.com/fluxgate/fluxgate/internal/ratelimit"
	"github.com/fluxgate/fluxgate/internal/storage"
	"github.com/fluxgate/fluxgate/internal/twitter"
	"github.com/fluxgate/fluxgate/internal/upstream/together"
	"github.com/fluxgate/fluxgate/internal/web/handlers"
)

func main() {
	cfg := config.Load()

	// Initialize database
	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Model catalog: YAML file when configured, built-in table otherwise
	catalog := config.DefaultCatalog()
	if cfg.ModelCatalogPath != "" {
		catalog, err = config.LoadCatalog(cfg.ModelCatalogPath)
		if err != nil {
			log.Fatalf("Failed to load model catalog: %v", err)
		}
	}

	// Rate limiter store: Redis when configured, in-process otherwise
	var store ratelimit.Store
	if cfg.RedisAddr != "" {
		redisStore, err := ratelimit.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		store = redisStore
		log.Printf("🔑 Rate limiter backed by Redis at %s", cfg.RedisAddr)
	} else {
		store = ratelimit.NewMemoryStore()
		log.Printf("🔑 Rate limiter using in-process store (set REDIS_ADDR for shared counters)")
	}
	limiter := ratelimit.New(store)

	// Upstream image client around the shared credential
	imageClient := together.NewClient(cfg.TogetherBaseURL, cfg.TogetherAPIKey, catalog)

	// Session tokens
	sessions, err := session.NewManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("Failed to initialize sessions: %v", err)
	}

	// Twitter linking + posting
	twitterCfg := authtwitter.Config{
		ClientID:     cfg.TwitterClientID,
		ClientSecret: cfg.TwitterClientSecret,
		RedirectURL:  cfg.TwitterRedirectURL,
		FrontendURL:  cfg.FrontendURL,
	}
	twitterClient := twitter.NewClient()

	// Billing
	billingSvc := billing.NewService(database, cfg.StripeSecretKey,
		cfg.StripeWebhookSecret, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)

	// Blob storage (optional; uploads are disabled without a bucket)
	var uploader storage.Uploader
	if cfg.S3Bucket != "" {
		uploader, err = storage.NewS3Store(context.Background(), storage.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.PublicBucketURL,
		})
		if err != nil {
			log.Fatalf("Failed to initialize blob storage: %v", err)
		}
	}

	// Create router
	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := session.RequireAuth(sessions)

	// ============================================
	// Public Routes
	// ============================================

	r.Get("/healthz", handlers.HealthHandler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/generateImages", handlers.GenerateImagesHandler(limiter, imageClient))
		r.Get("/models", handlers.ModelsHandler(catalog))

		r.Post("/uploadImage", handlers.UploadImageHandler(uploader))

		r.Post("/auth/signup", handlers.SignupHandler(database, sessions))
		r.Post("/auth/token", handlers.TokenHandler(database, sessions))

		// Billing: checkout is called by the frontend, the webhook by Stripe
		r.Post("/create-checkout-session", handlers.CreateCheckoutSessionHandler(billingSvc))
		r.Post("/stripe-webhook", handlers.StripeWebhookHandler(billingSvc))

		// Account + saved images (bearer token required)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/account", handlers.AccountHandler(database))
			r.Get("/coins", handlers.CoinsHandler(database))
			r.Post("/coins/spend", handlers.SpendCoinsHandler(database))
			r.Get("/images", handlers.ListImagesHandler(database))
			r.Post("/images", handlers.SaveImageHandler(database))
			r.Delete("/images/{id}", handlers.DeleteImageHandler(database))
		})
	})

	// ============================================
	// Twitter linking + posting
	// ============================================

	r.Route("/twitter", func(r chi.Router) {
		// The callback is hit by the provider redirect, not by our frontend
		r.Get("/auth/callback", authtwitter.CallbackHandler(twitterCfg, database))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/auth", authtwitter.LoginHandler(twitterCfg))
			r.Get("/accounts", handlers.LinkedAccountsHandler(database))
			r.Delete("/accounts/{username}", handlers.UnlinkAccountHandler(database))
			r.Post("/post", handlers.PostTweetHandler(twitterCfg, database, twitterClient))
		})
	})

	log.Printf("🚀 Fluxgate starting on http://%s", cfg.ListenAddr)
	log.Printf("🎨 Image API: http://%s/api/generateImages", cfg.ListenAddr)
	log.Printf("🐦 Twitter linking: http://%s/twitter/auth", cfg.ListenAddr)

	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
