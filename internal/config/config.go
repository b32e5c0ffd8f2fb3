// Package config loads gateway configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced setting the gateway recognizes.
type Config struct {
	ListenAddr   string
	DatabasePath string

	// FrontendURL is where OAuth success/error redirects land.
	FrontendURL string
	// AllowedOrigins for CORS, comma-separated in the env var.
	AllowedOrigins []string

	// TogetherAPIKey is the shared server credential for image generation.
	TogetherAPIKey  string
	TogetherBaseURL string

	// RedisAddr enables the Redis-backed rate limiter when set. Empty
	// means the in-process fallback store is used.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Session tokens are HS256 JWTs signed with this secret.
	SessionSecret string
	SessionTTL    time.Duration

	TwitterClientID     string
	TwitterClientSecret string
	TwitterRedirectURL  string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	// Blob storage for uploaded images.
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	PublicBucketURL string

	// ModelCatalogPath points at an optional YAML file overriding the
	// built-in model table and premade prompts.
	ModelCatalogPath string
}

// Load reads configuration from the environment, preferring a local .env
// file when present.
func Load() *Config {
	_ = godotenv.Load() // Ignore error if .env file doesn't exist

	redisDBStr := getEnv("REDIS_DB", "0")
	redisDB, err := strconv.Atoi(redisDBStr)
	if err != nil {
		log.Printf("Invalid REDIS_DB %q, using 0: %v", redisDBStr, err)
		redisDB = 0
	}

	ttlMinutesStr := getEnv("SESSION_TTL_MINUTES", "10080") // 7 days
	ttlMinutes, err := strconv.Atoi(ttlMinutesStr)
	if err != nil {
		log.Printf("Invalid SESSION_TTL_MINUTES %q, using 10080: %v", ttlMinutesStr, err)
		ttlMinutes = 10080
	}

	frontendURL := getEnv("FRONTEND_URL", "http://localhost:5173")

	return &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", "127.0.0.1:8080"),
		DatabasePath:    getEnv("DATABASE_PATH", "fluxgate.db"),
		FrontendURL:     frontendURL,
		AllowedOrigins:  splitOrigins(getEnv("ALLOWED_ORIGINS", frontendURL)),
		TogetherAPIKey:  getEnv("TOGETHER_API_KEY", ""),
		TogetherBaseURL: getEnv("TOGETHER_BASE_URL", "https://api.together.xyz"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         redisDB,
		SessionSecret:   getEnv("SESSION_SECRET", ""),
		SessionTTL:      time.Duration(ttlMinutes) * time.Minute,

		TwitterClientID:     getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret: getEnv("TWITTER_CLIENT_SECRET", ""),
		TwitterRedirectURL:  getEnv("TWITTER_REDIRECT_URL", "http://localhost:8080/twitter/auth/callback"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", frontendURL+"/coins?status=success"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", frontendURL+"/coins?status=cancelled"),

		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		PublicBucketURL: getEnv("PUBLIC_BUCKET_URL", ""),

		ModelCatalogPath: getEnv("MODEL_CATALOG_PATH", ""),
	}
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
