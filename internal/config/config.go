package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr         string
	LogLevel           string
	DBDriver           string
	DatabaseDSN        string
	JWTSecret          string
	JWTTTL             time.Duration
	CORSAllowedOrigins []string

	GuestStartingCredits      int
	RegisteredStartingCredits int
	GuestRecencyWindow        time.Duration

	AIProvider        string
	ReplicateAPIToken string
	ReplicateBaseURL  string
	KIEAPIKey         string
	KIEBaseURL        string
	GenerationTimeout time.Duration
	RequestTimeout    time.Duration
	MaxUploadBytes    int64

	StripeSecretKey          string
	StripeWebhookSecret      string
	StripeDefaultPriceID     string
	FrontendURL              string
	PaymentCurrency          string
	PaymentPriceMinorUnits   int
	PaymentCreditsPerPackage int
	PromoBonusCredits        int

	AdminUsername string
	AdminPassword string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const (
		defaultKIEBaseURL       = "https://api.kie.ai"
		defaultReplicateBaseURL = "https://api.replicate.com"
	)

	cfg := Config{
		ListenAddr:                getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		DBDriver:                  strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DatabaseDSN:               getEnv("DATABASE_DSN", os.Getenv("MYSQL_DSN")),
		JWTTTL:                    time.Hour * time.Duration(getInt("JWT_TTL_HOURS", 24*30)),
		CORSAllowedOrigins:        splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		GuestStartingCredits:      getInt("GUEST_STARTING_CREDITS", 10),
		RegisteredStartingCredits: getInt("REGISTERED_STARTING_CREDITS", 10),
		GuestRecencyWindow:        time.Hour * time.Duration(getInt("GUEST_RECENCY_HOURS", 24)),
		AIProvider:                strings.ToLower(getEnv("AI_PROVIDER", "replicate")),
		ReplicateBaseURL:          normalizeBaseURL(getEnv("REPLICATE_BASE_URL", defaultReplicateBaseURL), defaultReplicateBaseURL),
		KIEBaseURL:                normalizeKIEBaseURL(getEnv("KIE_BASE_URL", defaultKIEBaseURL), defaultKIEBaseURL),
		GenerationTimeout:         time.Second * time.Duration(getInt("GENERATION_TIMEOUT_SECONDS", 120)),
		RequestTimeout:            time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		MaxUploadBytes:            getInt64("MAX_UPLOAD_MB", 10) << 20,
		StripeDefaultPriceID:      getEnv("STRIPE_DEFAULT_PRICE_ID", ""),
		FrontendURL:               strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		PaymentCurrency:           strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		PaymentPriceMinorUnits:    getInt("PAYMENT_PRICE_MINOR_UNITS", 499),
		PaymentCreditsPerPackage:  getInt("PAYMENT_CREDITS_PER_PACKAGE", 100),
		PromoBonusCredits:         getInt("PROMO_BONUS_CREDITS", 20),
		AdminUsername:             getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:             getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:                getEnv("S3_ENDPOINT", ""),
		S3Region:                  os.Getenv("S3_REGION"),
		S3AccessKey:               os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:               os.Getenv("S3_SECRET_KEY"),
		S3Bucket:                  os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:           os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:            getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:                  getEnv("S3_PREFIX", "generations"),
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.ReplicateAPIToken = os.Getenv("REPLICATE_API_TOKEN")
	cfg.KIEAPIKey = os.Getenv("KIE_API_KEY")
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.DatabaseDSN == "" {
		missing = append(missing, "DATABASE_DSN")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch c.AIProvider {
	case "replicate":
		if c.ReplicateAPIToken == "" {
			missing = append(missing, "REPLICATE_API_TOKEN")
		}
	case "kie":
		if c.KIEAPIKey == "" {
			missing = append(missing, "KIE_API_KEY")
		}
	default:
		return fmt.Errorf("unsupported AI_PROVIDER: %s", c.AIProvider)
	}
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if c.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if c.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if c.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if c.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}
	return strings.TrimRight(parsed.String(), "/")
}

// normalizeKIEBaseURL ensures we always hit the documented API host. The root
// kie.ai domain serves HTML instead of JSON.
func normalizeKIEBaseURL(raw string, fallback string) string {
	normalized := normalizeBaseURL(raw, fallback)
	parsed, err := url.Parse(normalized)
	if err != nil {
		return fallback
	}
	if parsed.Host == "kie.ai" {
		parsed.Host = "api.kie.ai"
	}
	return parsed.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile overlays the first .env file found. Deployments that inject the
// environment directly have no file, which is fine.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
