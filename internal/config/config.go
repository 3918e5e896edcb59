package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig captures all tunable parameters for the dashboard API process.
// Values are loaded from the environment (and a .env file when present) with
// defaults that let the binary run locally against the in-memory store.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN         string
	RunMigrations bool

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers    []string
	KafkaAuditTopic string
	KafkaTripTopic  string

	JWTSecret string

	OSRMURL      string
	RouteTTL     time.Duration
	GeminiAPIKey string
	GeminiModel  string
	EmailAPIURL  string
	EmailAPIKey  string
	EmailFrom    string
	StripeAPIKey string

	MapTileURL     string
	MapAttribution string
	MapCenterLat   float64
	MapCenterLon   float64
	MapZoom        int

	MatchRadiusM   float64
	MatcherTopN    int
	ReindexEvery   time.Duration
	AllowedOrigins []string

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "trips_geo",
		KafkaAuditTopic: "ops-audit",
		KafkaTripTopic:  "trip-events",
		RouteTTL:        6 * time.Hour,
		GeminiModel:     "gemini-1.5-flash",
		EmailFrom:       "support@example.com",
		MapTileURL:      "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		MapAttribution:  "© OpenStreetMap contributors",
		MapCenterLat:    14.7167,
		MapCenterLon:    -17.4677,
		MapZoom:         7,
		MatchRadiusM:    15000,
		MatcherTopN:     10,
		ReindexEvery:    5 * time.Minute,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = firstNonEmpty(os.Getenv("PG_DSN"), os.Getenv("DATABASE_URL"))
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaAuditTopic, "KAFKA_AUDIT_TOPIC")
	setStringFromEnv(&cfg.KafkaTripTopic, "KAFKA_TRIP_TOPIC")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	setStringFromEnv(&cfg.OSRMURL, "OSRM_URL")
	setDurationFromEnv(&cfg.RouteTTL, "ROUTE_CACHE_TTL", &errs)
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	setStringFromEnv(&cfg.GeminiModel, "GEMINI_MODEL")
	setStringFromEnv(&cfg.EmailAPIURL, "EMAIL_API_URL")
	cfg.EmailAPIKey = os.Getenv("EMAIL_API_KEY")
	setStringFromEnv(&cfg.EmailFrom, "EMAIL_FROM")
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	setStringFromEnv(&cfg.MapTileURL, "MAP_TILE_URL")
	setStringFromEnv(&cfg.MapAttribution, "MAP_ATTRIBUTION")
	setFloatFromEnv(&cfg.MapCenterLat, "MAP_CENTER_LAT", &errs)
	setFloatFromEnv(&cfg.MapCenterLon, "MAP_CENTER_LON", &errs)
	setIntFromEnv(&cfg.MapZoom, "MAP_ZOOM", &errs)

	setFloatFromEnv(&cfg.MatchRadiusM, "MATCH_RADIUS_M", &errs)
	setIntFromEnv(&cfg.MatcherTopN, "MATCHER_TOP_N", &errs)
	setDurationFromEnv(&cfg.ReindexEvery, "MATCH_REINDEX_INTERVAL", &errs)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be set"))
	}
	if cfg.MatcherTopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_TOP_N must be > 0"))
	}
	if cfg.MatchRadiusM <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_RADIUS_M must be > 0"))
	}
	if cfg.MapZoom < 0 || cfg.MapZoom > 22 {
		errs = append(errs, fmt.Errorf("MAP_ZOOM must be within 0..22"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ConsumerConfig configures the trip-events consumer.
type ConsumerConfig struct {
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	MetricsAddr   string
	Attempts      int
	RetryDelay    time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	_ = godotenv.Load()

	cfg := ConsumerConfig{
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "trip-events",
		KafkaGroup:   "ride-ops-geo-indexer",
		RedisAddr:    "localhost:6379",
		RedisGeoKey:  "trips_geo",
		MetricsAddr:  ":2112",
		Attempts:     3,
		RetryDelay:   200 * time.Millisecond,
		LogLevel:     "info",
	}
	var errs []error

	if brokers := firstNonEmpty(os.Getenv("KAFKA_BROKERS"), os.Getenv("KAFKA_BROKER")); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TRIP_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setIntFromEnv(&cfg.Attempts, "CONSUMER_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "CONSUMER_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("CONSUMER_ATTEMPTS must be > 0"))
	}
	return cfg, errors.Join(errs...)
}
