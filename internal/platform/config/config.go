package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "canopy/pkg/platform/strings"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean; dev defaults keep a bare `go run` working.
type Config struct {
	Addr string

	// FeeBps is the marketplace fee in basis points, charged to the buyer
	// on top of notional.
	FeeBps int64

	// CertSigningSecret keys the HMAC signature on issued certificates.
	CertSigningSecret string

	// JWTSigningKey verifies the substrate-issued bearer tokens that carry
	// the caller's account identifier.
	JWTSigningKey string

	// AdminAccounts and IssuerAccounts seed the capability registry.
	AdminAccounts  []string
	IssuerAccounts []string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// RedisConfig holds connection settings for the optional Redis-backed
// market statistics store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds the optional DSN for the durable domain-event store.
type PostgresConfig struct {
	URL string
}

// KafkaConfig holds the optional broker list for the domain-event sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:              getEnv("CANOPY_ADDR", ":8080"),
		FeeBps:            getEnvInt64("CANOPY_FEE_BPS", 250),
		CertSigningSecret: getEnv("CANOPY_CERT_SIGNING_SECRET", "dev-cert-secret-change-in-production"),
		JWTSigningKey:     getEnv("CANOPY_JWT_SIGNING_KEY", "dev-jwt-secret-change-in-production"),
		AdminAccounts:     splitList(os.Getenv("CANOPY_ADMIN_ACCOUNTS")),
		IssuerAccounts:    splitList(os.Getenv("CANOPY_ISSUER_ACCOUNTS")),
		Redis: RedisConfig{
			URL:          os.Getenv("CANOPY_REDIS_URL"),
			PoolSize:     int(getEnvInt64("CANOPY_REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(getEnvInt64("CANOPY_REDIS_MIN_IDLE_CONNS", 2)),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("CANOPY_POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("CANOPY_KAFKA_BROKERS")),
			Topic:   getEnv("CANOPY_KAFKA_TOPIC", "canopy.events"),
		},
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return platformstrings.DedupeAndTrim(strings.Split(v, ","))
}
