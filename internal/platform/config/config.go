package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr            string
	PostgresDSN     string
	RedisURL        string
	KafkaBrokers    []string
	AuditTopic      string
	JWTSigningKey   string
	ConsentCacheTTL time.Duration
	ShutdownTimeout time.Duration
}

// DownloadWindow is how long an export artifact stays downloadable after
// completion. Fixed at 24 hours by the compliance policy.
const DownloadWindow = 24 * time.Hour

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("CUSTODIA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	auditTopic := os.Getenv("CUSTODIA_AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "custodia.audit.v1"
	}

	var brokers []string
	if raw := os.Getenv("CUSTODIA_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	jwtSigningKey := os.Getenv("CUSTODIA_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	cacheTTL := 30 * time.Second
	if raw := os.Getenv("CUSTODIA_CONSENT_CACHE_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cacheTTL = d
		}
	}

	return Server{
		Addr:            addr,
		PostgresDSN:     os.Getenv("CUSTODIA_POSTGRES_DSN"),
		RedisURL:        os.Getenv("CUSTODIA_REDIS_URL"),
		KafkaBrokers:    brokers,
		AuditTopic:      auditTopic,
		JWTSigningKey:   jwtSigningKey,
		ConsentCacheTTL: cacheTTL,
		ShutdownTimeout: 10 * time.Second,
	}
}

// RedisConfig tunes the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sane defaults for the given URL.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:          url,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
