package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr          string
	PublicBaseURL string

	// DatabaseURL selects the Postgres stores; empty keeps the in-memory
	// stores (tests, local development).
	DatabaseURL string

	// RedisURL enables the distributed token lock for multi-instance
	// deployments running on the in-memory stores.
	RedisURL string

	JWTSigningKey string

	// TokenTTL bounds review-link lifetime from issuance.
	TokenTTL time.Duration

	// AuditBuffer >0 switches the audit publisher to async mode.
	AuditBuffer int

	Minio MinioConfig
}

// MinioConfig holds object-store settings for decision attachments.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("WORKSIGN_ADDR", ":8080"),
		PublicBaseURL: envOr("WORKSIGN_PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   os.Getenv("WORKSIGN_DATABASE_URL"),
		RedisURL:      os.Getenv("WORKSIGN_REDIS_URL"),
		JWTSigningKey: envOr("WORKSIGN_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TokenTTL:      72 * time.Hour,
		Minio: MinioConfig{
			Endpoint:  os.Getenv("WORKSIGN_MINIO_ENDPOINT"),
			AccessKey: os.Getenv("WORKSIGN_MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("WORKSIGN_MINIO_SECRET_KEY"),
			Bucket:    envOr("WORKSIGN_MINIO_BUCKET", "worksign-attachments"),
			UseSSL:    os.Getenv("WORKSIGN_MINIO_USE_SSL") == "true",
		},
	}

	if ttl, err := time.ParseDuration(os.Getenv("WORKSIGN_TOKEN_TTL")); err == nil && ttl > 0 {
		cfg.TokenTTL = ttl
	}
	if n, err := strconv.Atoi(os.Getenv("WORKSIGN_AUDIT_BUFFER")); err == nil && n > 0 {
		cfg.AuditBuffer = n
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
