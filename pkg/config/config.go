// Package config reads server configuration from environment variables
// with safe defaults — no Viper, no config framework; this is one of
// the few concerns where the standard library is the right tool.
package config

import "os"

// Config holds everything a cmd/datumplan process needs to wire up the
// HTTP server, its backing store, and its observability/export sinks.
type Config struct {
	Port     string
	LogLevel string

	StoreDriver string // "sqlite" | "postgres"
	StoreDSN    string

	OTLPEndpoint string

	JWTPublicKeyPath string

	ExportS3Bucket string
	ExportS3Region string
	ExportS3Prefix string

	LedgerSigningKeyPath string

	AuditReplay bool

	ProfilesDir string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	storeDriver := os.Getenv("STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "sqlite"
	}

	storeDSN := os.Getenv("STORE_DSN")
	if storeDSN == "" {
		storeDSN = "file:datumplan.db?cache=shared"
	}

	otlpEndpoint := os.Getenv("OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	exportBucket := os.Getenv("EXPORT_S3_BUCKET")
	exportRegion := os.Getenv("EXPORT_S3_REGION")
	if exportRegion == "" {
		exportRegion = "us-east-1"
	}
	exportPrefix := os.Getenv("EXPORT_S3_PREFIX")

	profilesDir := os.Getenv("PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	return &Config{
		Port:                 port,
		LogLevel:             logLevel,
		StoreDriver:          storeDriver,
		StoreDSN:             storeDSN,
		OTLPEndpoint:         otlpEndpoint,
		JWTPublicKeyPath:     os.Getenv("JWT_PUBLIC_KEY_PATH"),
		ExportS3Bucket:       exportBucket,
		ExportS3Region:       exportRegion,
		ExportS3Prefix:       exportPrefix,
		LedgerSigningKeyPath: os.Getenv("LEDGER_SIGNING_KEY_PATH"),
		AuditReplay:          os.Getenv("AUDIT_REPLAY") == "true",
		ProfilesDir:          profilesDir,
	}
}
