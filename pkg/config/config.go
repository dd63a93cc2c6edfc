package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/samlbridge/pkg/observability"
	"github.com/platinummonkey/samlbridge/pkg/saml"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// SAML trust configuration
	SAML saml.Config

	// Token issuance configuration
	Token TokenConfig

	// App is the downstream application receiving minted tokens
	App AppConfig

	// Store configuration for the user store and replay cache
	Store StoreConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// TokenConfig holds token issuance settings
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// AppConfig holds downstream application settings
type AppConfig struct {
	RedirectURL  string
	CallbackPath string
}

// StoreConfig holds user store and replay cache settings
type StoreConfig struct {
	// Type selects the user store backend: "memory" or "postgres"
	Type        string
	PostgresURL string

	// RedisURL switches the replay cache from in-process to Redis
	RedisURL      string
	RedisPassword string
	RedisDB       int
	ReplayTTL     time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	samlCfg, err := loadSAMLConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		SAML:          samlCfg,
		Token:         loadTokenConfig(),
		App:           loadAppConfig(),
		Store:         loadStoreConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BRIDGE_HOST", "0.0.0.0"),
		Port:            getEnv("BRIDGE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("BRIDGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BRIDGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("BRIDGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BRIDGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("BRIDGE_HEALTH_PORT", "9090"),
	}
}

// loadSAMLConfig loads the IdP trust configuration from environment. The
// certificate may be inline PEM or a path to a PEM file.
func loadSAMLConfig() (saml.Config, error) {
	cert, err := loadCertificate(getEnv("SAML_IDP_CERT", ""))
	if err != nil {
		return saml.Config{}, err
	}

	entityID := getEnv("SAML_ENTITY_ID", "")
	return saml.Config{
		EntryPoint:     getEnv("SAML_ENTRYPOINT", ""),
		IdPIssuer:      getEnv("SAML_IDP_ISSUER", ""),
		EntityID:       entityID,
		CallbackURL:    getEnv("SAML_CALLBACK_URL", ""),
		IdPCertificate: cert,
		MetaAlias:      getEnv("SAML_META_ALIAS", ""),
		NameIDFormat:   getEnv("SAML_NAMEID_FORMAT", ""),
	}, nil
}

// loadCertificate accepts either inline PEM data or a filesystem path.
func loadCertificate(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if strings.Contains(value, "-----BEGIN") {
		return value, nil
	}

	data, err := os.ReadFile(value)
	if err != nil {
		return "", fmt.Errorf("failed to read IdP certificate from %s: %w", value, err)
	}
	return string(data), nil
}

// loadTokenConfig loads token issuance settings from environment
func loadTokenConfig() TokenConfig {
	return TokenConfig{
		Secret:   getEnv("JWT_SECRET", ""),
		Issuer:   getEnv("JWT_ISSUER", "samlbridge"),
		Audience: getEnv("JWT_AUDIENCE", ""),
		TTL:      getEnvDuration("TOKEN_TTL", time.Hour),
	}
}

// loadAppConfig loads downstream application settings from environment
func loadAppConfig() AppConfig {
	return AppConfig{
		RedirectURL:  getEnv("APP_REDIRECT_URL", ""),
		CallbackPath: getEnv("CALLBACK_PATH", "/"),
	}
}

// loadStoreConfig loads store configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Type:          getEnv("BRIDGE_STORE_TYPE", "memory"),
		PostgresURL:   getEnv("BRIDGE_POSTGRES_URL", ""),
		RedisURL:      getEnv("BRIDGE_REDIS_URL", ""),
		RedisPassword: getEnv("BRIDGE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("BRIDGE_REDIS_DB", 0),
		ReplayTTL:     getEnvDuration("BRIDGE_REPLAY_TTL", 10*time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("BRIDGE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("BRIDGE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("BRIDGE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("BRIDGE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("BRIDGE_OTEL_SERVICE_NAME", "samlbridge"),
		OTelServiceVersion: getEnv("BRIDGE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("BRIDGE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.SAML.EntryPoint == "" {
		return fmt.Errorf("SAML_ENTRYPOINT is required")
	}
	if c.SAML.EntityID == "" {
		return fmt.Errorf("SAML_ENTITY_ID is required")
	}
	if c.SAML.IdPCertificate == "" {
		return fmt.Errorf("SAML_IDP_CERT is required")
	}

	if c.Token.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	if c.App.RedirectURL == "" {
		return fmt.Errorf("APP_REDIRECT_URL is required")
	}

	switch c.Store.Type {
	case "memory":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory or postgres)", c.Store.Type)
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
