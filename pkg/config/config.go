// Package config loads service configuration from STOREFRONT_* environment
// variables with sensible development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Roles    RolesConfig
	Audit    AuditConfig
	OTel     OTelConfig
}

// ServerConfig configures the HTTP listeners
type ServerConfig struct {
	Host            string
	Port            int
	MetricsPort     int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the postgres connection pool
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// RedisConfig configures the permission-set cache backend. Empty Addr
// disables the shared cache layer; the in-process LRU still applies.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig configures token issuance. Keys maps kid to HMAC secret; the
// active kid signs new tokens while the rest remain valid for verification
// during rotation.
type AuthConfig struct {
	Issuer      string
	Keys        map[string]string
	ActiveKeyID string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	PurgeGrace  time.Duration
	CacheTTL    time.Duration
	CacheL1Size int
}

// RolesConfig points at the optional role-to-permission override file
type RolesConfig struct {
	FilePath string
	Watch    bool
}

// AuditConfig controls audit trail retention
type AuditConfig struct {
	Retention time.Duration
}

// OTelConfig configures trace export
type OTelConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Insecure       bool
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("STOREFRONT_HOST", "0.0.0.0"),
			Port:            getEnvInt("STOREFRONT_PORT", 8080),
			MetricsPort:     getEnvInt("STOREFRONT_METRICS_PORT", 9090),
			ReadTimeout:     getEnvDuration("STOREFRONT_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("STOREFRONT_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("STOREFRONT_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("STOREFRONT_DB_HOST", "localhost"),
			Port:            getEnvInt("STOREFRONT_DB_PORT", 5432),
			User:            getEnv("STOREFRONT_DB_USER", "storefront"),
			Password:        getEnv("STOREFRONT_DB_PASSWORD", "storefront"),
			Database:        getEnv("STOREFRONT_DB_NAME", "storefront"),
			SSLMode:         getEnv("STOREFRONT_DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("STOREFRONT_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("STOREFRONT_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("STOREFRONT_DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("STOREFRONT_REDIS_ADDR", ""),
			Password: getEnv("STOREFRONT_REDIS_PASSWORD", ""),
			DB:       getEnvInt("STOREFRONT_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Issuer:      getEnv("STOREFRONT_AUTH_ISSUER", "storefront"),
			Keys:        parseKeyring(getEnv("STOREFRONT_AUTH_KEYS", "")),
			ActiveKeyID: getEnv("STOREFRONT_AUTH_ACTIVE_KID", ""),
			AccessTTL:   getEnvDuration("STOREFRONT_AUTH_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:  getEnvDuration("STOREFRONT_AUTH_REFRESH_TTL", 30*24*time.Hour),
			PurgeGrace:  getEnvDuration("STOREFRONT_AUTH_PURGE_GRACE", 7*24*time.Hour),
			CacheTTL:    getEnvDuration("STOREFRONT_AUTH_CACHE_TTL", 30*time.Second),
			CacheL1Size: getEnvInt("STOREFRONT_AUTH_CACHE_L1_SIZE", 4096),
		},
		Roles: RolesConfig{
			FilePath: getEnv("STOREFRONT_ROLES_FILE", ""),
			Watch:    getEnvBool("STOREFRONT_ROLES_WATCH", true),
		},
		Audit: AuditConfig{
			Retention: getEnvDuration("STOREFRONT_AUDIT_RETENTION", 90*24*time.Hour),
		},
		OTel: OTelConfig{
			Enabled:        getEnvBool("STOREFRONT_OTEL_ENABLED", false),
			Endpoint:       getEnv("STOREFRONT_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("STOREFRONT_OTEL_SERVICE_NAME", "storefront"),
			ServiceVersion: getEnv("STOREFRONT_OTEL_SERVICE_VERSION", "dev"),
			Insecure:       getEnvBool("STOREFRONT_OTEL_INSECURE", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Auth.Keys) == 0 {
		return fmt.Errorf("STOREFRONT_AUTH_KEYS is required (format: kid1=secret1,kid2=secret2)")
	}
	if c.Auth.ActiveKeyID == "" {
		// Single-key deployments may omit the active kid.
		if len(c.Auth.Keys) == 1 {
			for kid := range c.Auth.Keys {
				c.Auth.ActiveKeyID = kid
			}
		} else {
			return fmt.Errorf("STOREFRONT_AUTH_ACTIVE_KID is required with multiple keys")
		}
	}
	if _, ok := c.Auth.Keys[c.Auth.ActiveKeyID]; !ok {
		return fmt.Errorf("active key id %q not present in STOREFRONT_AUTH_KEYS", c.Auth.ActiveKeyID)
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return fmt.Errorf("access TTL must be shorter than refresh TTL")
	}
	return nil
}

// parseKeyring parses "kid1=secret1,kid2=secret2"
func parseKeyring(raw string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kid, secret, ok := strings.Cut(pair, "=")
		if !ok || kid == "" || secret == "" {
			continue
		}
		keys[kid] = secret
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
