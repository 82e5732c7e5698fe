package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_KEYS", "k1=secret-one")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "k1", cfg.Auth.ActiveKeyID, "single key becomes active implicitly")
	assert.Empty(t, cfg.Redis.Addr, "redis is optional")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_KEYS", "k1=one,k2=two")
	t.Setenv("STOREFRONT_AUTH_ACTIVE_KID", "k2")
	t.Setenv("STOREFRONT_PORT", "9999")
	t.Setenv("STOREFRONT_AUTH_ACCESS_TTL", "5m")
	t.Setenv("STOREFRONT_DB_SSLMODE", "require")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, map[string]string{"k1": "one", "k2": "two"}, cfg.Auth.Keys)
	assert.Equal(t, "k2", cfg.Auth.ActiveKeyID)
}

func TestLoadRequiresKeys(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_KEYS", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresActiveKidWithMultipleKeys(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_KEYS", "k1=one,k2=two")
	t.Setenv("STOREFRONT_AUTH_ACTIVE_KID", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownActiveKid(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_KEYS", "k1=one")
	t.Setenv("STOREFRONT_AUTH_ACTIVE_KID", "missing")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsAccessTTLBeyondRefresh(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_KEYS", "k1=one")
	t.Setenv("STOREFRONT_AUTH_ACCESS_TTL", "48h")
	t.Setenv("STOREFRONT_AUTH_REFRESH_TTL", "24h")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5433, User: "app", Password: "pw", Database: "storefront", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5433 user=app password=pw dbname=storefront sslmode=disable", d.DSN())
}

func TestParseKeyring(t *testing.T) {
	keys := parseKeyring(" k1=one , k2=two ,, bad, =nokid, novalue= ")
	assert.Equal(t, map[string]string{"k1": "one", "k2": "two"}, keys)
}
