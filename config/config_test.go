package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.NotEmpty(t, cfg.Identity.Secret)
}

func TestDSNFromURL(t *testing.T) {
	db := DatabaseConfig{URL: "postgres://example:5432/app?sslmode=require"}
	require.Equal(t, "postgres://example:5432/app?sslmode=require", db.DSN())
}

func TestDSNFromParts(t *testing.T) {
	db := DatabaseConfig{
		Host: "db", Port: "5432", User: "app", Password: "pw", DBName: "roomsense", SSLMode: "disable",
	}
	require.Equal(t, "postgres://app:pw@db:5432/roomsense?sslmode=disable", db.DSN())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("REDIS_DB", "3")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9999", cfg.Server.Port)
	require.Equal(t, 3, cfg.Redis.DB)
}
