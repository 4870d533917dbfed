package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubhouse/points-engine/config"
)

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_EmptyPath_ReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, time.Hour, cfg.TokenTTL.Std())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "club.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
db_path: "/var/lib/club/club.db"
jwt_secret: "prod-secret"
token_ttl: 30m
cors_origins:
  - "https://club.example"
admin:
  email: "boss@club.example"
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/var/lib/club/club.db", cfg.DBPath)
	assert.Equal(t, "prod-secret", cfg.JWTSecret)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL.Std())
	assert.Equal(t, []string{"https://club.example"}, cfg.CORSOrigins)
	assert.Equal(t, "boss@club.example", cfg.Admin.Email)
	// Unset fields keep their defaults
	assert.Equal(t, "Admin", cfg.Admin.Name)
}

func TestLoad_Malformed_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unclosed"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}
