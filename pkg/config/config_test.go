package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", StoreMemory)
	t.Setenv("SECRET_BACKEND", SecretsNone)
	t.Setenv("API_PORT", "9091")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUTH_RATE_LIMIT", "0.5")
	t.Setenv("STORE_SEED_FILE", "fixtures.yaml")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9091, cfg.APIPort)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, 0.5, cfg.HTTP.AuthRateLimit)
	assert.Equal(t, "CIPHER_CRYPTO_KEY", cfg.Secrets.CipherKeyName)
	assert.Equal(t, "0.0.0.0:9091", cfg.Addr())
	assert.Equal(t, "fixtures.yaml", cfg.Store.SeedFile)
	assert.True(t, cfg.HTTP.TrustProxyHeaders)
}

func TestDefaultsDoNotTrustProxyHeaders(t *testing.T) {
	assert.False(t, Defaults().HTTP.TrustProxyHeaders)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "portal.yaml")
	content := `
api_port: 7000
store:
  backend: mongo
  mongo_uri: mongodb://db:27017
  mongo_database: fleets
  timeout: 3s
secrets:
  backend: none
  cipher_key_version: "1"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("API_PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.APIPort, "environment wins over file")
	assert.Equal(t, StoreMongo, cfg.Store.Backend)
	assert.Equal(t, "fleets", cfg.Store.MongoDatabase)
	assert.Equal(t, 3*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "1", cfg.Secrets.CipherKeyVersion)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults need gcp project", func(c *Config) {}, true},
		{"gcp with project", func(c *Config) { c.Secrets.GCPProjectID = "p" }, false},
		{"unknown store", func(c *Config) { c.Secrets.Backend = SecretsNone; c.Store.Backend = "sqlite" }, true},
		{"agefile without identity", func(c *Config) {
			c.Secrets.Backend = SecretsAgeFile
			c.Secrets.File = "secrets.age"
		}, true},
		{"firestore without project", func(c *Config) {
			c.Secrets.Backend = SecretsNone
			c.Store.Backend = StoreFirestore
		}, true},
		{"bad port", func(c *Config) { c.Secrets.Backend = SecretsNone; c.APIPort = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
