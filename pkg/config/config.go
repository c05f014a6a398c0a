// Package config provides environment-based configuration for the fleet portal.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StorePostgres  = "postgres"
	StoreMongo     = "mongo"
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Secret backends.
const (
	SecretsGCP     = "gcp"
	SecretsAgeFile = "agefile"
	SecretsNone    = "none"
)

// Config holds all configuration for the portal API.
type Config struct {
	// Server configuration
	APIHost         string        `yaml:"api_host"`
	APIPort         int           `yaml:"api_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Store     StoreConfig     `yaml:"store"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Functions FunctionsConfig `yaml:"functions"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Backend            string        `yaml:"backend"`
	DatabaseDSN        string        `yaml:"database_url"`
	MongoURI           string        `yaml:"mongo_uri"`
	MongoDatabase      string        `yaml:"mongo_database"`
	FirestoreProjectID string        `yaml:"firestore_project_id"`
	Timeout            time.Duration `yaml:"timeout"`
	// SeedFile is a fixtures file loaded into the store at startup.
	SeedFile           string        `yaml:"seed_file"`
}

// SecretsConfig configures the cipher key lookup.
type SecretsConfig struct {
	// CipherKeyName is the secret (and environment variable) holding the AES-256 key.
	CipherKeyName    string `yaml:"cipher_key_name"`
	CipherKeyVersion string `yaml:"cipher_key_version"`

	Backend         string        `yaml:"backend"`
	GCPProjectID    string        `yaml:"gcp_project_id"`
	CredentialsJSON string        `yaml:"-"`
	File            string        `yaml:"file"`
	AgeIdentity     string        `yaml:"-"`
	Timeout         time.Duration `yaml:"timeout"`
}

// FunctionsConfig configures the callable functions endpoint.
type FunctionsConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig holds edge behaviour of the API server.
type HTTPConfig struct {
	AuthRateLimit      float64  `yaml:"auth_rate_limit"`
	AuthRateBurst      int      `yaml:"auth_rate_burst"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders  bool     `yaml:"trust_proxy_headers"`
}

// Defaults returns a Config populated with development defaults.
func Defaults() *Config {
	return &Config{
		APIHost:         "0.0.0.0",
		APIPort:         8080,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
		Store: StoreConfig{
			Backend:       StorePostgres,
			DatabaseDSN:   "postgres://localhost:5432/fleet?sslmode=disable",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "fleet",
			Timeout:       5 * time.Second,
		},
		Secrets: SecretsConfig{
			CipherKeyName:    "CIPHER_CRYPTO_KEY",
			CipherKeyVersion: "latest",
			Backend:          SecretsGCP,
			Timeout:          5 * time.Second,
		},
		Functions: FunctionsConfig{
			Timeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			AuthRateLimit:      1,
			AuthRateBurst:      5,
			CORSAllowedOrigins: []string{"*"},
		},
	}
}

// Load reads configuration from a .env file (if present), an optional YAML
// file named by CONFIG_FILE, and environment variables, in increasing order
// of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays values from a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIHost = getEnv("API_HOST", c.APIHost)
	c.APIPort = getIntEnv("API_PORT", c.APIPort)
	c.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.DatabaseDSN = getEnv("DATABASE_URL", c.Store.DatabaseDSN)
	c.Store.MongoURI = getEnv("MONGO_URI", c.Store.MongoURI)
	c.Store.MongoDatabase = getEnv("MONGO_DATABASE", c.Store.MongoDatabase)
	c.Store.FirestoreProjectID = getEnv("FIRESTORE_PROJECT_ID", c.Store.FirestoreProjectID)
	c.Store.Timeout = getDurationEnv("STORE_TIMEOUT", c.Store.Timeout)
	c.Store.SeedFile = getEnv("STORE_SEED_FILE", c.Store.SeedFile)

	c.Secrets.CipherKeyName = getEnv("CIPHER_KEY_SECRET", c.Secrets.CipherKeyName)
	c.Secrets.CipherKeyVersion = getEnv("CIPHER_KEY_VERSION", c.Secrets.CipherKeyVersion)
	c.Secrets.Backend = getEnv("SECRET_BACKEND", c.Secrets.Backend)
	c.Secrets.GCPProjectID = getEnv("GOOGLE_CLOUD_PROJECT_ID", c.Secrets.GCPProjectID)
	c.Secrets.CredentialsJSON = getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", c.Secrets.CredentialsJSON)
	c.Secrets.File = getEnv("SECRETS_FILE", c.Secrets.File)
	c.Secrets.AgeIdentity = getEnv("SECRETS_AGE_IDENTITY", c.Secrets.AgeIdentity)
	c.Secrets.Timeout = getDurationEnv("SECRET_TIMEOUT", c.Secrets.Timeout)

	c.Functions.BaseURL = getEnv("FUNCTIONS_BASE_URL", c.Functions.BaseURL)
	c.Functions.Timeout = getDurationEnv("FUNCTIONS_TIMEOUT", c.Functions.Timeout)

	c.HTTP.AuthRateLimit = getFloatEnv("AUTH_RATE_LIMIT", c.HTTP.AuthRateLimit)
	c.HTTP.AuthRateBurst = getIntEnv("AUTH_RATE_BURST", c.HTTP.AuthRateBurst)
	c.HTTP.CORSAllowedOrigins = getListEnv("CORS_ALLOWED_ORIGINS", c.HTTP.CORSAllowedOrigins)
	c.HTTP.TrustProxyHeaders = getBoolEnv("TRUST_PROXY_HEADERS", c.HTTP.TrustProxyHeaders)
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StorePostgres:
		if c.Store.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return fmt.Errorf("MONGO_URI and MONGO_DATABASE are required for the mongo store")
		}
	case StoreFirestore:
		if c.Store.FirestoreProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Secrets.Backend {
	case SecretsGCP:
		if c.Secrets.GCPProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID is required for the gcp secret backend")
		}
	case SecretsAgeFile:
		if c.Secrets.File == "" || c.Secrets.AgeIdentity == "" {
			return fmt.Errorf("SECRETS_FILE and SECRETS_AGE_IDENTITY are required for the agefile secret backend")
		}
	case SecretsNone:
	default:
		return fmt.Errorf("unknown SECRET_BACKEND %q", c.Secrets.Backend)
	}

	if c.Secrets.CipherKeyName == "" {
		return fmt.Errorf("CIPHER_KEY_SECRET must not be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT %d is out of range", c.APIPort)
	}
	return nil
}

// Addr returns the host:port the API server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
