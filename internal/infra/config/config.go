// internal/infra/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Remote store backends.
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

const (
	defaultConfigPath            = "~/.config/solare/config.toml"
	defaultLocalDir              = "~/.local/share/solare"
	defaultPort                  = "8080"
	defaultReadyTimeout          = 10 * time.Second
	defaultSessionLookupAttempts = 5
	defaultSessionLookupInterval = 200 * time.Millisecond
)

var ErrInvalidBackend = errors.New("config: backend must be firestore, postgres or memory")

// Config holds the storefront runtime settings.
// Precedence: defaults < TOML file < environment.
type Config struct {
	Backend string
	Port    string

	GCPProjectID             string
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	FirebaseProjectID        string

	DatabaseURL            string
	DatabasePassword       string
	DatabasePasswordSecret string // Secret Manager secret id; used when DatabasePassword is empty

	ImageBucket      string
	ImageSignerEmail string
	ImageURLTTL      time.Duration

	LocalStoreDir string
	AllowedOrigin string

	ReadyTimeout          time.Duration
	SessionLookupAttempts int
	SessionLookupInterval time.Duration
}

type fileConfig struct {
	Backend string `toml:"backend"`
	Port    string `toml:"port"`

	GCPProjectID             string `toml:"gcp_project_id"`
	FirestoreProjectID       string `toml:"firestore_project_id"`
	FirestoreCredentialsFile string `toml:"firestore_credentials_file"`
	FirebaseProjectID        string `toml:"firebase_project_id"`

	DatabaseURL            string `toml:"database_url"`
	DatabasePasswordSecret string `toml:"database_password_secret"`

	ImageBucket      string `toml:"image_bucket"`
	ImageSignerEmail string `toml:"image_signer_email"`
	ImageURLTTL      string `toml:"image_url_ttl"`

	LocalStoreDir string `toml:"local_store_dir"`
	AllowedOrigin string `toml:"allowed_origin"`

	ReadyTimeout          string `toml:"ready_timeout"`
	SessionLookupAttempts int    `toml:"session_lookup_attempts"`
	SessionLookupInterval string `toml:"session_lookup_interval"`
}

// Load reads the config file named by SOLARE_CONFIG (or the default path, which may be
// absent) and applies environment overrides.
func Load() (*Config, error) {
	path := getenvDefault("SOLARE_CONFIG", defaultConfigPath)
	explicit := strings.TrimSpace(os.Getenv("SOLARE_CONFIG")) != ""

	cfg := defaults()
	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch cfg.Backend {
	case BackendFirestore, BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("%w (got %q)", ErrInvalidBackend, cfg.Backend)
	}
	cfg.LocalStoreDir = mustExpand(cfg.LocalStoreDir)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Backend:               BackendMemory,
		Port:                  defaultPort,
		LocalStoreDir:         defaultLocalDir,
		ReadyTimeout:          defaultReadyTimeout,
		SessionLookupAttempts: defaultSessionLookupAttempts,
		SessionLookupInterval: defaultSessionLookupInterval,
	}
}

// applyFile merges non-empty keys. A missing file is an error only when named explicitly.
func (c *Config) applyFile(path string, explicit bool) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setString(&c.Backend, raw.Backend)
	setString(&c.Port, raw.Port)
	setString(&c.GCPProjectID, raw.GCPProjectID)
	setString(&c.FirestoreProjectID, raw.FirestoreProjectID)
	setString(&c.FirestoreCredentialsFile, raw.FirestoreCredentialsFile)
	setString(&c.FirebaseProjectID, raw.FirebaseProjectID)
	setString(&c.DatabaseURL, raw.DatabaseURL)
	setString(&c.DatabasePasswordSecret, raw.DatabasePasswordSecret)
	setString(&c.ImageBucket, raw.ImageBucket)
	setString(&c.ImageSignerEmail, raw.ImageSignerEmail)
	setString(&c.LocalStoreDir, raw.LocalStoreDir)
	setString(&c.AllowedOrigin, raw.AllowedOrigin)
	if raw.SessionLookupAttempts > 0 {
		c.SessionLookupAttempts = raw.SessionLookupAttempts
	}

	for _, d := range []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&c.ImageURLTTL, raw.ImageURLTTL, "image_url_ttl"},
		{&c.ReadyTimeout, raw.ReadyTimeout, "ready_timeout"},
		{&c.SessionLookupInterval, raw.SessionLookupInterval, "session_lookup_interval"},
	} {
		if err := setDuration(d.dst, d.raw); err != nil {
			return fmt.Errorf("parse config %s: %w", d.key, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Backend = getenvDefault("SOLARE_BACKEND", c.Backend)
	c.Port = getenvDefault("PORT", c.Port)

	c.GCPProjectID = getenvDefault("GCP_PROJECT_ID", c.GCPProjectID)
	c.GCPProjectID = getenvDefault("GOOGLE_CLOUD_PROJECT", c.GCPProjectID)
	c.FirestoreProjectID = getenvDefault("FIRESTORE_PROJECT_ID", c.FirestoreProjectID)
	c.FirestoreCredentialsFile = getenvDefault("FIRESTORE_CREDENTIALS_FILE", c.FirestoreCredentialsFile)
	c.FirestoreCredentialsFile = getenvDefault("GOOGLE_APPLICATION_CREDENTIALS", c.FirestoreCredentialsFile)
	c.FirebaseProjectID = getenvDefault("FIREBASE_PROJECT_ID", c.FirebaseProjectID)

	c.DatabaseURL = getenvDefault("DATABASE_URL", c.DatabaseURL)
	c.DatabasePassword = getenvDefault("DB_PASSWORD", c.DatabasePassword)
	c.DatabasePasswordSecret = getenvDefault("DB_PASSWORD_SECRET", c.DatabasePasswordSecret)

	c.ImageBucket = getenvDefault("GCS_BUCKET", c.ImageBucket)
	c.ImageSignerEmail = getenvDefault("GCS_SIGNER_EMAIL", c.ImageSignerEmail)

	c.LocalStoreDir = getenvDefault("SOLARE_LOCAL_DIR", c.LocalStoreDir)
	c.AllowedOrigin = getenvDefault("CORS_ALLOWED_ORIGIN", c.AllowedOrigin)

	if v := strings.TrimSpace(os.Getenv("SOLARE_SESSION_LOOKUP_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: SOLARE_SESSION_LOOKUP_ATTEMPTS must be a positive integer (got %q)", v)
		}
		c.SessionLookupAttempts = n
	}
	for key, dst := range map[string]*time.Duration{
		"GCS_SIGNED_URL_TTL":             &c.ImageURLTTL,
		"SOLARE_READY_TIMEOUT":           &c.ReadyTimeout,
		"SOLARE_SESSION_LOOKUP_INTERVAL": &c.SessionLookupInterval,
	} {
		if err := setDuration(dst, os.Getenv(key)); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	return nil
}

// GetFirestoreProjectID falls back to the GCP project.
func (c *Config) GetFirestoreProjectID() string {
	return firstNonEmpty(c.FirestoreProjectID, c.GCPProjectID)
}

func (c *Config) GetFirebaseProjectID() string {
	return firstNonEmpty(c.FirebaseProjectID, c.GCPProjectID, c.FirestoreProjectID)
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive (got %s)", v)
	}
	*dst = d
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
