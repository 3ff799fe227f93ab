// Package config loads the router's configuration.
// Development reads env vars or CONFIG_FILE; production pulls the secret
// bundle from Secret Manager.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"order-router/internal/transport"
)

// Config holds all service configuration.
type Config struct {
	Port        string `json:"port"`
	Environment string `json:"environment"` // "development" or "production"
	LogLevel    string `json:"log_level"`

	// GCP settings, required in production.
	GCPProject string `json:"gcp_project"`
	SecretID   string `json:"secret_id"`

	// DashboardURL is where OAuth callbacks send users.
	DashboardURL string `json:"dashboard_url"`
	// PublicURL is this router's externally reachable base URL.
	PublicURL string `json:"public_url"`

	Secrets Secrets `json:"secrets"`

	AdapterTimeout       Duration `json:"adapter_timeout"`
	AdapterRateLimit     float64  `json:"adapter_rate_limit"`
	PlacementConcurrency int      `json:"placement_concurrency"`
	WebhookWorkers       int      `json:"webhook_workers"`
	WebhookQueueSize     int      `json:"webhook_queue_size"`
	TLSFingerprint       string   `json:"tls_fingerprint"`
}

// Secrets is the bundle stored as one JSON secret in production.
type Secrets struct {
	OAuthStateSecret string `json:"oauth_state_secret"`
	// DatabaseURL selects Postgres; empty keeps records in memory.
	DatabaseURL string `json:"database_url,omitempty"`
	// RedisURL selects Redis delivery dedup; empty keeps it in memory.
	RedisURL string `json:"redis_url,omitempty"`
}

// Duration decodes "30s"-style strings in CONFIG_FILE.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Defaults for unset tuning knobs.
const (
	DefaultAdapterTimeout       = 30 * time.Second
	DefaultPlacementConcurrency = 8
	DefaultWebhookWorkers       = 4
	DefaultWebhookQueueSize     = 256
)

// Load reads configuration from CONFIG_FILE when set, otherwise from env
// vars, with secrets from Secret Manager in production.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:           envOrDefault("PORT", "8080"),
		Environment:    envOrDefault("ENVIRONMENT", "development"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		GCPProject:     os.Getenv("GCP_PROJECT"),
		SecretID:       envOrDefault("SECRET_ID", "order-router"),
		DashboardURL:   os.Getenv("DASHBOARD_URL"),
		PublicURL:      os.Getenv("PUBLIC_URL"),
		TLSFingerprint: os.Getenv("TLS_FINGERPRINT"),
	}
	if err := cfg.loadTuningFromEnv(); err != nil {
		return nil, err
	}

	var err error
	if cfg.IsProduction() {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadSecretsFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading secrets: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration, secrets included, from JSON.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Port = withDefault(cfg.Port, "8080")
	cfg.Environment = withDefault(cfg.Environment, "development")
	cfg.LogLevel = withDefault(cfg.LogLevel, "info")

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromSecretManager fetches the secret bundle.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.SecretID)
	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}
	return c.parseSecrets(result.Payload.Data)
}

func (c *Config) parseSecrets(data []byte) error {
	if err := json.Unmarshal(data, &c.Secrets); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

func (c *Config) loadSecretsFromEnv() {
	c.Secrets = Secrets{
		OAuthStateSecret: os.Getenv("OAUTH_STATE_SECRET"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
	}
}

func (c *Config) loadTuningFromEnv() error {
	if v := os.Getenv("ADAPTER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing ADAPTER_TIMEOUT: %w", err)
		}
		c.AdapterTimeout = Duration(d)
	}
	if v := os.Getenv("ADAPTER_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing ADAPTER_RATE_LIMIT: %w", err)
		}
		c.AdapterRateLimit = f
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"PLACEMENT_CONCURRENCY", &c.PlacementConcurrency},
		{"WEBHOOK_WORKERS", &c.WebhookWorkers},
		{"WEBHOOK_QUEUE_SIZE", &c.WebhookQueueSize},
	}
	for _, in := range ints {
		v := os.Getenv(in.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", in.key, err)
		}
		*in.dst = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = Duration(DefaultAdapterTimeout)
	}
	if c.PlacementConcurrency <= 0 {
		c.PlacementConcurrency = DefaultPlacementConcurrency
	}
	if c.WebhookWorkers <= 0 {
		c.WebhookWorkers = DefaultWebhookWorkers
	}
	if c.WebhookQueueSize <= 0 {
		c.WebhookQueueSize = DefaultWebhookQueueSize
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://localhost:" + c.Port
	}
	c.PublicURL = strings.TrimSuffix(c.PublicURL, "/")
	c.DashboardURL = strings.TrimSuffix(c.DashboardURL, "/")
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Secrets.OAuthStateSecret == "" {
		return fmt.Errorf("oauth_state_secret is required")
	}
	if c.DashboardURL == "" {
		return fmt.Errorf("dashboard_url is required")
	}
	for name, raw := range map[string]string{"dashboard_url": c.DashboardURL, "public_url": c.PublicURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	if c.AdapterRateLimit < 0 {
		return fmt.Errorf("adapter_rate_limit must not be negative")
	}
	if _, err := transport.ParseFingerprint(c.TLSFingerprint); err != nil {
		return err
	}
	return nil
}

// IsProduction reports whether secrets come from Secret Manager.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RedirectURI is the OAuth callback URL registered with platforms.
func (c *Config) RedirectURI() string {
	return c.PublicURL + "/oauth/callback"
}

// Fingerprint returns the validated TLS fingerprint.
func (c *Config) Fingerprint() transport.Fingerprint {
	fp, _ := transport.ParseFingerprint(c.TLSFingerprint)
	return fp
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
