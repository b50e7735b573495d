package config

import (
	"fmt"
	"time"
)

// Config is the complete regsync configuration.
type Config struct {
	Registry  RegistryConfig   `mapstructure:"registry"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Sync      SyncConfig       `mapstructure:"sync"`
	Notify    NotifyConfig     `mapstructure:"notify"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// RegistryConfig points at the asset registry the engine mutates.
type RegistryConfig struct {
	URL             string        `mapstructure:"url"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	AccessKeySecret string        `mapstructure:"access_key_secret"`
	OrgID           string        `mapstructure:"org_id"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ProviderConfig describes one cloud provider account to collect from.
type ProviderConfig struct {
	Type     string   `mapstructure:"type"`
	Name     string   `mapstructure:"name"`
	Enabled  bool     `mapstructure:"enabled"`
	Regions  []string `mapstructure:"regions"`
	DomainID string   `mapstructure:"domain_id"`

	// aws-style credentials
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Profile         string `mapstructure:"profile"`

	// gcp
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`

	// kubernetes
	Kubeconfig string `mapstructure:"kubeconfig"`
	Context    string `mapstructure:"context"`
}

// SyncConfig carries the run parameters consumed by the engine.
type SyncConfig struct {
	Whitelist    []string `mapstructure:"whitelist"`
	ProtectedIPs []string `mapstructure:"protected_ips"`
	NoDelete     bool     `mapstructure:"no_delete"`

	CollectWorkers int `mapstructure:"collect_workers"`
	ApplyWorkers   int `mapstructure:"apply_workers"`
	BatchSize      int `mapstructure:"batch_size"`

	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
}

// NotifyConfig configures the outbound webhook summary.
type NotifyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// LoggingConfig configures the logrus backend.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with sensible defaults. Values
// from file and environment are layered on top by Load.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			CollectWorkers:   4,
			ApplyWorkers:     4,
			BatchSize:        50,
			CacheTTL:         time.Hour,
			RetryMaxAttempts: 3,
			RetryInterval:    2 * time.Second,
			RunTimeout:       10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// EnabledProviders filters the configured providers down to enabled ones.
func (c *Config) EnabledProviders() []ProviderConfig {
	var enabled []ProviderConfig
	for _, p := range c.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// Validate checks the parts of the configuration the engine cannot run
// without.
func (c *Config) Validate() error {
	if c.Registry.URL == "" {
		return fmt.Errorf("registry.url is required")
	}
	for i, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("providers[%d].type is required", i)
		}
		if p.Name == "" {
			return fmt.Errorf("providers[%d].name is required", i)
		}
		if p.Enabled && p.Type != "kubernetes" && len(p.Regions) == 0 {
			return fmt.Errorf("providers[%d] (%s/%s): at least one region is required", i, p.Type, p.Name)
		}
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	return nil
}
