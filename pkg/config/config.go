// Package config assembles legisync settings from, in increasing precedence,
// built-in defaults, an optional YAML file, the environment (a .env file
// included) and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/coolbeans/legisync/pkg/legifrance"
	"github.com/coolbeans/legisync/pkg/scrape"
)

// Environment variables read by Load.
const (
	EnvClientID     = "LEGIFRANCE_CLIENT_ID"
	EnvClientSecret = "LEGIFRANCE_CLIENT_SECRET"
	EnvEnvironment  = "LEGIFRANCE_ENV"
	EnvRegistry     = "LEGISYNC_REGISTRY"
	EnvHistoryDB    = "LEGISYNC_HISTORY_DB"
)

// DefaultRegistryPath is where the frontend reads the generated registry.
const DefaultRegistryPath = "frontend/src/legal/registry.generated.json"

// DefaultEnvFile is loaded when present and no other file is named.
const DefaultEnvFile = ".env"

// ClientSettings tunes the Légifrance API client.
type ClientSettings struct {
	TokenURL        string        `yaml:"token_url,omitempty"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	MaxRetries      int           `yaml:"max_retries,omitempty"`
	BackoffBase     time.Duration `yaml:"backoff_base,omitempty"`
	RequestInterval time.Duration `yaml:"request_interval,omitempty"`
	UserAgent       string        `yaml:"user_agent,omitempty"`
}

// ScraperSettings tunes the public website fallback.
type ScraperSettings struct {
	Disabled        bool          `yaml:"disabled,omitempty"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	RequestInterval time.Duration `yaml:"request_interval,omitempty"`
	UserAgent       string        `yaml:"user_agent,omitempty"`
}

// Config is the complete legisync configuration.
type Config struct {
	Environment  string          `yaml:"environment"`
	ClientID     string          `yaml:"client_id,omitempty"`
	ClientSecret string          `yaml:"client_secret,omitempty"`
	RegistryPath string          `yaml:"registry"`
	TrackedPath  string          `yaml:"tracked,omitempty"`
	HistoryDB    string          `yaml:"history_db,omitempty"`
	Client       ClientSettings  `yaml:"client"`
	Scraper      ScraperSettings `yaml:"scraper"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment:  string(legifrance.EnvironmentProduction),
		RegistryPath: DefaultRegistryPath,
		Client: ClientSettings{
			Timeout:         legifrance.DefaultTimeout,
			MaxRetries:      legifrance.DefaultMaxRetries,
			BackoffBase:     legifrance.DefaultBackoffBase,
			RequestInterval: legifrance.DefaultRequestInterval,
			UserAgent:       legifrance.DefaultUserAgent,
		},
		Scraper: ScraperSettings{
			BaseURL:         scrape.DefaultBaseURL,
			Timeout:         30 * time.Second,
			RequestInterval: legifrance.DefaultRequestInterval,
			UserAgent:       scrape.DefaultUserAgent,
		},
	}
}

// LoadOptions names the files Load reads.
type LoadOptions struct {
	// ConfigPath is an optional YAML file. A named file must exist.
	ConfigPath string

	// EnvFile is a dotenv file. Empty means DefaultEnvFile if it exists.
	EnvFile string
}

// Load reads the .env file, the YAML file and the environment. Variables
// already set in the process environment are never overridden by the .env file.
func Load(options LoadOptions) (*Config, error) {
	if err := loadEnvFile(options.EnvFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if options.ConfigPath != "" {
		if err := cfg.mergeFile(options.ConfigPath); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings with non-empty environment variables.
func (cfg *Config) ApplyEnv(getenv func(string) string) {
	if value := getenv(EnvClientID); value != "" {
		cfg.ClientID = value
	}
	if value := getenv(EnvClientSecret); value != "" {
		cfg.ClientSecret = value
	}
	if value := getenv(EnvEnvironment); value != "" {
		cfg.Environment = value
	}
	if value := getenv(EnvRegistry); value != "" {
		cfg.RegistryPath = value
	}
	if value := getenv(EnvHistoryDB); value != "" {
		cfg.HistoryDB = value
	}
}

// Overrides are command-line values. Empty strings and false leave the
// setting as loaded.
type Overrides struct {
	Environment  string
	RegistryPath string
	TrackedPath  string
	HistoryDB    string
	NoFallback   bool
}

// ApplyOverrides applies command-line values.
func (cfg *Config) ApplyOverrides(overrides Overrides) {
	if overrides.Environment != "" {
		cfg.Environment = overrides.Environment
	}
	if overrides.RegistryPath != "" {
		cfg.RegistryPath = overrides.RegistryPath
	}
	if overrides.TrackedPath != "" {
		cfg.TrackedPath = overrides.TrackedPath
	}
	if overrides.HistoryDB != "" {
		cfg.HistoryDB = overrides.HistoryDB
	}
	if overrides.NoFallback {
		cfg.Scraper.Disabled = true
	}
}

// Validate checks the configuration. Credentials are not required here: the
// client reports missing credentials when it first authenticates.
func (cfg *Config) Validate() error {
	if _, err := legifrance.ParseEnvironment(cfg.Environment); err != nil {
		return err
	}
	if cfg.RegistryPath == "" {
		return errors.New("registry path is required")
	}
	if cfg.Client.Timeout < 0 {
		return errors.New("client.timeout must not be negative")
	}
	if cfg.Client.MaxRetries < 1 {
		return fmt.Errorf("client.max_retries must be at least 1, got %d", cfg.Client.MaxRetries)
	}
	if cfg.Client.BackoffBase < 0 {
		return errors.New("client.backoff_base must not be negative")
	}
	if cfg.Client.RequestInterval < 0 {
		return errors.New("client.request_interval must not be negative")
	}
	if cfg.Scraper.Timeout < 0 || cfg.Scraper.RequestInterval < 0 {
		return errors.New("scraper durations must not be negative")
	}
	return nil
}

// HasCredentials reports whether both PISTE credentials are set.
func (cfg *Config) HasCredentials() bool {
	return cfg.ClientID != "" && cfg.ClientSecret != ""
}

// ClientConfig returns the API client configuration.
func (cfg *Config) ClientConfig(logger *zap.Logger) (legifrance.ClientConfig, error) {
	environment, err := legifrance.ParseEnvironment(cfg.Environment)
	if err != nil {
		return legifrance.ClientConfig{}, err
	}

	clientConfig := legifrance.DefaultClientConfig()
	clientConfig.Environment = environment
	clientConfig.TokenURL = cfg.Client.TokenURL
	clientConfig.BaseURL = cfg.Client.BaseURL
	clientConfig.ClientID = cfg.ClientID
	clientConfig.ClientSecret = cfg.ClientSecret
	clientConfig.Timeout = cfg.Client.Timeout
	clientConfig.MaxRetries = cfg.Client.MaxRetries
	clientConfig.BackoffBase = cfg.Client.BackoffBase
	clientConfig.RequestInterval = cfg.Client.RequestInterval
	if cfg.Client.UserAgent != "" {
		clientConfig.UserAgent = cfg.Client.UserAgent
	}
	clientConfig.Logger = logger
	return clientConfig, nil
}

// ScraperConfig returns the fallback scraper configuration.
func (cfg *Config) ScraperConfig(logger *zap.Logger) scrape.Config {
	return scrape.Config{
		BaseURL:         cfg.Scraper.BaseURL,
		Timeout:         cfg.Scraper.Timeout,
		RequestInterval: cfg.Scraper.RequestInterval,
		UserAgent:       cfg.Scraper.UserAgent,
		Logger:          logger,
	}
}
