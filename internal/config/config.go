package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
)

// EnvPrefix is the prefix of every environment variable override,
// e.g. ARCHIVER_AUTH_USERNAME for auth.username
const EnvPrefix = "ARCHIVER"

// LedgerFile is the default ledger database name inside the output directory
const LedgerFile = "archive.db"

// Config represents the entire application configuration
type Config struct {
	Auth     AuthConfig     `mapstructure:"auth"`
	API      APIConfig      `mapstructure:"api"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Output   OutputConfig   `mapstructure:"output"`
	Document DocumentConfig `mapstructure:"document"`
	Render   RenderConfig   `mapstructure:"render"`
	Run      RunConfig      `mapstructure:"run"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AuthConfig contains the subscription account credentials
type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// APIConfig contains the remote service endpoints
type APIConfig struct {
	AuthURL         string `mapstructure:"auth_url"`
	BaseURL         string `mapstructure:"base_url"`
	RequestInterval string `mapstructure:"request_interval"`
}

// RetryConfig contains the retry policy of every remote request
type RetryConfig struct {
	MaxAttempts     int     `mapstructure:"max_attempts"`
	InitialInterval string  `mapstructure:"initial_interval"`
	Multiplier      float64 `mapstructure:"multiplier"`
	MaxInterval     string  `mapstructure:"max_interval"`
}

// OutputConfig contains the archive layout settings
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	IDsFile      string `mapstructure:"ids_file"`
	TemplateFile string `mapstructure:"template_file"`
	MinFreeMB    int    `mapstructure:"min_free_mb"`
}

// DocumentConfig contains the book assembly settings
type DocumentConfig struct {
	ImageBaseURL string `mapstructure:"image_base_url"`
}

// RenderConfig contains the PDF rendering settings.
// Margins are CSS pixels.
type RenderConfig struct {
	Timeout         string  `mapstructure:"timeout"`
	ChromePath      string  `mapstructure:"chrome_path"`
	MarginTop       float64 `mapstructure:"margin_top"`
	MarginBottom    float64 `mapstructure:"margin_bottom"`
	MarginLeft      float64 `mapstructure:"margin_left"`
	MarginRight     float64 `mapstructure:"margin_right"`
	PrintBackground bool    `mapstructure:"print_background"`
}

// RunConfig contains batch behaviour settings
type RunConfig struct {
	FailFast bool `mapstructure:"fail_fast"`
	Progress bool `mapstructure:"progress"`
}

// LedgerConfig contains the run ledger settings
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("api.auth_url", "https://services.packtpub.com")
	v.SetDefault("api.base_url", "https://subscription.packtpub.com")
	v.SetDefault("api.request_interval", "0s")
	v.SetDefault("retry.max_attempts", 50)
	v.SetDefault("retry.initial_interval", "1s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_interval", "10m")
	v.SetDefault("output.dir", "downloads")
	v.SetDefault("output.ids_file", "ids.json")
	v.SetDefault("output.template_file", "template.html")
	v.SetDefault("output.min_free_mb", 0)
	v.SetDefault("document.image_base_url", "https://static.packt-cdn.com/products")
	v.SetDefault("render.timeout", "5m")
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.margin_top", 30)
	v.SetDefault("render.margin_bottom", 30)
	v.SetDefault("render.margin_left", 20)
	v.SetDefault("render.margin_right", 20)
	v.SetDefault("render.print_background", true)
	v.SetDefault("run.fail_fast", false)
	v.SetDefault("run.progress", false)
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load builds the configuration from defaults, the optional YAML file at
// configPath, ARCHIVER_* environment variables and overrides, in increasing
// order of precedence. Override keys use the dotted form, e.g. "output.dir".
// Credentials are not checked; call Validate before logging in.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.ValidateSettings(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration including the credentials
func (c *Config) Validate() error {
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return &domain.ConfigError{Field: "auth", Err: domain.ErrMissingCredentials}
	}
	return c.ValidateSettings()
}

// ValidateSettings validates everything except the credentials
func (c *Config) ValidateSettings() error {
	if c.API.AuthURL == "" {
		return &domain.ConfigError{Field: "api.auth_url", Err: errors.New("is required")}
	}
	if c.API.BaseURL == "" {
		return &domain.ConfigError{Field: "api.base_url", Err: errors.New("is required")}
	}
	if c.Output.Dir == "" {
		return &domain.ConfigError{Field: "output.dir", Err: errors.New("is required")}
	}

	if c.Retry.MaxAttempts <= 0 {
		return &domain.ConfigError{Field: "retry.max_attempts", Err: errors.New("must be positive")}
	}
	if c.Retry.Multiplier < 1 {
		return &domain.ConfigError{Field: "retry.multiplier", Err: errors.New("must be at least 1")}
	}
	if c.Output.MinFreeMB < 0 {
		return &domain.ConfigError{Field: "output.min_free_mb", Err: errors.New("must not be negative")}
	}

	durations := map[string]string{
		"api.request_interval":   c.API.RequestInterval,
		"retry.initial_interval": c.Retry.InitialInterval,
		"retry.max_interval":     c.Retry.MaxInterval,
		"render.timeout":         c.Render.Timeout,
	}
	for field, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return &domain.ConfigError{Field: field, Err: err}
		}
		if d < 0 {
			return &domain.ConfigError{Field: field, Err: errors.New("must not be negative")}
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("invalid level %q", c.Logging.Level)}
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return &domain.ConfigError{Field: "logging.format", Err: fmt.Errorf("invalid format %q", c.Logging.Format)}
	}

	return nil
}

// GetRequestInterval returns the section detail spacing as time.Duration
func (c *APIConfig) GetRequestInterval() time.Duration {
	d, _ := time.ParseDuration(c.RequestInterval)
	return d
}

// GetInitialInterval returns the first retry delay as time.Duration
func (c *RetryConfig) GetInitialInterval() time.Duration {
	d, _ := time.ParseDuration(c.InitialInterval)
	if d == 0 {
		return time.Second
	}
	return d
}

// GetMaxInterval returns the retry delay cap as time.Duration
func (c *RetryConfig) GetMaxInterval() time.Duration {
	d, _ := time.ParseDuration(c.MaxInterval)
	if d == 0 {
		return 10 * time.Minute
	}
	return d
}

// GetTimeout returns the per-document render timeout as time.Duration
func (c *RenderConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 5 * time.Minute
	}
	return d
}

// GetMinFreeBytes returns the minimum free space of the output volume in bytes
func (c *OutputConfig) GetMinFreeBytes() uint64 {
	if c.MinFreeMB <= 0 {
		return 0
	}
	return uint64(c.MinFreeMB) * 1024 * 1024
}

// GetLedgerPath returns the ledger database path, defaulting to a file
// inside the output directory
func (c *Config) GetLedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.Output.Dir, LedgerFile)
}
