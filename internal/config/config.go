// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Run() RunSettings
	Store() StoreConfig
	Metrics() MetricsConfig
	RunConfig() schemas.RunConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig        `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig       `mapstructure:"browser" yaml:"browser"`
	RunCfg     RunSettings         `mapstructure:"run" yaml:"run"`
	FilterCfg  ListingFilterConfig `mapstructure:"listing_filter" yaml:"listing_filter"`
	DelaysCfg  DelaysConfig        `mapstructure:"delays" yaml:"delays"`
	SiteCfg    schemas.SiteConfig  `mapstructure:"site" yaml:"site"`
	AuthCfg    AuthConfig          `mapstructure:"auth" yaml:"auth"`
	StoreCfg   StoreConfig         `mapstructure:"store" yaml:"store"`
	MetricsCfg MetricsConfig       `mapstructure:"metrics" yaml:"metrics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Run() RunSettings       { return c.RunCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }
func (c *Config) Metrics() MetricsConfig { return c.MetricsCfg }

// RunConfig assembles the immutable per-run configuration handed to the
// orchestrator. Nothing downstream reads the environment.
func (c *Config) RunConfig() schemas.RunConfig {
	return schemas.RunConfig{
		Mode: schemas.Mode(c.RunCfg.Mode),
		ListingFilter: schemas.ListingFilter{
			StatusIn:      append([]string(nil), c.FilterCfg.StatusIn...),
			TitleIncludes: append([]string(nil), c.FilterCfg.TitleIncludes...),
			MaxActions:    c.FilterCfg.MaxActions,
		},
		DelayRange: schemas.DelayRange{
			MinMs: c.DelaysCfg.MinMs,
			MaxMs: c.DelaysCfg.MaxMs,
		},
		SettleMs:           c.DelaysCfg.SettleMs,
		TimeoutMs:          c.RunCfg.TimeoutSec * 1000,
		Headless:           c.BrowserCfg.Headless,
		ManualLoginEnabled: c.ManualLoginEnabled(),
		AuthStrategy:       schemas.AuthStrategy(c.RunCfg.AuthStrategy),
		SubmitPreference:   schemas.SubmitPreference(c.AuthCfg.SubmitPreference),
		Credentials: schemas.Credentials{
			Email:    c.AuthCfg.Email,
			Password: c.AuthCfg.Password,
		},
		Site: c.SiteCfg,
	}
}

// ManualLoginEnabled reports whether the interactive login path is active. The
// toggle is ignored on hosted runs, where no human can reach the browser.
func (c *Config) ManualLoginEnabled() bool {
	return c.RunCfg.ManualLogin && !c.RunCfg.Hosted
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the single browser instance of a run.
type BrowserConfig struct {
	Headless   bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath   string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args       []string `mapstructure:"args" yaml:"args"`
	WindowW    int      `mapstructure:"window_width" yaml:"window_width"`
	WindowH    int      `mapstructure:"window_height" yaml:"window_height"`
	UserAgent  string   `mapstructure:"user_agent" yaml:"user_agent"`
	Debug      bool     `mapstructure:"debug" yaml:"debug"`
	NoSandbox  bool     `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	DisableGPU bool     `mapstructure:"disable_gpu" yaml:"disable_gpu"`
}

// RunSettings holds the top-level switches of a run.
type RunSettings struct {
	Mode         string `mapstructure:"mode" yaml:"mode"`
	TimeoutSec   int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	ManualLogin  bool   `mapstructure:"manual_login" yaml:"manual_login"`
	Hosted       bool   `mapstructure:"hosted" yaml:"hosted"`
	AuthStrategy string `mapstructure:"auth_strategy" yaml:"auth_strategy"`
}

// ListingFilterConfig selects which listing rows are eligible.
type ListingFilterConfig struct {
	StatusIn      []string `mapstructure:"status_in" yaml:"status_in"`
	TitleIncludes []string `mapstructure:"title_includes" yaml:"title_includes"`
	MaxActions    int      `mapstructure:"max_actions" yaml:"max_actions"`
}

// DelaysConfig holds pacing and settle intervals, in milliseconds.
type DelaysConfig struct {
	MinMs    int `mapstructure:"min_ms" yaml:"min_ms"`
	MaxMs    int `mapstructure:"max_ms" yaml:"max_ms"`
	SettleMs int `mapstructure:"settle_ms" yaml:"settle_ms"`
}

// AuthConfig holds the account credentials. They are never written back out.
type AuthConfig struct {
	Email            string `mapstructure:"email" yaml:"-"`
	Password         string `mapstructure:"password" yaml:"-"`
	SubmitPreference string `mapstructure:"submit_preference" yaml:"submit_preference"`
}

// Store backends.
const (
	StoreBackendFile     = "file"
	StoreBackendSQLite   = "sqlite"
	StoreBackendPostgres = "postgres"
)

// StoreConfig selects and configures the key-value store backend.
type StoreConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Dir       string `mapstructure:"dir" yaml:"dir"`
	Path      string `mapstructure:"path" yaml:"path"`
	DSN       string `mapstructure:"dsn" yaml:"-"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// MetricsConfig configures the optional Pushgateway export of run metrics.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// DefaultStatusIn is the set of listing statuses that can be renewed.
var DefaultStatusIn = []string{"active", "expired", "deleted"}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "relist-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.debug", false)

	// -- Run --
	v.SetDefault("run.mode", string(schemas.ModeDryRun))
	v.SetDefault("run.timeout_sec", 180)
	v.SetDefault("run.manual_login", false)
	v.SetDefault("run.hosted", false)
	v.SetDefault("run.auth_strategy", string(schemas.AuthCredentials))

	// -- Listing Filter --
	v.SetDefault("listing_filter.status_in", DefaultStatusIn)
	v.SetDefault("listing_filter.title_includes", []string{})
	v.SetDefault("listing_filter.max_actions", 5)

	// -- Delays --
	v.SetDefault("delays.min_ms", 300)
	v.SetDefault("delays.max_ms", 1200)
	v.SetDefault("delays.settle_ms", 1500)

	// -- Auth --
	v.SetDefault("auth.submit_preference", string(schemas.PreferSecond))

	// -- Site --
	setSiteDefaults(v)

	// -- Store --
	v.SetDefault("store.backend", StoreBackendFile)
	v.SetDefault("store.dir", "~/.relist-cli/store")
	v.SetDefault("store.path", "~/.relist-cli/relist.db")
	v.SetDefault("store.namespace", "default")

	// -- Metrics --
	v.SetDefault("metrics.job", "relist_cli")
}

// NewConfigFromViper creates a new, validated configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Decode builds a configuration from v without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets come from the environment. The CL_ names predate the RELIST_ prefix.
	_ = v.BindEnv("auth.email", "RELIST_EMAIL", "CL_EMAIL")
	_ = v.BindEnv("auth.password", "RELIST_PASSWORD", "CL_PASSWORD")
	_ = v.BindEnv("store.dsn", "RELIST_STORE_DSN", "DATABASE_URL")
	_ = v.BindEnv("run.manual_login", "RELIST_LOCAL_MANUAL_LOGIN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.StoreCfg.Dir, err = homedir.Expand(c.StoreCfg.Dir); err != nil {
		return fmt.Errorf("failed to expand store.dir: %w", err)
	}
	if c.StoreCfg.Path, err = homedir.Expand(c.StoreCfg.Path); err != nil {
		return fmt.Errorf("failed to expand store.path: %w", err)
	}
	if c.LoggerCfg.LogFile, err = homedir.Expand(c.LoggerCfg.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// Every failure is classified as a CONFIG_ERROR.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return schemas.NewRunError(schemas.ErrCodeConfig, err, "invalid configuration")
	}
	return nil
}

func (c *Config) validate() error {
	mode := schemas.Mode(c.RunCfg.Mode)
	if !mode.Valid() {
		return fmt.Errorf("run.mode %q is not supported (want %q or %q)", c.RunCfg.Mode, schemas.ModeDryRun, schemas.ModeRepost)
	}
	if c.RunCfg.TimeoutSec <= 0 {
		return fmt.Errorf("run.timeout_sec must be a positive integer")
	}
	if c.FilterCfg.MaxActions <= 0 {
		return fmt.Errorf("listing_filter.max_actions must be a positive integer")
	}
	if c.DelaysCfg.MinMs < 0 || c.DelaysCfg.MaxMs < 0 || c.DelaysCfg.SettleMs < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if c.DelaysCfg.MinMs > c.DelaysCfg.MaxMs {
		return fmt.Errorf("delays.min_ms (%d) must not exceed delays.max_ms (%d)", c.DelaysCfg.MinMs, c.DelaysCfg.MaxMs)
	}
	switch schemas.SubmitPreference(c.AuthCfg.SubmitPreference) {
	case schemas.PreferFirst, schemas.PreferSecond:
	default:
		return fmt.Errorf("auth.submit_preference %q must be %q or %q", c.AuthCfg.SubmitPreference, schemas.PreferSecond, schemas.PreferFirst)
	}

	if !c.ManualLoginEnabled() {
		switch schemas.AuthStrategy(c.RunCfg.AuthStrategy) {
		case schemas.AuthCredentials:
			if !(schemas.Credentials{Email: c.AuthCfg.Email, Password: c.AuthCfg.Password}).Present() {
				return fmt.Errorf("credential login requires RELIST_EMAIL and RELIST_PASSWORD")
			}
		case schemas.AuthCookies:
		default:
			return fmt.Errorf("run.auth_strategy %q must be %q or %q", c.RunCfg.AuthStrategy, schemas.AuthCredentials, schemas.AuthCookies)
		}
	}

	if c.SiteCfg.LoginURL == "" || c.SiteCfg.ListingsURL == "" {
		return fmt.Errorf("site.login_url and site.listings_url are required")
	}
	if c.SiteCfg.AuthenticatedMarker == "" || c.SiteCfg.ListingRows == "" || c.SiteCfg.RepostControl == "" {
		return fmt.Errorf("site.authenticated_marker, site.listing_rows and site.repost_control are required")
	}

	switch c.StoreCfg.Backend {
	case StoreBackendFile:
		if c.StoreCfg.Dir == "" {
			return fmt.Errorf("store.dir is required for the file backend")
		}
	case StoreBackendSQLite:
		if c.StoreCfg.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case StoreBackendPostgres:
		if c.StoreCfg.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.StoreCfg.Backend)
	}
	if strings.TrimSpace(c.StoreCfg.Namespace) == "" {
		return fmt.Errorf("store.namespace must not be empty")
	}
	return nil
}

// ConfigureViper applies the environment conventions shared by every command:
// RELIST_ prefix with dots mapped to underscores.
func ConfigureViper(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("RELIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Running on defaults and environment alone is fine.
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", cfgFile)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}
