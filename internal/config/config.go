// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override configuration keys.
// SCALPEL_HEAL_DATABASE_URL overrides database.url.
const EnvPrefix = "SCALPEL_HEAL"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Healing() HealingConfig
	Resolver() ResolverConfig
	Browser() BrowserConfig
	Telemetry() TelemetryConfig
	Database() DatabaseConfig

	// Healing Setters
	SetHealingMaxAttempts(int)
	SetHealingDefaultPage(string)
	SetHealingSkipMissingFields(bool)

	// Resolver Setters
	SetResolverTimeout(time.Duration)

	// Browser Setters
	SetBrowserHeadless(bool)

	// Telemetry Setters
	SetTelemetryEventLog(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	HealingCfg   HealingConfig   `mapstructure:"healing" yaml:"healing"`
	ResolverCfg  ResolverConfig  `mapstructure:"resolver" yaml:"resolver"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	TelemetryCfg TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Healing() HealingConfig     { return c.HealingCfg }
func (c *Config) Resolver() ResolverConfig   { return c.ResolverCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Telemetry() TelemetryConfig { return c.TelemetryCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetHealingMaxAttempts(n int)        { c.HealingCfg.MaxAttempts = n }
func (c *Config) SetHealingDefaultPage(p string)     { c.HealingCfg.DefaultPage = p }
func (c *Config) SetHealingSkipMissingFields(b bool) { c.HealingCfg.SkipMissingFields = b }
func (c *Config) SetResolverTimeout(d time.Duration) { c.ResolverCfg.Timeout = d }
func (c *Config) SetBrowserHeadless(b bool)          { c.BrowserCfg.Headless = b }
func (c *Config) SetTelemetryEventLog(p string)      { c.TelemetryCfg.EventLog = p }

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

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Route maps a navigation label or form field name to a selector.
// Routes are lists rather than maps because viper lower-cases map keys.
type Route struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Selector string `mapstructure:"selector" yaml:"selector"`
}

// HealingConfig tunes the self-healing orchestrator.
type HealingConfig struct {
	MaxAttempts         int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	DefaultPage         string  `mapstructure:"default_page" yaml:"default_page"`
	TestIDAttribute     string  `mapstructure:"test_id_attribute" yaml:"test_id_attribute"`
	// Navigation and Fields replace the built-in maps when non-empty.
	Navigation        []Route `mapstructure:"navigation" yaml:"navigation"`
	Fields            []Route `mapstructure:"fields" yaml:"fields"`
	SkipMissingFields bool    `mapstructure:"skip_missing_fields" yaml:"skip_missing_fields"`
}

// NavigationMap returns the navigation routes keyed by label, or nil when none are configured.
func (h HealingConfig) NavigationMap() map[string]string { return routeMap(h.Navigation) }

// FieldMap returns the field routes keyed by field name, or nil when none are configured.
func (h HealingConfig) FieldMap() map[string]string { return routeMap(h.Fields) }

func routeMap(routes []Route) map[string]string {
	if len(routes) == 0 {
		return nil
	}
	m := make(map[string]string, len(routes))
	for _, r := range routes {
		m[r.Name] = r.Selector
	}
	return m
}

// ResolverConfig tunes the element resolver.
type ResolverConfig struct {
	// Timeout bounds each individual document query.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BrowserConfig holds settings for the headless browser used against live pages.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug             bool           `mapstructure:"debug" yaml:"debug"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// TelemetryConfig configures where healing events are delivered.
type TelemetryConfig struct {
	// EventLog is the JSON lines file receiving every event. Empty disables it.
	EventLog   string `mapstructure:"event_log" yaml:"event_log"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	// BufferSize is the per-subscriber channel capacity of the telemetry bus.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// DatabaseConfig holds the connection string for PostgreSQL persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// MinPatternConfidence is the floor for learned patterns loaded at startup.
	MinPatternConfidence float64 `mapstructure:"min_pattern_confidence" yaml:"min_pattern_confidence"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-heal")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Healing --
	v.SetDefault("healing.max_attempts", 5)
	v.SetDefault("healing.confidence_threshold", 0.8)
	v.SetDefault("healing.default_page", "unknown")
	v.SetDefault("healing.test_id_attribute", "data-testid")
	v.SetDefault("healing.skip_missing_fields", false)

	// -- Resolver --
	v.SetDefault("resolver.timeout", "10s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "500ms")
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})

	// -- Telemetry --
	v.SetDefault("telemetry.event_log", "")
	v.SetDefault("telemetry.max_size", 50)
	v.SetDefault("telemetry.max_backups", 3)
	v.SetDefault("telemetry.max_age", 14)
	v.SetDefault("telemetry.compress", false)
	v.SetDefault("telemetry.buffer_size", 256)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.min_pattern_confidence", 0.5)
}

// BindEnv wires SCALPEL_HEAL_* environment variables into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	BindEnv(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPath resolves a leading ~ in a file path.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	return expanded, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.LoggerCfg.LogFile, err = ExpandPath(c.LoggerCfg.LogFile); err != nil {
		return err
	}
	if c.TelemetryCfg.EventLog, err = ExpandPath(c.TelemetryCfg.EventLog); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.HealingCfg.Validate(); err != nil {
		return fmt.Errorf("healing configuration invalid: %w", err)
	}
	if c.ResolverCfg.Timeout <= 0 {
		return fmt.Errorf("resolver.timeout must be a positive duration")
	}
	if c.BrowserCfg.NavigationTimeout < 0 || c.BrowserCfg.PostLoadWait < 0 {
		return fmt.Errorf("browser timeouts must not be negative")
	}
	if c.TelemetryCfg.BufferSize <= 0 {
		return fmt.Errorf("telemetry.buffer_size must be a positive integer")
	}
	if c.DatabaseCfg.MinPatternConfidence < 0.0 || c.DatabaseCfg.MinPatternConfidence > 1.0 {
		return fmt.Errorf("database.min_pattern_confidence must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the healing configuration.
func (h *HealingConfig) Validate() error {
	if h.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if h.ConfidenceThreshold <= 0.0 || h.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("confidence_threshold must be in (0.0, 1.0]")
	}
	if strings.TrimSpace(h.TestIDAttribute) == "" {
		return fmt.Errorf("test_id_attribute is required")
	}
	if err := validateRoutes("navigation", h.Navigation); err != nil {
		return err
	}
	return validateRoutes("fields", h.Fields)
}

func validateRoutes(section string, routes []Route) error {
	seen := make(map[string]bool, len(routes))
	for i, r := range routes {
		if r.Name == "" || r.Selector == "" {
			return fmt.Errorf("%s[%d] needs both a name and a selector", section, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("%s has duplicate entry %q", section, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
