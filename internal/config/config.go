package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"chain-watchdog/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App            AppConfig              `mapstructure:"app"`
	Logging        logging.Config         `mapstructure:"logging"`
	Runtime        RuntimeConfig          `mapstructure:"runtime"`
	Chains         map[string]ChainConfig `mapstructure:"chains"`
	Oracle         OracleConfig           `mapstructure:"oracle"`
	Reconciliation ReconciliationConfig   `mapstructure:"reconciliation"`
	Risk           RiskConfig             `mapstructure:"risk"`
	Strategies     StrategiesConfig       `mapstructure:"strategies"`
	Database       DatabaseConfig         `mapstructure:"database"`
	Alerting       AlertingConfig         `mapstructure:"alerting"`
	Metrics        MetricsConfig          `mapstructure:"metrics"`
	Export         ExportConfig           `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for tick history.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig controls the status and metrics server.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// ValidationError carries every problem found while loading configuration.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "configuration invalid: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// sectionFiles is the split layout of a configuration directory.
var sectionFiles = []string{
	"risk.yaml",
	"runtime.yaml",
	"strategies.yaml",
	"chain.yaml",
	"oracle.yaml",
}

// optionalFiles may accompany the split layout.
var optionalFiles = []string{
	"watchdog.yaml",
}

// Load builds configuration from file or directory, environment, and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("WATCHDOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	errs := readConfig(v, path)
	errs = append(errs, missingKeys(v)...)

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		errs = append(errs, fmt.Errorf("unmarshal config: %w", err))
		return nil, &ValidationError{Errors: errs}
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper, path string) []error {
	if path == "" {
		if info, err := os.Stat("config"); err == nil && info.IsDir() {
			path = "config"
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
			if err := v.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					return []error{errors.New("no configuration found: pass --config or create ./config")}
				}
				return []error{fmt.Errorf("read config: %w", err)}
			}
			return nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return []error{fmt.Errorf("read config: %w", err)}
	}
	if !info.IsDir() {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return []error{fmt.Errorf("read config: %w", err)}
		}
		return nil
	}

	var errs []error
	for _, name := range sectionFiles {
		if err := mergeFile(v, filepath.Join(path, name)); err != nil {
			if os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("missing config file: %s", name))
				continue
			}
			errs = append(errs, fmt.Errorf("invalid YAML syntax in %s: %w", name, err))
		}
	}
	for _, name := range optionalFiles {
		if err := mergeFile(v, filepath.Join(path, name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("invalid YAML syntax in %s: %w", name, err))
		}
	}
	return errs
}

func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	v.SetConfigFile(path)
	return v.MergeInConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "watchdog")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("runtime.pause_after_failures", 3)
	v.SetDefault("runtime.halt_after_failures", 5)
	v.SetDefault("runtime.pause_recheck_ticks", 0)
	v.SetDefault("runtime.endpoint_policy", EndpointPolicyFirst)
	v.SetDefault("runtime.startup_delay_sec", 0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9102")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = false
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Chain looks up a chain definition by name, ignoring case.
func (c *Config) Chain(name string) (ChainConfig, bool) {
	if chain, ok := c.Chains[name]; ok {
		return chain, true
	}
	chain, ok := c.Chains[strings.ToLower(name)]
	return chain, ok
}
