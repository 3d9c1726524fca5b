package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ORDERS_"

// Config holds export configuration.
type Config struct {
	Catalog     CatalogConfig `yaml:"catalog"`
	Session     SessionConfig `yaml:"session"`
	Timing      TimingConfig  `yaml:"timing"`
	State       StateConfig   `yaml:"state"`
	Output      OutputConfig  `yaml:"output"`
	Logging     LoggingConfig `yaml:"logging"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// CatalogConfig describes the order listing and how its pages are addressed.
type CatalogConfig struct {
	BaseURL         string `yaml:"base_url"`
	YearParam       string `yaml:"year_param"`
	YearValueFormat string `yaml:"year_value_format"`
	OffsetParam     string `yaml:"offset_param"`
	PageSize        int    `yaml:"page_size"`
	MaxPagesPerYear int    `yaml:"max_pages_per_year"`
	ProductName     string `yaml:"product_name"`
	DefaultCurrency string `yaml:"default_currency"`
}

// SessionConfig carries the signed-in browser session the export reuses.
type SessionConfig struct {
	Cookie           string `yaml:"cookie"`
	KeyringService   string `yaml:"keyring_service"`
	KeyringUser      string `yaml:"keyring_user"`
	UserAgent        string `yaml:"user_agent"`
	RespectRobotsTxt bool   `yaml:"respect_robots_txt"`
}

// TimingConfig holds pacing and timeouts.
type TimingConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
	DetailDelay time.Duration `yaml:"detail_delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StateConfig selects where the continuation record lives.
type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Slot    string `yaml:"slot"`
}

// OutputConfig selects where finished exports are delivered.
type OutputConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config enables upload to S3-compatible storage when Bucket is set.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, json or auto
}

// DefaultConfig returns defaults for the German storefront.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:         "https://www.amazon.de/your-orders/orders",
			YearParam:       "timeFilter",
			YearValueFormat: "year-%s",
			OffsetParam:     "startIndex",
			PageSize:        10,
			MaxPagesPerYear: 500,
			ProductName:     "amazon",
			DefaultCurrency: "EUR",
		},
		Session: SessionConfig{
			KeyringService: "go-scrape-orders",
			KeyringUser:    "session-cookie",
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		Timing: TimingConfig{
			SettleDelay: 1500 * time.Millisecond,
			DetailDelay: time.Second,
			Timeout:     30 * time.Second,
		},
		State: StateConfig{
			Backend: "file",
			Path:    defaultStateDir(),
			Slot:    "order-export",
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	var errs []error

	if c.Catalog.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base URL cannot be empty"))
	} else if parsed, err := url.Parse(c.Catalog.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid base URL: %w", err))
	} else if parsed.Host == "" {
		errs = append(errs, fmt.Errorf("base URL must include a host"))
	}
	if c.Catalog.YearParam == "" {
		errs = append(errs, fmt.Errorf("year parameter cannot be empty"))
	}
	if !strings.Contains(c.Catalog.YearValueFormat, "%s") {
		errs = append(errs, fmt.Errorf("year value format must contain %%s"))
	}
	if c.Catalog.OffsetParam == "" {
		errs = append(errs, fmt.Errorf("offset parameter cannot be empty"))
	}
	if c.Catalog.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive"))
	}
	if c.Catalog.MaxPagesPerYear <= 0 {
		errs = append(errs, fmt.Errorf("max pages per year must be positive"))
	}
	if c.Catalog.ProductName == "" {
		errs = append(errs, fmt.Errorf("product name cannot be empty"))
	}
	if c.Session.UserAgent == "" {
		errs = append(errs, fmt.Errorf("user agent cannot be empty"))
	}
	if c.Timing.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle delay cannot be negative"))
	}
	if c.Timing.DetailDelay < 0 {
		errs = append(errs, fmt.Errorf("detail delay cannot be negative"))
	}
	if c.Timing.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	switch c.State.Backend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("state backend must be file, sqlite, or memory"))
	}
	if c.State.Backend != "memory" && c.State.Path == "" {
		errs = append(errs, fmt.Errorf("state path cannot be empty"))
	}
	if c.State.Slot == "" {
		errs = append(errs, fmt.Errorf("state slot cannot be empty"))
	}
	if c.Output.S3.Bucket == "" && c.Output.Dir == "" {
		errs = append(errs, fmt.Errorf("output directory cannot be empty"))
	}
	if c.Output.S3.Bucket != "" && c.Output.S3.Endpoint == "" {
		errs = append(errs, fmt.Errorf("s3 endpoint is required when a bucket is set"))
	}

	return errors.Join(errs...)
}

// LoadFromFile overlays values from a YAML file. A missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overlays ORDERS_* environment variables.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"BASE_URL":         &c.Catalog.BaseURL,
		"PRODUCT_NAME":     &c.Catalog.ProductName,
		"DEFAULT_CURRENCY": &c.Catalog.DefaultCurrency,
		"COOKIE":           &c.Session.Cookie,
		"USER_AGENT":       &c.Session.UserAgent,
		"STATE_BACKEND":    &c.State.Backend,
		"STATE_PATH":       &c.State.Path,
		"STATE_SLOT":       &c.State.Slot,
		"OUTPUT_DIR":       &c.Output.Dir,
		"S3_ENDPOINT":      &c.Output.S3.Endpoint,
		"S3_ACCESS_KEY":    &c.Output.S3.AccessKey,
		"S3_SECRET_KEY":    &c.Output.S3.SecretKey,
		"S3_BUCKET":        &c.Output.S3.Bucket,
		"S3_PREFIX":        &c.Output.S3.Prefix,
		"LOG_LEVEL":        &c.Logging.Level,
		"LOG_FORMAT":       &c.Logging.Format,
		"METRICS_ADDR":     &c.MetricsAddr,
	}
	for key, dst := range strs {
		if value, ok := EnvString(EnvPrefix + key); ok {
			*dst = value
		}
	}

	var errs []error
	if value, ok, err := EnvInt(EnvPrefix + "PAGE_SIZE"); err != nil {
		errs = append(errs, err)
	} else if ok {
		c.Catalog.PageSize = value
	}
	durations := map[string]*time.Duration{
		"SETTLE_DELAY": &c.Timing.SettleDelay,
		"DETAIL_DELAY": &c.Timing.DetailDelay,
		"TIMEOUT":      &c.Timing.Timeout,
	}
	for key, dst := range durations {
		if value, ok := EnvString(EnvPrefix + key); ok {
			d, err := time.ParseDuration(value)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				continue
			}
			*dst = d
		}
	}
	if value, ok := EnvString(EnvPrefix + "S3_SECURE"); ok {
		c.Output.S3.Secure = strings.EqualFold(value, "true")
	}
	return errors.Join(errs...)
}

// Load builds the configuration from defaults, .env files, the YAML file and the environment.
// Flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".orderexport.env"))
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return cfg, nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

func findConfigFile() string {
	candidates := []string{"orderexport.yaml", "orderexport.yml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "orderexport", "config.yaml"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "orderexport")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "orderexport")
	}
	return filepath.Join(os.TempDir(), "orderexport")
}
