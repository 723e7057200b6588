package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Scraper  ScraperConfig  `toml:"scraper"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Sync     SyncConfig     `toml:"sync"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains database connection settings.
//
// Driver is either "sqlite3" (DSN is a file path or ":memory:") or "pgx" (DSN is a postgres URL).
type DatabaseConfig struct {
	Driver       string `toml:"driver" validate:"oneof=sqlite3 pgx"`
	DSN          string `toml:"dsn" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `toml:"max_idle_conns" validate:"gte=0"`
}

// ScraperConfig controls the browser session and the pagination walk.
type ScraperConfig struct {
	BaseURL         string   `toml:"base_url" validate:"required,url"`
	BrowserBin      string   `toml:"browser_bin"`
	Headless        bool     `toml:"headless"`
	MaxPages        int      `toml:"max_pages" validate:"gte=1"`
	NavAttempts     int      `toml:"nav_attempts" validate:"gte=1"`
	NavTimeout      Duration `toml:"nav_timeout"`
	SelectorTimeout Duration `toml:"selector_timeout"`
	MinPageDelay    Duration `toml:"min_page_delay"`
	MaxPageDelay    Duration `toml:"max_page_delay"`
	ScrollSteps     int      `toml:"scroll_steps" validate:"gte=2"`
	ScrollStepPx    int      `toml:"scroll_step_px" validate:"gte=1"`
}

// CatalogConfig contains TMDB access settings.
type CatalogConfig struct {
	BaseURL           string   `toml:"base_url" validate:"required,url"`
	Token             string   `toml:"token"`
	Language          string   `toml:"language"`
	RequestsPerSecond float64  `toml:"requests_per_second" validate:"gt=0"`
	Timeout           Duration `toml:"timeout"`
	BreakerFailures   uint32   `toml:"breaker_failures" validate:"gte=1"`
}

// SyncConfig controls the freshness gate and provider post-processing.
type SyncConfig struct {
	FreshnessWindow  Duration `toml:"freshness_window"`
	ShortenProviders bool     `toml:"shorten_providers"`
}

// ServerConfig controls the HTTP API started by "lbx serve".
type ServerConfig struct {
	Addr              string   `toml:"addr" validate:"required,hostname_port"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout"`
	AllowedOrigin     string   `toml:"allowed_origin"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
}

// Duration wraps [time.Duration] so TOML strings like "15s" decode directly.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, string(text))
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of the embedded default config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides secrets and connection strings from the environment.
//
//   - TMDB_TOKEN sets catalog.token
//   - LBX_DATABASE_DSN sets database.dsn
func (c *Config) ApplyEnv() {
	if token := os.Getenv("TMDB_TOKEN"); token != "" {
		c.Catalog.Token = token
	}
	if dsn := os.Getenv("LBX_DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
}

// Validate checks the config against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Scraper.MaxPageDelay.Duration < c.Scraper.MinPageDelay.Duration {
		return fmt.Errorf("%w: scraper.max_page_delay is shorter than scraper.min_page_delay", ErrInvalidConfig)
	}
	return nil
}
