package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opendvf/dvfload/internal/progress"
	"gopkg.in/yaml.v3"
)

// Config defines configuration for the dvfload CLI.
type Config struct {
	URLTemplate string      `yaml:"url_template"`
	StartYear   int         `yaml:"start_year"`
	EndYear     int         `yaml:"end_year"`
	Years       []int       `yaml:"years"`
	BatchSize   int         `yaml:"batch_size"`
	ByteRate    int64       `yaml:"byte_rate"`
	MetricsAddr string      `yaml:"metrics_addr"`
	Progress    bool        `yaml:"progress"`
	Force       bool        `yaml:"force"`
	Store       StoreConfig `yaml:"store"`
	Retry       RetryConfig `yaml:"retry"`
}

// StoreConfig defines the Postgres connection.
type StoreConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// RetryConfig defines retry behavior, shared by the fetcher and the sink.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		URLTemplate: "https://files.data.gouv.fr/geo-dvf/latest/csv/{year}/full.csv.gz",
		StartYear:   2020,
		EndYear:     2024,
		BatchSize:   10_000,
		Progress:    true,
		Store: StoreConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "dvf",
			SSLMode:  "disable",
		},
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string byte rate.
type yamlConfig struct {
	URLTemplate string          `yaml:"url_template"`
	StartYear   int             `yaml:"start_year"`
	EndYear     int             `yaml:"end_year"`
	Years       []int           `yaml:"years"`
	BatchSize   int             `yaml:"batch_size"`
	ByteRate    string          `yaml:"byte_rate"`
	MetricsAddr string          `yaml:"metrics_addr"`
	Progress    *bool           `yaml:"progress"`
	Force       bool            `yaml:"force"`
	Store       StoreConfig     `yaml:"store"`
	Retry       yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.URLTemplate != "" {
		cfg.URLTemplate = yc.URLTemplate
	}
	if yc.StartYear != 0 {
		cfg.StartYear = yc.StartYear
	}
	if yc.EndYear != 0 {
		cfg.EndYear = yc.EndYear
	}
	if len(yc.Years) != 0 {
		cfg.Years = yc.Years
	}
	if yc.BatchSize != 0 {
		cfg.BatchSize = yc.BatchSize
	}
	if yc.ByteRate != "" {
		rate, err := progress.ParseBytes(yc.ByteRate)
		if err != nil {
			return Config{}, fmt.Errorf("parse byte_rate: %w", err)
		}
		cfg.ByteRate = rate
	}
	if yc.MetricsAddr != "" {
		cfg.MetricsAddr = yc.MetricsAddr
	}
	if yc.Progress != nil {
		cfg.Progress = *yc.Progress
	}
	cfg.Force = yc.Force
	if yc.Store.Host != "" {
		cfg.Store.Host = yc.Store.Host
	}
	if yc.Store.Port != 0 {
		cfg.Store.Port = yc.Store.Port
	}
	if yc.Store.User != "" {
		cfg.Store.User = yc.Store.User
	}
	if yc.Store.Password != "" {
		cfg.Store.Password = yc.Store.Password
	}
	if yc.Store.Database != "" {
		cfg.Store.Database = yc.Store.Database
	}
	if yc.Store.SSLMode != "" {
		cfg.Store.SSLMode = yc.Store.SSLMode
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables. dvfload
// settings use the DVFLOAD_ prefix; the store connection also honors the
// conventional POSTGRES_* variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("DVFLOAD_URL_TEMPLATE"); v != "" {
		c.URLTemplate = v
	}
	if v := os.Getenv("DVFLOAD_START_YEAR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DVFLOAD_START_YEAR: %w", err)
		}
		c.StartYear = n
	}
	if v := os.Getenv("DVFLOAD_END_YEAR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DVFLOAD_END_YEAR: %w", err)
		}
		c.EndYear = n
	}
	if v := os.Getenv("DVFLOAD_YEARS"); v != "" {
		years, err := ParseYears(v)
		if err != nil {
			return fmt.Errorf("parse DVFLOAD_YEARS: %w", err)
		}
		c.Years = years
	}
	if v := os.Getenv("DVFLOAD_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DVFLOAD_BATCH_SIZE: %w", err)
		}
		c.BatchSize = n
	}
	if v := os.Getenv("DVFLOAD_BYTE_RATE"); v != "" {
		rate, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse DVFLOAD_BYTE_RATE: %w", err)
		}
		c.ByteRate = rate
	}
	if v := os.Getenv("DVFLOAD_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("DVFLOAD_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("DVFLOAD_FORCE"); v != "" {
		c.Force = v == "true" || v == "1"
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Store.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse POSTGRES_PORT: %w", err)
		}
		c.Store.Port = n
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		c.Store.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Store.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		c.Store.Database = v
	}
	if v := os.Getenv("POSTGRES_SSLMODE"); v != "" {
		c.Store.SSLMode = v
	}
	if v := os.Getenv("DVFLOAD_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DVFLOAD_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("DVFLOAD_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse DVFLOAD_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("DVFLOAD_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse DVFLOAD_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.URLTemplate == "" {
		return errors.New("config: url_template is required")
	}
	if !strings.Contains(c.URLTemplate, "{year}") {
		return errors.New("config: url_template must contain {year}")
	}
	if len(c.Years) == 0 && c.StartYear > c.EndYear {
		return errors.New("config: start_year must not exceed end_year")
	}
	if c.BatchSize <= 0 {
		return errors.New("config: batch_size must be positive")
	}
	if c.Store.Host == "" {
		return errors.New("config: store host is required")
	}
	if c.Store.Port <= 0 {
		return errors.New("config: store port must be positive")
	}
	if c.Store.User == "" {
		return errors.New("config: store user is required")
	}
	if c.Store.Database == "" {
		return errors.New("config: store database is required")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry attempts must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URLTemplate != "" {
		c.URLTemplate = override.URLTemplate
	}
	if override.StartYear != 0 {
		c.StartYear = override.StartYear
	}
	if override.EndYear != 0 {
		c.EndYear = override.EndYear
	}
	if len(override.Years) != 0 {
		c.Years = override.Years
	}
	if override.BatchSize != 0 {
		c.BatchSize = override.BatchSize
	}
	if override.ByteRate != 0 {
		c.ByteRate = override.ByteRate
	}
	if override.MetricsAddr != "" {
		c.MetricsAddr = override.MetricsAddr
	}
	if override.Force {
		c.Force = override.Force
	}
	if override.Store.Host != "" {
		c.Store.Host = override.Store.Host
	}
	if override.Store.Port != 0 {
		c.Store.Port = override.Store.Port
	}
	if override.Store.User != "" {
		c.Store.User = override.Store.User
	}
	if override.Store.Password != "" {
		c.Store.Password = override.Store.Password
	}
	if override.Store.Database != "" {
		c.Store.Database = override.Store.Database
	}
	if override.Store.SSLMode != "" {
		c.Store.SSLMode = override.Store.SSLMode
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}

// YearList returns the years to import: the explicit list when set,
// otherwise the start..end range, ascending.
func (c *Config) YearList() []int {
	if len(c.Years) != 0 {
		return c.Years
	}
	var years []int
	for y := c.StartYear; y <= c.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// DSN builds the Postgres connection string for the store.
func (c *StoreConfig) DSN() string {
	parts := []string{
		"host=" + c.Host,
		"port=" + strconv.Itoa(c.Port),
		"user=" + c.User,
		"dbname=" + c.Database,
	}
	if c.Password != "" {
		parts = append(parts, "password="+c.Password)
	}
	if c.SSLMode != "" {
		parts = append(parts, "sslmode="+c.SSLMode)
	}
	return strings.Join(parts, " ")
}

// ParseYears parses a comma-separated year list such as "2020,2021,2024".
func ParseYears(s string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		years = append(years, y)
	}
	if len(years) == 0 {
		return nil, errors.New("empty year list")
	}
	return years, nil
}
