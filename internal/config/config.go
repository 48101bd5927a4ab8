// Package config loads service settings from .env, an optional YAML file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/monocle-dev/crons/internal/types"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string   `yaml:"port"`
	Env            string   `yaml:"env"`
	LogLevel       string   `yaml:"log_level"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Database DatabaseConfig `yaml:"database"`
	CheckIns CheckInsConfig `yaml:"checkins"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type CheckInsConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	// Host and scheme used when rendering project key DSNs.
	DSNHost   string `yaml:"dsn_host"`
	DSNScheme string `yaml:"dsn_scheme"`
}

type SweeperConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

func Default() Config {
	return Config{
		Port:     "3000",
		Env:      "production",
		LogLevel: "info",
		Database: DatabaseConfig{Driver: "postgres"},
		CheckIns: CheckInsConfig{
			DefaultPageSize: 100,
			MaxPageSize:     100,
			DSNHost:         "localhost:3000",
			DSNScheme:       "https",
		},
		Sweeper: SweeperConfig{
			Interval:  time.Minute,
			BatchSize: 1000,
		},
	}
}

// Load reads .env (if present), the YAML file named by MONOCLE_CONFIG (if
// set) and then environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("MONOCLE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.Env, "APP_ENV")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.CheckIns.DSNHost, "DSN_HOST")
	setString(&c.CheckIns.DSNScheme, "DSN_SCHEME")

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = types.SplitList(origins)
	}
	if clientURL := os.Getenv("CLIENT_URL"); clientURL != "" {
		c.AllowedOrigins = append(c.AllowedOrigins, clientURL)
	}

	for name, dst := range map[string]*int{
		"CHECKINS_DEFAULT_PAGE_SIZE": &c.CheckIns.DefaultPageSize,
		"CHECKINS_MAX_PAGE_SIZE":     &c.CheckIns.MaxPageSize,
		"SWEEP_BATCH_SIZE":           &c.Sweeper.BatchSize,
	} {
		if err := setInt(dst, name); err != nil {
			return err
		}
	}

	if value := os.Getenv("SWEEP_INTERVAL"); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("SWEEP_INTERVAL: %w", err)
		}
		c.Sweeper.Interval = d
	}

	return nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.CheckIns.MaxPageSize <= 0 {
		errs = append(errs, errors.New("checkins max page size must be positive"))
	}
	if c.CheckIns.DefaultPageSize <= 0 || c.CheckIns.DefaultPageSize > c.CheckIns.MaxPageSize {
		errs = append(errs, fmt.Errorf("checkins default page size must be between 1 and %d", c.CheckIns.MaxPageSize))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("sweeper interval must be positive"))
	}
	if c.Sweeper.BatchSize <= 0 {
		errs = append(errs, errors.New("sweeper batch size must be positive"))
	}

	return errors.Join(errs...)
}

func setString(dst *string, name string) {
	if value := os.Getenv(name); value != "" {
		*dst = value
	}
}

func setInt(dst *int, name string) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	*dst = n
	return nil
}
