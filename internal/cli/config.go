package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/evcraddock/listings/internal/paragon"
)

// Config is the service configuration read from YAML, .env and the
// environment, in increasing order of precedence.
type Config struct {
	DevMode  bool           `yaml:"dev_mode"`
	Paragon  ParagonConfig  `yaml:"paragon"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
}

// ParagonConfig holds feed credentials and tuning.
type ParagonConfig struct {
	BaseURL            string        `yaml:"base_url"`
	TokenURL           string        `yaml:"token_url"`
	ClientID           string        `yaml:"client_id"`
	ClientSecret       string        `yaml:"client_secret"`
	LimitedMode        bool          `yaml:"limited_mode"`
	LimitedPageSize    int           `yaml:"limited_page_size"`
	PageSize           int           `yaml:"page_size"`
	MaxPages           int           `yaml:"max_pages"`
	MaxURLLength       int           `yaml:"max_url_length"`
	MediaConcurrency   int           `yaml:"media_concurrency"`
	GeocodeConcurrency int           `yaml:"geocode_concurrency"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	TokenTimeout       time.Duration `yaml:"token_timeout"`
	TokenLeeway        time.Duration `yaml:"token_leeway"`
	RetryMax           int           `yaml:"retry_max"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	AllowedZips        []string      `yaml:"allowed_zips"`
}

// CacheConfig selects where tokens and search responses are kept.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // sqlite, redis or memory
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig is used when the cache backend is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// GeocoderConfig enables coordinate enrichment and radius search.
type GeocoderConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

func defaultConfig() Config {
	return Config{
		Paragon: ParagonConfig{
			LimitedPageSize:    50,
			PageSize:           200,
			MaxPages:           100,
			MaxURLLength:       2048,
			MediaConcurrency:   8,
			GeocodeConcurrency: 4,
			RequestTimeout:     15 * time.Second,
			TokenTimeout:       10 * time.Second,
			TokenLeeway:        30 * time.Second,
			RetryMax:           2,
		},
		Cache:    CacheConfig{Backend: "sqlite", TTL: 5 * time.Minute},
		Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "listings:"},
		Geocoder: GeocoderConfig{Timeout: 5 * time.Second},
	}
}

// configPath returns the path to the config file.
func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "listings", "config.yaml"), nil
}

// loadConfig reads the config file, then .env, then the environment.
// A missing config or .env file is not an error.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	path, err := configPath()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	switch cfg.Cache.Backend {
	case "sqlite", "redis", "memory":
	default:
		return Config{}, fmt.Errorf("unknown cache backend %q (want sqlite, redis or memory)", cfg.Cache.Backend)
	}
	return cfg, nil
}

// applyEnv overrides cfg with any set environment variables.
func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a boolean", name, v)
		}
		*dst = b
		return nil
	}

	setString("PARAGON_BASE_URL", &cfg.Paragon.BaseURL)
	setString("PARAGON_TOKEN_URL", &cfg.Paragon.TokenURL)
	setString("PARAGON_CLIENT_ID", &cfg.Paragon.ClientID)
	setString("PARAGON_CLIENT_SECRET", &cfg.Paragon.ClientSecret)
	setString("LISTINGS_REDIS_ADDR", &cfg.Redis.Addr)
	setString("LISTINGS_GEOCODER_URL", &cfg.Geocoder.URL)
	setString("LISTINGS_CACHE_BACKEND", &cfg.Cache.Backend)

	if err := setBool("PARAGON_LIMITED_MODE", &cfg.Paragon.LimitedMode); err != nil {
		return err
	}
	if err := setBool("LISTINGS_DEV_MODE", &cfg.DevMode); err != nil {
		return err
	}

	if v := os.Getenv("PARAGON_ALLOWED_ZIPS"); v != "" {
		cfg.Paragon.AllowedZips = nil
		for _, z := range strings.Split(v, ",") {
			if z = strings.TrimSpace(z); z != "" {
				cfg.Paragon.AllowedZips = append(cfg.Paragon.AllowedZips, z)
			}
		}
	}
	return nil
}

// requireFeed reports missing feed credentials.
func (c Config) requireFeed() error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"paragon.base_url (PARAGON_BASE_URL)", c.Paragon.BaseURL},
		{"paragon.token_url (PARAGON_TOKEN_URL)", c.Paragon.TokenURL},
		{"paragon.client_id (PARAGON_CLIENT_ID)", c.Paragon.ClientID},
		{"paragon.client_secret (PARAGON_CLIENT_SECRET)", c.Paragon.ClientSecret},
	} {
		if f.v == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing feed configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// feedConfig converts the file layout into the client's settings.
func (c Config) feedConfig() paragon.Config {
	p := c.Paragon
	return paragon.Config{
		BaseURL:            p.BaseURL,
		TokenURL:           p.TokenURL,
		ClientID:           p.ClientID,
		ClientSecret:       p.ClientSecret,
		LimitedMode:        p.LimitedMode,
		LimitedPageSize:    p.LimitedPageSize,
		PageSize:           p.PageSize,
		MaxPages:           p.MaxPages,
		MaxURLLength:       p.MaxURLLength,
		MediaConcurrency:   p.MediaConcurrency,
		GeocodeConcurrency: p.GeocodeConcurrency,
		RequestTimeout:     p.RequestTimeout,
		TokenTimeout:       p.TokenTimeout,
		TokenLeeway:        p.TokenLeeway,
		RetryMax:           p.RetryMax,
		RequestsPerSecond:  p.RequestsPerSecond,
		AllowedPostalCodes: p.AllowedZips,
	}
}
