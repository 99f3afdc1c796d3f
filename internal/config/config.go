package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given, if it exists
const DefaultPath = "shelfwise.yaml"

// Config holds all runtime settings
type Config struct {
	Port    string        `yaml:"port"`
	Locale  string        `yaml:"locale"`
	Cover   CoverConfig   `yaml:"cover"`
	Storage StorageConfig `yaml:"storage"`
}

// CoverConfig selects the image provider
type CoverConfig struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	Temperature  float64       `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
	GeminiAPIKey string        `yaml:"-"`
	OpenAIAPIKey string        `yaml:"-"`
}

// StorageConfig selects where the collection snapshot lives
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Key           string `yaml:"key"`
	RedisAddr     string `yaml:"redisaddr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redisdb"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Port:   "8888",
		Locale: "en",
		Cover: CoverConfig{
			Provider: "gemini",
			Timeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   "file",
			Path:      "data",
			Key:       "shelfwise-books",
			RedisAddr: "localhost:6379",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file at DefaultPath is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	setString("PORT", &cfg.Port)
	setString("SHELFWISE_LOCALE", &cfg.Locale)
	setString("COVER_PROVIDER", &cfg.Cover.Provider)
	setString("COVER_MODEL", &cfg.Cover.Model)
	setString("GEMINI_API_KEY", &cfg.Cover.GeminiAPIKey)
	setString("OPENAI_API_KEY", &cfg.Cover.OpenAIAPIKey)
	setString("STORAGE_BACKEND", &cfg.Storage.Backend)
	setString("STORAGE_PATH", &cfg.Storage.Path)
	setString("STORAGE_KEY", &cfg.Storage.Key)
	setString("REDIS_ADDR", &cfg.Storage.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.Storage.RedisPassword)

	if v := os.Getenv("COVER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid COVER_TIMEOUT %q: %w", v, err)
		}
		cfg.Cover.Timeout = d
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.Storage.RedisDB = db
	}
	return nil
}
