package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const DefaultPath = "config.yaml"

type Config struct {
	HTTP struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		RateLimit      float64       `yaml:"rate_limit"`
		RateBurst      int           `yaml:"rate_burst"`
	} `yaml:"http"`
	Dataset struct {
		Path     string `yaml:"path"`
		Encoding string `yaml:"encoding"`
	} `yaml:"dataset"`
	Artifacts struct {
		Dir   string `yaml:"dir"`
		Watch bool   `yaml:"watch"`
	} `yaml:"artifacts"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Cache struct {
		Size     int           `yaml:"size"`
		RedisURL string        `yaml:"redis_url"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Admin struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"admin"`
	Retrain struct {
		Schedule string `yaml:"schedule"`
		PlotPath string `yaml:"plot_path"`
	} `yaml:"retrain"`
	Alerts struct {
		WebhookURL   string        `yaml:"webhook_url"`
		SlackToken   string        `yaml:"slack_token"`
		SlackChannel string        `yaml:"slack_channel"`
		MinLevel     string        `yaml:"min_level"`
		MinR2        float64       `yaml:"min_r2"`
		MaxPerHour   int           `yaml:"max_per_hour"`
		Cooldown     time.Duration `yaml:"cooldown"`
	} `yaml:"alerts"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = 5000
	cfg.HTTP.Timeout = 15 * time.Second
	cfg.HTTP.AllowedOrigins = []string{"*"}
	cfg.HTTP.RateLimit = 20
	cfg.HTTP.RateBurst = 40
	cfg.Dataset.Path = "vadodara_house_price_dataset_new.csv"
	cfg.Artifacts.Dir = "artifacts"
	cfg.Artifacts.Watch = true
	cfg.Database.Path = "data/houseprice.db"
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 5
	cfg.Log.MaxAgeDays = 28
	cfg.Cache.Size = 1024
	cfg.Cache.TTL = time.Hour
	cfg.Alerts.MinLevel = "warning"
	cfg.Alerts.MaxPerHour = 10
	cfg.Alerts.Cooldown = 5 * time.Minute
	return cfg
}

// Load reads path over the defaults and applies environment overrides. A
// missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	explicit := true
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		path = env
	}
	if path == "" {
		path, explicit = DefaultPath, false
	}

	cfg := Default()
	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	overrides := []struct {
		env string
		dst *string
	}{
		{"DATASET_PATH", &c.Dataset.Path},
		{"ARTIFACT_DIR", &c.Artifacts.Dir},
		{"DB_PATH", &c.Database.Path},
		{"LOG_LEVEL", &c.Log.Level},
		{"ADMIN_JWT_SECRET", &c.Admin.JWTSecret},
		{"REDIS_URL", &c.Cache.RedisURL},
		{"RETRAIN_SCHEDULE", &c.Retrain.Schedule},
		{"ALERT_WEBHOOK_URL", &c.Alerts.WebhookURL},
		{"SLACK_BOT_TOKEN", &c.Alerts.SlackToken},
		{"SLACK_CHANNEL_ID", &c.Alerts.SlackChannel},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok {
			*o.dst = strings.TrimSpace(v)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Artifacts.Dir == "" {
		return errors.New("artifacts.dir is required")
	}
	if c.HTTP.RateLimit < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	switch c.Alerts.MinLevel {
	case "", "info", "warning", "error", "critical":
	default:
		return fmt.Errorf("alerts.min_level %q is not one of info, warning, error, critical", c.Alerts.MinLevel)
	}
	if c.Alerts.SlackToken != "" && c.Alerts.SlackChannel == "" {
		return errors.New("alerts.slack_channel is required with alerts.slack_token")
	}
	return nil
}
