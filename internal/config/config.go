package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
	} `yaml:"telegram"`

	Google struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsPath string `yaml:"credentials_path"`
	} `yaml:"google"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		LockTTLSeconds      int    `yaml:"lock_ttl_seconds"`
		SlotDurationMinutes int    `yaml:"slot_duration_minutes"`
		CheckoutBaseURL     string `yaml:"checkout_base_url"`
	} `yaml:"booking"`

	Calendar struct {
		RefreshSchedule  string `yaml:"refresh_schedule"`
		RefreshHorizonHr int    `yaml:"refresh_horizon_hours"`
	} `yaml:"calendar"`

	Audit struct {
		RetentionDays int    `yaml:"retention_days"`
		ArchiveDir    string `yaml:"archive_dir"`
		ExportOnStart bool   `yaml:"export_on_start"`
	} `yaml:"audit"`

	Notifications struct {
		MaxConcurrent  int `yaml:"max_concurrent"`
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"notifications"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}
	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	if cfg.Monitoring.PrometheusPort == 0 {
		cfg.Monitoring.PrometheusPort = 9091
	}
	if cfg.Booking.LockTTLSeconds <= 0 {
		cfg.Booking.LockTTLSeconds = 10
	}
	if cfg.Booking.SlotDurationMinutes <= 0 {
		cfg.Booking.SlotDurationMinutes = 30
	}
	if cfg.Calendar.RefreshSchedule == "" {
		cfg.Calendar.RefreshSchedule = "@every 10m"
	}
	if cfg.Calendar.RefreshHorizonHr <= 0 {
		cfg.Calendar.RefreshHorizonHr = 24 * 7
	}

	return &cfg, nil
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Booking.LockTTLSeconds) * time.Second
}

func (c *Config) RefreshHorizon() time.Duration {
	return time.Duration(c.Calendar.RefreshHorizonHr) * time.Hour
}

func (c *Config) NotificationTimeout() time.Duration {
	if c.Notifications.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Notifications.TimeoutSeconds) * time.Second
}
