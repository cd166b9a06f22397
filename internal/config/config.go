package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Address            string `yaml:"address"`
		AdminAPIKey        string `yaml:"admin_api_key"`
		RequestTimeoutSecs int    `yaml:"request_timeout_seconds"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
		RateLimitBurst     int    `yaml:"rate_limit_burst"`
		// TrustProxy takes the client address from X-Forwarded-For and
		// X-Real-IP. Enable it only behind a reverse proxy that sets them.
		TrustProxy         bool   `yaml:"trust_proxy"`
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		Timezone          string `yaml:"timezone"`
		MinAdvanceMinutes int    `yaml:"min_advance_minutes"`
		MaxAdvanceDays    int    `yaml:"max_advance_days"`
		MaxPeople         int    `yaml:"max_people"`
	} `yaml:"booking"`

	Telegram struct {
		Enabled       bool    `yaml:"enabled"`
		BotToken      string  `yaml:"bot_token"`
		OwnerChatIDs  []int64 `yaml:"owner_chat_ids"`
		DigestHour    int     `yaml:"digest_hour"`
		RatePerSecond float64 `yaml:"rate_per_second"`
	} `yaml:"telegram"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		ExportPath    string `yaml:"export_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`

	Google struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"google"`

	ScheduleConfigPath string   `yaml:"schedule_config_path"`
	Admins             []string `yaml:"admins"`
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

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/agenda.db"
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}
	if cfg.ScheduleConfigPath == "" {
		cfg.ScheduleConfigPath = filepath.Join(filepath.Dir(path), "schedule.yaml")
	}

	if _, err = cfg.Location(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location is the business time zone used to interpret civil dates.
func (c *Config) Location() (*time.Location, error) {
	if c.Booking.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("booking.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceMinutes < 0 {
		return 0
	}
	return time.Duration(c.Booking.MinAdvanceMinutes) * time.Minute
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 60 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) MaxPeople() int {
	if c.Booking.MaxPeople <= 0 {
		return 5
	}
	return c.Booking.MaxPeople
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	if c.HTTP.RequestTimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.HTTP.RequestTimeoutSecs) * time.Second
}

// RateLimit returns the per-client request rate (per second) and burst for public routes.
func (c *Config) RateLimit() (float64, int) {
	perMinute := c.HTTP.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 120
	}
	burst := c.HTTP.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	return float64(perMinute) / 60, burst
}

func (c *Config) AuditRetention() time.Duration {
	if c.Audit.RetentionDays <= 0 {
		return 365 * 24 * time.Hour
	}
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}
