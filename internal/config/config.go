package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

type BotConfig struct {
	Language       string  `yaml:"language" env:"TUBEGRAB_BOT_LANGUAGE"`
	AllowedUserIDs []int64 `yaml:"allowed_user_ids" env:"TUBEGRAB_ALLOWED_USER_IDS"`
}

// DownloadConfig controls where and how media is fetched.
type DownloadConfig struct {
	Dir     string `yaml:"dir" env:"TUBEGRAB_DOWNLOAD_DIR"`
	Format  string `yaml:"format" env:"TUBEGRAB_DOWNLOAD_FORMAT"`
	Timeout string `yaml:"timeout" env:"TUBEGRAB_DOWNLOAD_TIMEOUT"`
	// KeepJournal is the number of journal rows kept per user by the periodic cleanup.
	KeepJournal int `yaml:"keep_journal" env:"TUBEGRAB_DOWNLOAD_KEEP_JOURNAL"`
}

// DefaultDownloadTimeout bounds a single run when download.timeout is unset.
const DefaultDownloadTimeout = 30 * time.Minute

// GetTimeout returns the parsed run timeout. Zero means no limit.
// Falls back to DefaultDownloadTimeout if not configured or invalid.
func (c *DownloadConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return DefaultDownloadTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return DefaultDownloadTimeout
	}
	return d
}

type Config struct {
	Log struct {
		Level string `yaml:"level" env:"TUBEGRAB_LOG_LEVEL"`
	} `yaml:"log"`
	Server struct {
		ListenPort string `yaml:"listen_port" env:"TUBEGRAB_SERVER_PORT"`
		Auth       struct {
			Enabled  bool   `yaml:"enabled" env:"TUBEGRAB_AUTH_ENABLED"`
			Username string `yaml:"username" env:"TUBEGRAB_AUTH_USERNAME"`
			Password string `yaml:"password" env:"TUBEGRAB_AUTH_PASSWORD"`
		} `yaml:"auth"`
	} `yaml:"server"`
	Telegram struct {
		Token         string `yaml:"token" env:"TUBEGRAB_TELEGRAM_TOKEN"`
		WebhookURL    string `yaml:"webhook_url" env:"TUBEGRAB_TELEGRAM_WEBHOOK_URL"`
		WebhookPath   string // Auto-generated from token hash (not configurable)
		WebhookSecret string // Auto-generated from token hash (not configurable)
		ProxyURL      string `yaml:"proxy_url" env:"TUBEGRAB_TELEGRAM_PROXY_URL"`
		MaxUploadMB   int    `yaml:"max_upload_mb" env:"TUBEGRAB_TELEGRAM_MAX_UPLOAD_MB"`
	} `yaml:"telegram"`
	Bot      BotConfig      `yaml:"bot"`
	Download DownloadConfig `yaml:"download"`
	Database struct {
		Path string `yaml:"path" env:"TUBEGRAB_DATABASE_PATH"`
	} `yaml:"database"`
}

// Load loads configuration from the specified file path.
// It first loads the embedded default configuration, then merges the user config on top.
// Finally, it overrides values with environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			slog.Warn("config file not found, using defaults", "path", path)
		} else {
			expandedData := []byte(os.ExpandEnv(string(data)))

			// Unmarshal user config on top of defaults (merges non-zero values)
			if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
				return nil, err
			}
			slog.Info("loaded user config", "path", path)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads the embedded default configuration.
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate checks configuration for required fields and valid ranges.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Telegram.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("telegram.max_upload_mb must be positive, got %d", c.Telegram.MaxUploadMB))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Download.Dir == "" {
		errs = append(errs, errors.New("download.dir is required"))
	}
	if c.Download.Format == "" {
		errs = append(errs, errors.New("download.format is required"))
	}
	if c.Download.Timeout != "" {
		d, err := time.ParseDuration(c.Download.Timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("download.timeout: invalid duration format %q: %w", c.Download.Timeout, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("download.timeout must not be negative, got %s", d))
		}
	}
	if c.Download.KeepJournal < 0 {
		errs = append(errs, fmt.Errorf("download.keep_journal must not be negative, got %d", c.Download.KeepJournal))
	}

	// Server auth requires username if enabled (password is auto-generated if not set)
	if c.Server.Auth.Enabled && c.Server.Auth.Username == "" {
		errs = append(errs, errors.New("server.auth.username is required when server.auth.enabled is true"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
