// internal/config/config.go
package config

import (
    "fmt"
    "os"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

type Config struct {
    Server        ServerConfig       `yaml:"server"`
    Database      DatabaseConfig     `yaml:"database"`
    Learning      LearningConfig     `yaml:"learning"`
    Prometheus    PrometheusConfig   `yaml:"prometheus"`
    Logging       LoggingConfig      `yaml:"logging"`
    Notifications NotificationConfig `yaml:"notifications"`
}

type ServerConfig struct {
    Port         string        `yaml:"port"`
    Workers      int           `yaml:"workers"`
    QueueSize    int           `yaml:"queue_size"`
    ReadTimeout  time.Duration `yaml:"read_timeout"`
    WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
    Path string `yaml:"path"`
}

type LearningConfig struct {
    QuickWindow    time.Duration `yaml:"quick_window"`
    StandardWindow time.Duration `yaml:"standard_window"`
    MaxCustomDays  int           `yaml:"max_custom_days"`
}

type PrometheusConfig struct {
    Enabled     bool   `yaml:"enabled"`
    MetricsPath string `yaml:"metrics_path"`
}

type LoggingConfig struct {
    Level  string `yaml:"level"`
    Format string `yaml:"format"`
}

type NotificationConfig struct {
    Enabled  bool           `yaml:"enabled"`
    Pushover PushoverConfig `yaml:"pushover"`
}

type PushoverConfig struct {
    Enabled     bool           `yaml:"enabled"`
    APIToken    string         `yaml:"api_token"`
    UserKey     string         `yaml:"user_key"`
    MinSeverity string         `yaml:"min_severity"`
    Device      string         `yaml:"device"`
    Sound       string         `yaml:"sound"`
    Priority    int            `yaml:"priority"`
    Throttle    ThrottleConfig `yaml:"throttle"`
}

type ThrottleConfig struct {
    Enabled     bool          `yaml:"enabled"`
    Window      time.Duration `yaml:"window"`
    MaxPerAgent int           `yaml:"max_per_agent"`
    MaxTotal    int           `yaml:"max_total"`
}

func Load(filename string) (*Config, error) {
    data, err := os.ReadFile(filename)
    if err != nil {
        return nil, fmt.Errorf("failed to read config file: %w", err)
    }

    var config Config
    if err := yaml.Unmarshal(data, &config); err != nil {
        return nil, fmt.Errorf("failed to parse YAML: %w", err)
    }

    setDefaults(&config)

    if err := validate(&config); err != nil {
        return nil, fmt.Errorf("invalid configuration: %w", err)
    }

    return &config, nil
}

func setDefaults(cfg *Config) {
    if cfg.Server.Port == "" {
        cfg.Server.Port = ":8080"
    }
    if !strings.HasPrefix(cfg.Server.Port, ":") {
        cfg.Server.Port = ":" + cfg.Server.Port
    }
    if cfg.Server.Workers <= 0 {
        cfg.Server.Workers = 4
    }
    if cfg.Server.QueueSize <= 0 {
        cfg.Server.QueueSize = 1024
    }
    if cfg.Server.ReadTimeout == 0 {
        cfg.Server.ReadTimeout = 30 * time.Second
    }
    if cfg.Server.WriteTimeout == 0 {
        cfg.Server.WriteTimeout = 30 * time.Second
    }

    if cfg.Database.Path == "" {
        cfg.Database.Path = "./data/monitor.db"
    }

    if cfg.Learning.QuickWindow == 0 {
        cfg.Learning.QuickWindow = 24 * time.Hour
    }
    if cfg.Learning.StandardWindow == 0 {
        cfg.Learning.StandardWindow = 7 * 24 * time.Hour
    }
    if cfg.Learning.MaxCustomDays <= 0 {
        cfg.Learning.MaxCustomDays = 90
    }

    if cfg.Prometheus.MetricsPath == "" {
        cfg.Prometheus.MetricsPath = "/metrics"
    }

    if cfg.Logging.Level == "" {
        cfg.Logging.Level = "info"
    }
    if cfg.Logging.Format == "" {
        cfg.Logging.Format = "text"
    }

    if cfg.Notifications.Pushover.MinSeverity == "" {
        cfg.Notifications.Pushover.MinSeverity = "high"
    }
    if cfg.Notifications.Pushover.Throttle.Window == 0 {
        cfg.Notifications.Pushover.Throttle.Window = 15 * time.Minute
    }
    if cfg.Notifications.Pushover.Throttle.MaxPerAgent <= 0 {
        cfg.Notifications.Pushover.Throttle.MaxPerAgent = 5
    }
    if cfg.Notifications.Pushover.Throttle.MaxTotal <= 0 {
        cfg.Notifications.Pushover.Throttle.MaxTotal = 20
    }
}

func validate(cfg *Config) error {
    switch cfg.Logging.Level {
    case "debug", "info", "warn", "error":
    default:
        return fmt.Errorf("unknown logging level %q", cfg.Logging.Level)
    }

    switch cfg.Logging.Format {
    case "text", "json":
    default:
        return fmt.Errorf("unknown logging format %q", cfg.Logging.Format)
    }

    if cfg.Learning.QuickWindow >= cfg.Learning.StandardWindow {
        return fmt.Errorf("quick learning window must be shorter than standard window")
    }

    if cfg.Notifications.Enabled && cfg.Notifications.Pushover.Enabled {
        if cfg.Notifications.Pushover.APIToken == "" || cfg.Notifications.Pushover.UserKey == "" {
            return fmt.Errorf("pushover requires api_token and user_key")
        }
        switch cfg.Notifications.Pushover.MinSeverity {
        case "low", "medium", "high", "critical":
        default:
            return fmt.Errorf("unknown pushover min_severity %q", cfg.Notifications.Pushover.MinSeverity)
        }
    }

    return nil
}
