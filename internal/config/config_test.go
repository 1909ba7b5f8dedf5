// internal/config/config_test.go
package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
    t.Helper()

    path := filepath.Join(t.TempDir(), "config.yaml")
    require.NoError(t, os.WriteFile(path, []byte(content), 0644))
    return path
}

func TestLoadDefaults(t *testing.T) {
    cfg, err := Load(writeConfig(t, "database:\n  path: /tmp/test.db\n"))
    require.NoError(t, err)

    assert.Equal(t, ":8080", cfg.Server.Port)
    assert.Equal(t, 4, cfg.Server.Workers)
    assert.Equal(t, 1024, cfg.Server.QueueSize)
    assert.Equal(t, 24*time.Hour, cfg.Learning.QuickWindow)
    assert.Equal(t, 7*24*time.Hour, cfg.Learning.StandardWindow)
    assert.Equal(t, 90, cfg.Learning.MaxCustomDays)
    assert.Equal(t, "/metrics", cfg.Prometheus.MetricsPath)
    assert.Equal(t, "info", cfg.Logging.Level)
    assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadNormalizesPort(t *testing.T) {
    cfg, err := Load(writeConfig(t, "server:\n  port: \"9090\"\n"))
    require.NoError(t, err)
    assert.Equal(t, ":9090", cfg.Server.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
    _, err := Load(writeConfig(t, "logging:\n  level: verbose\n"))
    assert.Error(t, err)

    _, err = Load(writeConfig(t, "learning:\n  quick_window: 240h\n  standard_window: 24h\n"))
    assert.Error(t, err)

    _, err = Load(writeConfig(t, "notifications:\n  enabled: true\n  pushover:\n    enabled: true\n"))
    assert.Error(t, err, "pushover without credentials")
}

func TestLoadMissingFile(t *testing.T) {
    _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
    assert.Error(t, err)
}
