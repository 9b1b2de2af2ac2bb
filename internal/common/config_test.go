package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	t.Setenv("LXC_CONTAINERS_ROOT", "")
	t.Setenv("LXC_IP_RETRY_ATTEMPTS", "")
	config := GetDefaultConfig()

	assert.Equal(t, "/var/lib/lxc", config.Driver.ContainersRoot)
	assert.Equal(t, DefaultTemplatesPaths, config.Driver.TemplatesPaths)
	assert.Equal(t, "vagrant-tmp-", config.Driver.TemplatePrefix)
	assert.Equal(t, 10, config.Driver.IPRetryAttempts)
	assert.Equal(t, 3*time.Second, config.Driver.IPRetryDelay)
	assert.False(t, config.Events.Enabled)
	assert.NoError(t, config.Validate())
}

func TestGetDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LXC_CONTAINERS_ROOT", "/data/containers")
	t.Setenv("LXC_IP_RETRY_ATTEMPTS", "4")
	t.Setenv("LXC_EVENTS_BROKERS", "k1:9092, k2:9092")

	config := GetDefaultConfig()

	assert.Equal(t, "/data/containers", config.Driver.ContainersRoot)
	assert.Equal(t, 4, config.Driver.IPRetryAttempts)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, config.Events.Brokers)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lxcdriver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver:
  containers_root: /srv/lxc
  ip_retry_delay: 500ms
  templates_paths:
    - /opt/lxc/templates
server:
  port: 9000
events:
  enabled: true
  topic: containers
logging:
  level: debug
`), 0o644))

	config, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "/srv/lxc", config.Driver.ContainersRoot)
	assert.Equal(t, 500*time.Millisecond, config.Driver.IPRetryDelay)
	assert.Equal(t, []string{"/opt/lxc/templates"}, config.Driver.TemplatesPaths)
	assert.Equal(t, "vagrant-tmp-", config.Driver.TemplatePrefix)
	assert.Equal(t, 9000, config.Server.Port)
	assert.True(t, config.Events.Enabled)
	assert.Equal(t, "containers", config.Events.Topic)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "server.port", validationErr.Field)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"containers root", func(c *Config) { c.Driver.ContainersRoot = "" }, "driver.containers_root"},
		{"templates paths", func(c *Config) { c.Driver.TemplatesPaths = nil }, "driver.templates_paths"},
		{"ip attempts", func(c *Config) { c.Driver.IPRetryAttempts = 0 }, "driver.ip_retry_attempts"},
		{"ip delay", func(c *Config) { c.Driver.IPRetryDelay = -time.Second }, "driver.ip_retry_delay"},
		{"events", func(c *Config) { c.Events.Enabled = true; c.Events.Brokers = nil }, "events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}
