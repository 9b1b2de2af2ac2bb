package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTemplatesPaths LXC 模板目录候选列表，按顺序探测
var DefaultTemplatesPaths = []string{
	"/usr/share/lxc/templates",
	"/usr/lib/lxc/templates",
	"/usr/lib64/lxc/templates",
	"/usr/local/lib/lxc/templates",
}

// Config 全局配置
type Config struct {
	Driver  DriverConfig  `yaml:"driver"`
	Server  ServerConfig  `yaml:"server"`
	Events  EventsConfig  `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
}

// DriverConfig 容器驱动配置
type DriverConfig struct {
	ContainersRoot  string        `yaml:"containers_root"`
	TemplatesPaths  []string      `yaml:"templates_paths"`
	TemplatePrefix  string        `yaml:"template_prefix"`
	ConfigFile      string        `yaml:"config_file"`
	NamePrefix      string        `yaml:"name_prefix"`
	SudoPath        string        `yaml:"sudo_path"`
	UseSudo         bool          `yaml:"use_sudo"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	IPRetryAttempts int           `yaml:"ip_retry_attempts"`
	IPRetryDelay    time.Duration `yaml:"ip_retry_delay"`
	IPInterface     string        `yaml:"ip_interface"`
	StartLogFile    string        `yaml:"start_log_file"`
}

// ServerConfig HTTP 控制接口配置
type ServerConfig struct {
	Address   string  `yaml:"address"`
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// EventsConfig 生命周期事件配置
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Driver: DriverConfig{
			ContainersRoot:  getEnvOrDefault("LXC_CONTAINERS_ROOT", "/var/lib/lxc"),
			TemplatesPaths:  append([]string(nil), DefaultTemplatesPaths...),
			TemplatePrefix:  "vagrant-tmp-",
			NamePrefix:      "lxcdriver",
			SudoPath:        "sudo",
			UseSudo:         os.Geteuid() != 0,
			WaitTimeout:     30 * time.Second,
			IPRetryAttempts: getEnvIntOrDefault("LXC_IP_RETRY_ATTEMPTS", 10),
			IPRetryDelay:    3 * time.Second,
			IPInterface:     "eth0",
		},
		Server: ServerConfig{
			Address:   "127.0.0.1",
			Port:      8474,
			RateLimit: 5,
			Burst:     10,
		},
		Events: EventsConfig{
			Enabled: false,
			Brokers: splitList(getEnvOrDefault("LXC_EVENTS_BROKERS", "localhost:9092")),
			Topic:   getEnvOrDefault("LXC_EVENTS_TOPIC", "lxc.lifecycle"),
		},
		Logging: LoggingConfig{
			Development: false,
			MaxSizeMB:   50,
			MaxBackups:  3,
		},
	}
}

// LoadConfig 从 YAML 文件加载配置，未设置的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	config := GetDefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Driver.ContainersRoot == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration,
			NewValidationError("driver.containers_root", "cannot be empty", c.Driver.ContainersRoot))
	}
	if len(c.Driver.TemplatesPaths) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration,
			NewValidationError("driver.templates_paths", "cannot be empty", c.Driver.TemplatesPaths))
	}
	if c.Driver.IPRetryAttempts <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration,
			NewValidationError("driver.ip_retry_attempts", "must be greater than 0", c.Driver.IPRetryAttempts))
	}
	if c.Driver.IPRetryDelay < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration,
			NewValidationError("driver.ip_retry_delay", "cannot be negative", c.Driver.IPRetryDelay))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration,
			NewValidationError("server.port", "must be between 1 and 65535", c.Server.Port))
	}
	if c.Events.Enabled && (len(c.Events.Brokers) == 0 || c.Events.Topic == "") {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration,
			NewValidationError("events", "brokers and topic are required when enabled", c.Events))
	}
	return nil
}

// getEnvOrDefault 获取环境变量或使用默认值
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault 获取环境变量整数值或使用默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
