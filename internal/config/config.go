package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 桌面助手进程配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Backend BackendConfig `yaml:"backend"`
	Relay   RelayConfig   `yaml:"relay"`
	Plugin  PluginConfig  `yaml:"plugin"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig 本地命令服务配置
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Name           string   `yaml:"name"`
	AllowedOrigins []string `yaml:"allowedOrigins"` // 为空时拒绝所有跨域请求
}

// RedisConfig Redis 配置，未启用时插件缓存使用内存
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BackendConfig 后端连接配置
type BackendConfig struct {
	// DesktopConfigPath 为空时使用 ~/.config/eulercopilot/desktop.json
	DesktopConfigPath string        `yaml:"desktopConfigPath"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
}

// RelayConfig 流式转发配置
type RelayConfig struct {
	IdleTimeout time.Duration `yaml:"idleTimeout"` // 两个数据块之间的最长等待
	ChunkSize   int           `yaml:"chunkSize"`
}

// PluginConfig 插件列表缓存配置
type PluginConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8765,
			Name: "copilot-desktop",
			AllowedOrigins: []string{
				"tauri://localhost",
				"http://tauri.localhost",
				"https://tauri.localhost",
				"http://localhost:1420",
			},
		},
		Redis: RedisConfig{
			Host:   "127.0.0.1",
			Port:   6379,
			Prefix: "copilot:",
		},
		Backend: BackendConfig{
			RequestTimeout: 30 * time.Second,
		},
		Relay: RelayConfig{
			IdleTimeout: 5 * time.Minute,
			ChunkSize:   4096,
		},
		Plugin: PluginConfig{
			CacheTTL: time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig 加载配置文件
// 文件不存在时使用默认配置，之后再应用 COPILOT_* 环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

// LoadEnvFiles 加载 .env 文件到环境变量，已存在的变量不会被覆盖
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("加载环境文件 %s 失败: %w", f, err)
		}
	}
	return nil
}

// Addr 本地监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.Port <= 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.Name == "" {
		c.Server.Name = def.Server.Name
	}
	if c.Relay.ChunkSize <= 0 {
		c.Relay.ChunkSize = def.Relay.ChunkSize
	}
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = def.Backend.RequestTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("COPILOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("COPILOT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("COPILOT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COPILOT_PORT 无效: %w", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("COPILOT_ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("COPILOT_DESKTOP_CONFIG"); v != "" {
		cfg.Backend.DesktopConfigPath = v
	}
	if v := os.Getenv("COPILOT_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COPILOT_IDLE_TIMEOUT 无效: %w", err)
		}
		cfg.Relay.IdleTimeout = d
	}
	if v := os.Getenv("COPILOT_REDIS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("COPILOT_REDIS_ENABLED 无效: %w", err)
		}
		cfg.Redis.Enabled = enabled
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
