package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultBaseURL 后端默认地址
const DefaultBaseURL = "https://eulercopilot.gitee.com"

// DesktopConfig 用户级后端连接配置（desktop.json）
// 字段名沿用已安装客户端的文件格式
type DesktopConfig struct {
	BaseURL string `json:"framework_url"`
	APIKey  string `json:"framework_api_key"`
}

// DefaultDesktopConfig 文件不存在时使用的配置
func DefaultDesktopConfig() *DesktopConfig {
	return &DesktopConfig{BaseURL: DefaultBaseURL}
}

// ConfigError 配置不可读、格式错误或取值无效
type ConfigError struct {
	Path  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("配置项 %s 无效: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("配置文件 %s 错误: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DesktopStore 读写 desktop.json
// 每次调用都重新读取文件，不做缓存
type DesktopStore struct {
	path string
}

// DefaultDesktopPath 返回 ~/.config/eulercopilot/desktop.json
func DefaultDesktopPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("无法获取用户目录: %w", err)
	}
	return filepath.Join(home, ".config", "eulercopilot", "desktop.json"), nil
}

// NewDesktopStore 创建配置存储
func NewDesktopStore(path string) *DesktopStore {
	return &DesktopStore{path: path}
}

// Path 配置文件路径
func (s *DesktopStore) Path() string {
	return s.path
}

// Load 读取配置；文件不存在返回默认值，格式错误返回 ConfigError
func (s *DesktopStore) Load() (*DesktopConfig, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultDesktopConfig(), nil
	}
	if err != nil {
		return nil, &ConfigError{Path: s.path, Err: fmt.Errorf("读取失败: %w", err)}
	}

	var cfg DesktopConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: s.path, Err: fmt.Errorf("解析失败: %w", err)}
	}
	return &cfg, nil
}

// BaseURL 当前后端地址
func (s *DesktopStore) BaseURL() (string, error) {
	cfg, err := s.Load()
	if err != nil {
		return "", err
	}
	return cfg.BaseURL, nil
}

// APIKey 当前 API Key
func (s *DesktopStore) APIKey() (string, error) {
	cfg, err := s.Load()
	if err != nil {
		return "", err
	}
	return cfg.APIKey, nil
}

// Update 更新地址和 API Key；原文件损坏时以默认值为基础覆盖
func (s *DesktopStore) Update(baseURL, apiKey string) error {
	cfg, err := s.Load()
	if err != nil {
		cfg = DefaultDesktopConfig()
	}
	cfg.BaseURL = baseURL
	cfg.APIKey = apiKey
	return s.Save(cfg)
}

// Save 写入配置文件，必要时创建目录
func (s *DesktopStore) Save(cfg *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &ConfigError{Path: s.path, Err: fmt.Errorf("创建配置目录失败: %w", err)}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return &ConfigError{Path: s.path, Err: fmt.Errorf("序列化失败: %w", err)}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return &ConfigError{Path: s.path, Err: fmt.Errorf("写入失败: %w", err)}
	}
	return nil
}
