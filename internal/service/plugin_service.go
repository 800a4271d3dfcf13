package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/store"
	"go.uber.org/zap"
)

const pluginCachePrefix = "plugin:"

// PluginBackend 插件列表来源
type PluginBackend interface {
	Plugins(ctx context.Context) (json.RawMessage, error)
}

// BaseURLSource 当前后端地址，用作缓存键
type BaseURLSource interface {
	BaseURL() (string, error)
}

// PluginService 插件列表服务，按后端地址缓存
type PluginService struct {
	backend PluginBackend
	cache   store.Cache
	ttl     time.Duration
	source  BaseURLSource
	logger  *zap.Logger
}

// NewPluginService 创建插件服务，cache 为 nil 或 ttl 为 0 时不缓存
func NewPluginService(backend PluginBackend, cache store.Cache, ttl time.Duration, source BaseURLSource, logger *zap.Logger) *PluginService {
	return &PluginService{
		backend: backend,
		cache:   cache,
		ttl:     ttl,
		source:  source,
		logger:  logger,
	}
}

// List 获取插件列表，返回后端原始 JSON
func (s *PluginService) List(ctx context.Context) (json.RawMessage, error) {
	if !s.cacheEnabled() {
		return s.backend.Plugins(ctx)
	}

	baseURL, err := s.source.BaseURL()
	if err != nil {
		return nil, err
	}

	key := pluginCachePrefix + baseURL
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("读取插件缓存失败", zap.Error(err))
	} else if ok {
		s.logger.Debug("命中插件缓存", zap.String("key", key))
		return json.RawMessage(cached), nil
	}

	plugins, err := s.backend.Plugins(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, plugins, s.ttl); err != nil {
		s.logger.Warn("写入插件缓存失败", zap.Error(err))
	}
	return plugins, nil
}

func (s *PluginService) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0 && s.source != nil
}
