package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/client"
	"github.com/eulercopilot/copilot-desktop-go/internal/config"
	"github.com/eulercopilot/copilot-desktop-go/internal/handler"
	"github.com/eulercopilot/copilot-desktop-go/internal/middleware"
	"github.com/eulercopilot/copilot-desktop-go/internal/service"
	"github.com/eulercopilot/copilot-desktop-go/internal/store"
	"github.com/eulercopilot/copilot-desktop-go/pkg/logger"
	"github.com/eulercopilot/copilot-desktop-go/pkg/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.LoadEnvFiles(".env"); err != nil {
		log.Fatalf("加载环境变量失败: %v", err)
	}

	// 加载配置
	cfg, err := config.LoadConfig("configs/copilot-desktop.yaml")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	zapLogger, level, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("copilot-desktop 服务启动中...")

	desktopPath := cfg.Backend.DesktopConfigPath
	if desktopPath == "" {
		desktopPath, err = config.DefaultDesktopPath()
		if err != nil {
			zapLogger.Fatal("无法确定配置文件路径", zap.Error(err))
		}
	}
	desktop := config.NewDesktopStore(desktopPath)
	zapLogger.Info("后端配置文件", zap.String("path", desktop.Path()))

	// 插件缓存
	var cache store.Cache = store.NewMemoryCache()
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			zapLogger.Warn("Redis 不可用，插件缓存改用内存", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache = store.NewRedisCache(redisClient, cfg.Redis.Prefix)
			zapLogger.Info("插件缓存使用 Redis",
				zap.String("host", cfg.Redis.Host),
				zap.Int("port", cfg.Redis.Port))
		}
	}

	// 初始化服务
	backend := client.NewBackendClient(desktop, cfg.Backend.RequestTimeout, zapLogger)
	hub := service.NewEventHub(zapLogger)
	aborts := service.NewAbortRegistry()
	chatService := service.NewChatService(backend, hub, aborts, service.RelayOptions{
		IdleTimeout: cfg.Relay.IdleTimeout,
		ChunkSize:   cfg.Relay.ChunkSize,
	}, zapLogger)
	pluginService := service.NewPluginService(backend, cache, cfg.Plugin.CacheTTL, desktop, zapLogger)

	// 初始化路由
	gin.SetMode(gin.ReleaseMode)
	origins := middleware.NewOriginPolicy(cfg.Server.AllowedOrigins, cfg.Server.Host)
	r := handler.NewRouter(handler.Handlers{
		API:       handler.NewAPIHandler(backend, chatService, pluginService, desktop, hub, cfg.Server.Name, zapLogger),
		WebSocket: handler.NewWebSocketHandler(hub, chatService, origins, zapLogger),
		Events:    handler.NewEventsHandler(hub, zapLogger),
		LogLevel:  level,
		Origins:   origins,
	}, zapLogger)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 优雅关闭
	idleConnsClosed := make(chan struct{})
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		zapLogger.Info("收到退出信号，开始关闭", zap.String("signal", sig.String()))

		// 先结束进行中的回答，界面会收到 [DONE]
		aborts.Stop("")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zapLogger.Error("服务关闭失败", zap.Error(err))
		}
		hub.Close()
		close(idleConnsClosed)
	}()

	zapLogger.Info("copilot-desktop 服务启动成功",
		zap.String("addr", cfg.Addr()),
		zap.Duration("idleTimeout", cfg.Relay.IdleTimeout),
		zap.Bool("redis", cfg.Redis.Enabled))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		zapLogger.Fatal("服务启动失败", zap.Error(err))
	}
	<-idleConnsClosed
	zapLogger.Info("服务已退出")
}
