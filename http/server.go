// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fraudguard/config"
	"fraudguard/db"
	"fraudguard/inference"
	"fraudguard/ml"
	"fraudguard/monitoring"
	"fraudguard/presentation"
)

// maxBodyBytes bounds form and JSON request bodies.
const maxBodyBytes = 64 << 10

// App 处理器依赖. Hub, Metrics and LoadLog are optional.
type App struct {
	Facade    *inference.Facade
	Sessions  *SessionStore
	Formatter *presentation.Formatter
	Model     ModelStatus

	Hub     *monitoring.Hub
	Metrics *monitoring.Metrics
	LoadLog *db.DB
	Logger  *zap.Logger
}

// ModelStatus 模型加载状态
type ModelStatus struct {
	Kind  string
	Path  string
	Info  *ml.ArtifactInfo
	Error error
}

// Server HTTP服务器
type Server struct {
	server *http.Server
	config config.HTTPConfig
	logger *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(cfg config.HTTPConfig, app *App) *Server {
	handler := NewHandler(cfg, app)
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config: cfg,
		logger: app.Logger,
	}
}

// NewHandler 注册路由并包装中间件链
func NewHandler(cfg config.HTTPConfig, app *App) http.Handler {
	if app.Logger == nil {
		app.Logger = zap.NewNop()
	}
	if app.Formatter == nil {
		app.Formatter, _ = presentation.NewFormatter("en")
	}

	mux := http.NewServeMux()
	RegisterHandlers(mux, app)
	RegisterFormHandlers(mux, app)

	chain := Chain(
		RecoveryMiddleware(app.Logger),                       // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(app.Logger),                         // 2. 日志中间件
		MetricsMiddleware(app.Metrics),                       // 3. 请求指标
		SecurityHeadersMiddleware,                            // 4. 安全头中间件
		CORSMiddleware(cfg.AllowedOrigins),                   // 5. CORS中间件
		RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst, 0), // 6. 速率限制
		RequestSizeMiddleware(maxBodyBytes),                  // 7. 请求大小限制
		TimeoutMiddleware(cfg.Timeout),                       // 8. 超时中间件
	)
	return chain(mux)
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", "/api/ws/predictions"),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
