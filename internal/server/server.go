package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/api"
	"github.com/alexxcrz/IXORA-sub001/internal/backend"
	"github.com/alexxcrz/IXORA-sub001/internal/broker"
	"github.com/alexxcrz/IXORA-sub001/internal/config"
	"github.com/alexxcrz/IXORA-sub001/internal/importer"
	"github.com/alexxcrz/IXORA-sub001/internal/model"
	"github.com/alexxcrz/IXORA-sub001/internal/parser"
	"github.com/alexxcrz/IXORA-sub001/internal/store"
)

// DBFileName 导入日志数据库文件名
const DBFileName = "ixora-import.db"

// Server HTTP服务器
type Server struct {
	router *gin.Engine
	comps  *Components
	api    *api.Handler
}

// Components 服务与 CLI 共用的导入组件
type Components struct {
	Store       *store.Store
	Publisher   *broker.Publisher // 未配置 broker 时为 nil
	Classifier  *parser.Classifier
	Coordinator *importer.Coordinator
	Defaults    store.ImportPreferences
}

// Close 释放组件资源
func (c *Components) Close() error {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}

// BuildComponents 按配置组装存储、后端客户端、通知器与协调器
func BuildComponents(cfg *config.AppConfig, logger *zap.Logger) (*Components, error) {
	dataDir, err := config.EnsureDataDir(cfg)
	if err != nil {
		dataDir = cfg.Data.DataDir
	}

	sqliteStore, err := store.New(filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	synonyms := parser.DefaultSynonyms()
	if cfg.Import.SynonymsPath != "" {
		synonyms, err = parser.LoadSynonyms(cfg.Import.SynonymsPath)
		if err != nil {
			sqliteStore.Close()
			return nil, fmt.Errorf("failed to load synonyms: %w", err)
		}
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout.Std(), logger)
	coordinator := importer.NewCoordinator(sqliteStore, client, importer.Settings{
		YieldEvery:       cfg.Import.YieldEvery,
		YieldPause:       cfg.Import.YieldPause.Std(),
		Workers:          cfg.Import.Workers,
		MaxErrorMessages: cfg.Import.MaxErrorMessages,
	}, logger.Named("importer"))

	comps := &Components{
		Store:       sqliteStore,
		Classifier:  parser.NewClassifier(synonyms),
		Coordinator: coordinator,
	}

	if cfg.Broker.URL != "" {
		pub, err := broker.NewPublisher(cfg.Broker, logger)
		if err != nil {
			// 通知失败不影响导入
			logger.Warn("broker unavailable, notifications disabled", zap.String("url", cfg.Broker.URL), zap.Error(err))
		} else {
			comps.Publisher = pub
			coordinator.SetNotifier(pub)
		}
	}

	mode, err := model.ParseImportMode(cfg.Import.DefaultMode)
	if err != nil {
		mode = model.ModeCreateAndUpdate
	}
	comps.Defaults = store.ImportPreferences{Mode: mode, InventoryID: cfg.Backend.DefaultInventoryID}

	return comps, nil
}

// NewServer 创建服务器
func NewServer(cfg *config.AppConfig, logger *zap.Logger) (*Server, error) {
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	comps, err := BuildComponents(cfg, logger)
	if err != nil {
		return nil, err
	}

	apiHandler := api.NewHandler(api.Options{
		Store:         comps.Store,
		Coordinator:   comps.Coordinator,
		Classifier:    comps.Classifier,
		SessionTTL:    cfg.Server.SessionTTL.Std(),
		MaxUpload:     cfg.Server.MaxUpload,
		BackendURL:    cfg.Backend.BaseURL,
		BrokerEnabled: comps.Publisher != nil,
		Defaults:      comps.Defaults,
		Logger:        logger.Named("api"),
	})

	router := gin.New()
	router.Use(requestLogger(logger.Named("http")), gin.Recovery())
	router.MaxMultipartMemory = cfg.Server.MaxUpload

	s := &Server{
		router: router,
		comps:  comps,
		api:    apiHandler,
	}

	s.setupRoutes()

	return s, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := s.router.Group("/api")
	{
		s.api.RegisterRoutes(apiGroup)
	}
}

// requestLogger 使用 zap 记录请求
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}

// Handler 返回 http.Handler（用于测试）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Close 退出前释放资源
func (s *Server) Close() error {
	return s.comps.Close()
}
