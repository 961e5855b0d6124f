package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/importer"
	"github.com/alexxcrz/IXORA-sub001/internal/parser"
	"github.com/alexxcrz/IXORA-sub001/internal/store"
)

// Options API 处理器依赖
type Options struct {
	Store         *store.Store // 可为 nil：不保存偏好，历史与配置接口返回 503
	Coordinator   *importer.Coordinator
	Classifier    *parser.Classifier
	SessionTTL    time.Duration
	MaxUpload     int64
	BackendURL    string
	BrokerEnabled bool
	Defaults      store.ImportPreferences // 无历史偏好时的模式与库存
	Logger        *zap.Logger
}

// Handler 导入 API 处理器
type Handler struct {
	store         *store.Store
	coordinator   *importer.Coordinator
	classifier    *parser.Classifier
	sessions      *uploadSessionStore
	maxUpload     int64
	backendURL    string
	brokerEnabled bool
	defaults      store.ImportPreferences
	logger        *zap.Logger
}

// NewHandler 创建 API 处理器
func NewHandler(opts Options) *Handler {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = parser.NewClassifier(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := opts.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Handler{
		store:         opts.Store,
		coordinator:   opts.Coordinator,
		classifier:    classifier,
		sessions:      newUploadSessionStore(opts.SessionTTL),
		maxUpload:     maxUpload,
		backendURL:    opts.BackendURL,
		brokerEnabled: opts.BrokerEnabled,
		defaults:      opts.Defaults,
		logger:        logger,
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)

	// 导入偏好
	router.GET("/config", h.GetConfig)
	router.PATCH("/config", h.UpdateConfig)

	// 数据导入
	imports := router.Group("/import")
	imports.GET("/fields", h.ListFields)
	imports.POST("/preview", h.Preview)
	imports.PUT("/:token/mapping", h.UpdateMapping)
	imports.POST("/:token/commit", h.Commit)
	imports.DELETE("/:token", h.Discard)

	// 导入日志
	imports.GET("/logs", h.ListLogs)
	imports.GET("/logs/:runId", h.GetLog)
}
