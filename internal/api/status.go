package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/store"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	BackendURL     string           `json:"backendUrl"`     // 库存后端地址
	BrokerEnabled  bool             `json:"brokerEnabled"`  // 是否启用 MQTT 通知
	PendingUploads int              `json:"pendingUploads"` // 待确认的上传会话数
	LastImport     *store.ImportLog `json:"lastImport"`     // 最近一次导入
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{
		BackendURL:     h.backendURL,
		BrokerEnabled:  h.brokerEnabled,
		PendingUploads: h.sessions.len(),
	}

	if h.store != nil {
		last, err := h.store.LastImportLog()
		switch {
		case err == nil:
			resp.LastImport = last
		case !errors.Is(err, store.ErrNotFound):
			h.logger.Warn("failed to load last import", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, resp)
}
