package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// UpdateConfigRequest 更新导入偏好（部分更新）
type UpdateConfigRequest struct {
	Mode        *string `json:"mode"`
	InventoryID *int64  `json:"inventoryId" binding:"omitempty,gt=0"`
}

// GetConfig 获取导入偏好
// GET /api/config
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.preferences())
}

// UpdateConfig 更新导入偏好
// PATCH /api/config
func (h *Handler) UpdateConfig(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Solicitud inválida: %v", err)})
		return
	}

	prefs := h.preferences()
	if req.Mode != nil {
		m, err := model.ParseImportMode(*req.Mode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Modo de importación inválido: %q", *req.Mode)})
			return
		}
		prefs.Mode = m
	}
	if req.InventoryID != nil {
		prefs.InventoryID = *req.InventoryID
	}

	if err := h.store.SetImportPreferences(prefs); err != nil {
		h.logger.Error("failed to save import preferences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo guardar la configuración"})
		return
	}

	c.JSON(http.StatusOK, prefs)
}
