package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/importer"
	"github.com/alexxcrz/IXORA-sub001/internal/model"
	"github.com/alexxcrz/IXORA-sub001/internal/parser"
	"github.com/alexxcrz/IXORA-sub001/internal/store"
)

// previewRows 预览返回的数据行数
const previewRows = 5

// FieldOption 映射下拉选项
type FieldOption struct {
	Field    model.CanonicalField `json:"field"`
	Label    string               `json:"label"`
	Accepted bool                 `json:"accepted"` // 是否写入后端
}

// PreviewResponse 上传预览
type PreviewResponse struct {
	Token           string                  `json:"token"`
	Filename        string                  `json:"filename"`
	Format          string                  `json:"format"`
	Encoding        string                  `json:"encoding,omitempty"`
	Sheet           string                  `json:"sheet,omitempty"`
	Headers         []string                `json:"headers"`
	Mapping         *model.ColumnMapping    `json:"mapping"`
	UnmappedHeaders []string                `json:"unmappedHeaders"`
	Warnings        []string                `json:"warnings"`
	ParseWarnings   []string                `json:"parseWarnings,omitempty"` // 解析阶段的问题，如未闭合的引号
	Preview         []model.RowRecord       `json:"preview"`
	TotalRows       int                     `json:"totalRows"`
	Defaults        store.ImportPreferences `json:"defaults"`
}

// MappingRequest 修改列映射
type MappingRequest struct {
	Mapping *model.ColumnMapping `json:"mapping" binding:"required"`
}

// MappingResponse 修改映射后的校验结果
type MappingResponse struct {
	Mapping         *model.ColumnMapping `json:"mapping"`
	UnmappedHeaders []string             `json:"unmappedHeaders"`
	Warnings        []string             `json:"warnings"`
}

// CommitRequest 确认导入
type CommitRequest struct {
	Mode        string `json:"mode"`
	InventoryID int64  `json:"inventoryId" binding:"gte=0"`
	Force       bool   `json:"force"` // 存在校验警告时仍然导入
}

// ListFields 可选的标准字段
// GET /api/import/fields
func (h *Handler) ListFields(c *gin.Context) {
	options := make([]FieldOption, 0, len(model.CanonicalFields))
	for _, f := range model.CanonicalFields {
		options = append(options, FieldOption{Field: f, Label: f.Label(), Accepted: f.Accepted()})
	}
	c.JSON(http.StatusOK, gin.H{"fields": options})
}

// Preview 上传文件，返回建议映射与校验警告
// POST /api/import/preview
func (h *Handler) Preview(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No se recibió ningún archivo"})
		return
	}
	if fileHeader.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "El archivo es demasiado grande"})
		return
	}

	filename := filepath.Base(fileHeader.Filename)
	format, err := parser.DetectFormat(filename)
	if err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Solo se permiten archivos CSV o Excel (.xls, .xlsx)"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo leer el archivo"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo leer el archivo"})
		return
	}
	if int64(len(data)) > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "El archivo es demasiado grande"})
		return
	}

	table, err := parser.ParseBytes(format, data)
	if err != nil {
		msg := fmt.Sprintf("Error al procesar el archivo: %v", err)
		if errors.Is(err, parser.ErrEmptyFile) {
			msg = "El archivo está vacío o no tiene datos válidos"
		}
		h.logger.Info("rejected upload", zap.String("filename", filename), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	sum := sha256.Sum256(data)
	mapping, unmapped := h.classifier.Classify(table.Headers)
	warnings := parser.Validate(table.Rows, mapping)

	token := h.sessions.put(&uploadSession{
		filename: filename,
		size:     int64(len(data)),
		hash:     hex.EncodeToString(sum[:]),
		table:    table,
		mapping:  mapping,
		unmapped: unmapped,
		warnings: warnings,
	})

	preview := table.Rows
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	c.JSON(http.StatusOK, PreviewResponse{
		Token:           token,
		Filename:        filename,
		Format:          table.Format,
		Encoding:        table.Encoding,
		Sheet:           table.Sheet,
		Headers:         table.Headers,
		Mapping:         mapping,
		UnmappedHeaders: nonNil(unmapped),
		Warnings:        nonNil(parser.Messages(warnings)),
		ParseWarnings:   table.Warnings,
		Preview:         preview,
		TotalRows:       len(table.Rows),
		Defaults:        h.preferences(),
	})
}

// UpdateMapping 用户修改列映射后重新校验
// PUT /api/import/:token/mapping
func (h *Handler) UpdateMapping(c *gin.Context) {
	var req MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Mapeo de columnas inválido: %v", err)})
		return
	}

	var resp MappingResponse
	err := h.sessions.update(c.Param("token"), func(sess *uploadSession) error {
		known := make(map[string]bool, len(sess.table.Headers))
		for _, hdr := range sess.table.Headers {
			known[hdr] = true
		}

		mapping := sess.mapping.Clone()
		for _, e := range req.Mapping.Entries() {
			if !known[e.Header] {
				return fmt.Errorf("la columna %q no existe en el archivo", e.Header)
			}
			mapping.Set(e.Header, e.Field)
		}

		sess.mapping = mapping
		sess.unmapped = unmappedHeaders(sess.table.Headers, mapping)
		sess.warnings = parser.Validate(sess.table.Rows, mapping)

		resp = MappingResponse{
			Mapping:         mapping,
			UnmappedHeaders: nonNil(sess.unmapped),
			Warnings:        nonNil(parser.Messages(sess.warnings)),
		}
		return nil
	})
	if err != nil {
		h.sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Commit 确认并执行导入 (SSE 流式响应)
// POST /api/import/:token/commit
func (h *Handler) Commit(c *gin.Context) {
	var req CommitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Solicitud inválida: %v", err)})
			return
		}
	}

	prefs := h.preferences()
	mode := prefs.Mode
	if req.Mode != "" {
		m, err := model.ParseImportMode(req.Mode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Modo de importación inválido: %q", req.Mode)})
			return
		}
		mode = m
	}
	inventoryID := prefs.InventoryID
	if req.InventoryID > 0 {
		inventoryID = req.InventoryID
	}

	token := c.Param("token")
	sess, err := h.sessions.claim(token)
	if err != nil {
		h.sessionError(c, err)
		return
	}

	if len(sess.warnings) > 0 && !req.Force {
		h.sessions.release(token)
		c.JSON(http.StatusConflict, gin.H{
			"error":    "Hay advertencias de validación; confirme para continuar",
			"warnings": parser.Messages(sess.warnings),
		})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.sessions.release(token)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "El servidor no admite respuestas en streaming"})
		return
	}
	defer h.sessions.delete(token)

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// 客户端断开时在行与行之间取消
	progressChan := h.coordinator.Import(c.Request.Context(), importer.ImportOptions{
		Filename:    sess.filename,
		FileSize:    sess.size,
		FileHash:    sess.hash,
		Rows:        sess.table.Rows,
		Mapping:     sess.mapping.Clone(),
		Mode:        mode,
		InventoryID: inventoryID,
	})

	for event := range progressChan {
		eventData, err := json.Marshal(event)
		if err != nil {
			continue
		}

		// SSE 格式: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// Discard 放弃上传会话
// DELETE /api/import/:token
func (h *Handler) Discard(c *gin.Context) {
	if !h.sessions.delete(c.Param("token")) {
		h.sessionError(c, errSessionNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListLogs 最近的导入记录
// GET /api/import/logs?limit=
func (h *Handler) ListLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "El parámetro limit debe estar entre 1 y 200"})
		return
	}

	if !h.requireStore(c) {
		return
	}

	logs, err := h.store.ListImportLogs(limit)
	if err != nil {
		h.logger.Error("failed to list import logs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo obtener el historial de importaciones"})
		return
	}
	if logs == nil {
		logs = []store.ImportLog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// GetLog 单次导入记录（含错误明细）
// GET /api/import/logs/:runId
func (h *Handler) GetLog(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	l, err := h.store.GetImportLog(c.Param("runId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "La importación no existe"})
			return
		}
		h.logger.Error("failed to get import log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo obtener el historial de importaciones"})
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "La carga no existe o ya expiró"})
	case errors.Is(err, errSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Este archivo ya se está importando"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// requireStore 未配置存储时返回 503
func (h *Handler) requireStore(c *gin.Context) bool {
	if h.store != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "El historial de importaciones no está disponible"})
	return false
}

// preferences 上次导入偏好，读取失败时退回默认值
func (h *Handler) preferences() store.ImportPreferences {
	if h.store == nil {
		return h.defaults
	}
	prefs, err := h.store.GetImportPreferences(h.defaults)
	if err != nil {
		h.logger.Warn("failed to load import preferences", zap.Error(err))
		return h.defaults
	}
	return prefs
}

func unmappedHeaders(headers []string, mapping *model.ColumnMapping) []string {
	var out []string
	for _, hdr := range headers {
		if mapping.Field(hdr) == model.FieldUnmapped {
			out = append(out, hdr)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
