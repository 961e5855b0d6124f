package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// Client IXORA 库存后端 REST 客户端
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient 创建后端客户端
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("backend"),
	}
}

// APIError 后端返回非 2xx 状态
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status=%d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status=%d", e.Method, e.Path, e.StatusCode)
}

// ProductPayload 创建/更新商品的请求体；nil 字段不发送
type ProductPayload struct {
	Code         *string `json:"codigo,omitempty"`
	Name         *string `json:"nombre,omitempty"`
	Presentation *string `json:"presentacion,omitempty"`
	Category     *string `json:"categoria,omitempty"`
	Subcategory  *string `json:"subcategoria,omitempty"`
	UnitsPerBox  *int    `json:"piezas_por_caja,omitempty"`
	Lot          *string `json:"lote,omitempty"`
	InventoryID  int64   `json:"inventario_id"`
}

// NewProductPayload 只携带白名单字段
func NewProductPayload(rec *model.CanonicalRecord, inventoryID int64) ProductPayload {
	code := rec.CodeValue()
	return ProductPayload{
		Code:         &code,
		Name:         rec.Name,
		Presentation: rec.Presentation,
		Category:     rec.Category,
		Subcategory:  rec.Subcategory,
		UnitsPerBox:  rec.UnitsPerBox,
		Lot:          rec.Lot,
		InventoryID:  inventoryID,
	}
}

// ListProducts 获取现有商品；inventoryID > 0 时只取该库存
func (c *Client) ListProducts(ctx context.Context, inventoryID int64) ([]model.Product, error) {
	path := "/inventario"
	if inventoryID > 0 {
		path = fmt.Sprintf("/inventario/inventarios/%d/productos", inventoryID)
	}

	var products []model.Product
	if err := c.do(ctx, http.MethodGet, path, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// CreateProduct POST /inventario
func (c *Client) CreateProduct(ctx context.Context, rec *model.CanonicalRecord, inventoryID int64) (*model.Product, error) {
	var created model.Product
	if err := c.do(ctx, http.MethodPost, "/inventario", NewProductPayload(rec, inventoryID), &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct PUT /inventario/{id}
func (c *Client) UpdateProduct(ctx context.Context, id int64, rec *model.CanonicalRecord, inventoryID int64) (*model.Product, error) {
	var updated model.Product
	path := fmt.Sprintf("/inventario/%d", id)
	if err := c.do(ctx, http.MethodPut, path, NewProductPayload(rec, inventoryID), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage 提取 {"error": "..."} 中的消息，否则返回原始文本
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
