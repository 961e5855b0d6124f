package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
	"github.com/alexxcrz/IXORA-sub001/internal/parser"
	"github.com/alexxcrz/IXORA-sub001/internal/store"
)

// Backend 库存后端（读 + 写）
type Backend interface {
	ProductLister
	ProductWriter
}

// Notifier 导入事件通知（MQTT 等）
type Notifier interface {
	InventoryUpdated(run *model.ImportRun) error
	Progress(runID string, snap model.ProgressSnapshot) error
}

type nopNotifier struct{}

func (nopNotifier) InventoryUpdated(*model.ImportRun) error { return nil }
func (nopNotifier) Progress(string, model.ProgressSnapshot) error { return nil }

// Settings 协调器运行参数
type Settings struct {
	YieldEvery       int
	YieldPause       time.Duration
	Workers          int
	MaxErrorMessages int
}

// Coordinator 导入协调器
type Coordinator struct {
	store     *store.Store
	backend   Backend
	notifier  Notifier
	extractor *parser.Extractor
	settings  Settings
	logger    *zap.Logger
}

// NewCoordinator 创建导入协调器；store 可为 nil（不记录导入日志）
func NewCoordinator(st *store.Store, backend Backend, settings Settings, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.MaxErrorMessages <= 0 {
		settings.MaxErrorMessages = 10
	}
	return &Coordinator{
		store:     st,
		backend:   backend,
		notifier:  nopNotifier{},
		extractor: parser.NewExtractor(nil),
		settings:  settings,
		logger:    logger,
	}
}

// SetNotifier 设置通知器
func (c *Coordinator) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	c.notifier = n
}

// SetExtractor 设置字段抽取器
func (c *Coordinator) SetExtractor(e *parser.Extractor) {
	if e != nil {
		c.extractor = e
	}
}

// ImportOptions 导入选项
type ImportOptions struct {
	Filename    string
	FileSize    int64
	FileHash    string
	Rows        []model.RowRecord
	Mapping     *model.ColumnMapping
	Mode        model.ImportMode
	InventoryID int64
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string      `json:"type"`      // start/info/progress/done/error
	Message   string      `json:"message"`   // 事件消息
	Data      interface{} `json:"data"`      // 附加数据
	Timestamp time.Time   `json:"timestamp"` // 时间戳
}

// ImportResult 导入结束时随 done 事件返回
type ImportResult struct {
	Filename string              `json:"filename"`
	Run      *model.ImportRun    `json:"run"`
	Summary  string              `json:"summary"`
	Failures []store.ImportError `json:"failures,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// finalSendTimeout 终止事件在消费者迟滞时的最长等待
const finalSendTimeout = 5 * time.Second

// Import 执行导入，返回进度通道
func (c *Coordinator) Import(ctx context.Context, opts ImportOptions) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		c.doImport(ctx, opts, progressChan)
	}()

	return progressChan
}

// doImport 执行导入逻辑
func (c *Coordinator) doImport(ctx context.Context, opts ImportOptions, progressChan chan ProgressEvent) {
	startTime := time.Now()
	runID := uuid.NewString()

	mode := opts.Mode
	if mode == "" {
		mode = model.ModeCreateAndUpdate
	}

	c.sendProgress(ctx, progressChan, ProgressEvent{
		Type:    "start",
		Message: "Iniciando importación",
		Data: map[string]interface{}{
			"run_id":   runID,
			"filename": opts.Filename,
			"total":    len(opts.Rows),
			"mode":     mode,
		},
		Timestamp: time.Now(),
	})

	if opts.Mapping == nil {
		c.sendFinal(progressChan, errorEvent("No se indicó el mapeo de columnas"))
		return
	}

	// 导入开始时的现有商品快照
	products, err := c.backend.ListProducts(ctx, opts.InventoryID)
	if err != nil {
		c.logger.Error("failed to list existing products", zap.Error(err))
		c.sendFinal(progressChan, errorEvent(fmt.Sprintf("No se pudieron obtener los productos existentes: %v", err)))
		return
	}
	existing := model.NewProductIndex(products)

	c.sendProgress(ctx, progressChan, ProgressEvent{
		Type:    "info",
		Message: fmt.Sprintf("%d productos existentes", len(existing)),
		Data: map[string]interface{}{
			"existing":     len(existing),
			"inventory_id": opts.InventoryID,
		},
		Timestamp: time.Now(),
	})

	logID := c.createLog(runID, mode, opts)

	committer := NewCommitter(c.backend, c.extractor, CommitOptions{
		Mode:        mode,
		InventoryID: opts.InventoryID,
		YieldEvery:  c.settings.YieldEvery,
		YieldPause:  c.settings.YieldPause,
		Workers:     c.settings.Workers,
	}, c.logger)

	run, failures := committer.Run(ctx, runID, opts.Rows, opts.Mapping, existing, func(snap model.ProgressSnapshot) {
		c.sendProgress(ctx, progressChan, ProgressEvent{
			Type:      "progress",
			Message:   fmt.Sprintf("%d / %d", snap.Processed, snap.Total),
			Data:      snap,
			Timestamp: time.Now(),
		})
		if c.shouldPublish(snap) {
			if err := c.notifier.Progress(runID, snap); err != nil {
				c.logger.Debug("failed to publish progress", zap.Error(err))
			}
		}
	})

	summary := run.Summary(c.settings.MaxErrorMessages)
	importErrors := toImportErrors(failures)
	c.finishLog(logID, run, summary, importErrors)

	if run.State == model.RunCompleted {
		if c.store != nil {
			if err := c.store.SetImportPreferences(store.ImportPreferences{Mode: mode, InventoryID: opts.InventoryID}); err != nil {
				c.logger.Warn("failed to save import preferences", zap.Error(err))
			}
		}
		// 通知其他客户端刷新权威数据
		if err := c.notifier.InventoryUpdated(run); err != nil {
			c.logger.Warn("failed to publish inventory update", zap.Error(err))
		}
	}

	c.sendFinal(progressChan, ProgressEvent{
		Type:    "done",
		Message: summary,
		Data: &ImportResult{
			Filename: opts.Filename,
			Run:      run,
			Summary:  summary,
			Failures: importErrors,
			Duration: time.Since(startTime),
		},
		Timestamp: time.Now(),
	})
}

func (c *Coordinator) shouldPublish(snap model.ProgressSnapshot) bool {
	if snap.Done {
		return true
	}
	every := c.settings.YieldEvery
	if every <= 0 {
		every = 10
	}
	return snap.Processed%every == 0
}

func (c *Coordinator) createLog(runID string, mode model.ImportMode, opts ImportOptions) int64 {
	if c.store == nil {
		return 0
	}
	id, err := c.store.CreateImportLog(store.NewImportLog{
		RunID:       runID,
		Filename:    opts.Filename,
		FileSize:    opts.FileSize,
		FileHash:    opts.FileHash,
		Mode:        mode,
		InventoryID: opts.InventoryID,
		TotalRows:   len(opts.Rows),
	})
	if err != nil {
		c.logger.Warn("failed to create import log", zap.Error(err))
		return 0
	}
	return id
}

func (c *Coordinator) finishLog(id int64, run *model.ImportRun, summary string, errs []store.ImportError) {
	if c.store == nil || id == 0 {
		return
	}
	if err := c.store.FinishImportLog(id, run, summary, errs); err != nil {
		c.logger.Warn("failed to finish import log", zap.String("run", run.ID), zap.Error(err))
	}
}

func toImportErrors(failures []*RowOperationError) []store.ImportError {
	if len(failures) == 0 {
		return nil
	}
	out := make([]store.ImportError, 0, len(failures))
	for _, f := range failures {
		out = append(out, store.ImportError{
			Row:       f.Row,
			Code:      f.Code,
			Operation: f.Op,
			Message:   f.Error(),
		})
	}
	return out
}

func errorEvent(msg string) ProgressEvent {
	return ProgressEvent{
		Type:      "error",
		Message:   msg,
		Timestamp: time.Now(),
	}
}

// sendProgress 发送进度事件；通道满时等待消费者，上下文取消后放弃
func (c *Coordinator) sendProgress(ctx context.Context, ch chan ProgressEvent, event ProgressEvent) {
	select {
	case ch <- event:
		return
	default:
	}
	select {
	case ch <- event:
	case <-ctx.Done():
		c.logger.Debug("dropped progress event after cancel", zap.String("type", event.Type))
	}
}

// sendFinal 发送终止事件；不丢弃，但消费者长时间不读时放弃
func (c *Coordinator) sendFinal(ch chan ProgressEvent, event ProgressEvent) {
	t := time.NewTimer(finalSendTimeout)
	defer t.Stop()
	select {
	case ch <- event:
	case <-t.C:
		c.logger.Warn("dropped final import event", zap.String("type", event.Type))
	}
}
