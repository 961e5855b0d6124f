package importer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
	"github.com/alexxcrz/IXORA-sub001/internal/parser"
)

// ErrMissingCode 抽取后仍无编码，不发起网络请求
var ErrMissingCode = errors.New("registro sin código")

// ProductWriter 库存后端写操作
type ProductWriter interface {
	CreateProduct(ctx context.Context, rec *model.CanonicalRecord, inventoryID int64) (*model.Product, error)
	UpdateProduct(ctx context.Context, id int64, rec *model.CanonicalRecord, inventoryID int64) (*model.Product, error)
}

// ProductLister 库存后端读操作
type ProductLister interface {
	ListProducts(ctx context.Context, inventoryID int64) ([]model.Product, error)
}

// Action 行处理决策
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
	ActionFail   Action = "fail"
)

// Decide 按是否已存在与导入模式决定动作
func Decide(found bool, mode model.ImportMode) Action {
	if found {
		if mode.AllowsUpdate() {
			return ActionUpdate
		}
		return ActionSkip
	}
	if mode.AllowsCreate() {
		return ActionCreate
	}
	return ActionSkip
}

// RowOperationError 单行失败，不中断整体导入
type RowOperationError struct {
	Row  int    // 行号（含表头偏移）
	Code string // 商品编码，缺失时为空
	Op   string // extract/create/update
	Err  error
}

func (e *RowOperationError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("Fila %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("Fila %d (%s): %s: %v", e.Row, e.Code, opLabel(e.Op), e.Err)
}

func (e *RowOperationError) Unwrap() error {
	return e.Err
}

func opLabel(op string) string {
	switch op {
	case string(ActionCreate):
		return "error al crear"
	case string(ActionUpdate):
		return "error al actualizar"
	}
	return op
}

// Observer 进度回调；每行处理后调用一次，结束时再以 Done=true 调用一次
type Observer func(model.ProgressSnapshot)

// CommitOptions 提交参数
type CommitOptions struct {
	Mode        model.ImportMode
	InventoryID int64
	YieldEvery  int           // 每处理多少行让出一次
	YieldPause  time.Duration // 让出时长
	Workers     int           // >1 时按编码分片并行，同编码保持顺序
}

// Committer 逐行对账并提交到库存后端
type Committer struct {
	writer    ProductWriter
	extractor *parser.Extractor
	logger    *zap.Logger
	opts      CommitOptions
	pause     func(ctx context.Context, d time.Duration)
}

// NewCommitter 创建提交器
func NewCommitter(writer ProductWriter, extractor *parser.Extractor, opts CommitOptions, logger *zap.Logger) *Committer {
	if extractor == nil {
		extractor = parser.NewExtractor(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Committer{
		writer:    writer,
		extractor: extractor,
		logger:    logger,
		opts:      opts,
		pause:     sleepCtx,
	}
}

type rowOutcome struct {
	action Action
	err    *RowOperationError
}

// Run 处理所有行。上下文取消只在行与行之间生效，进行中的请求会完成。
func (c *Committer) Run(ctx context.Context, runID string, rows []model.RowRecord, mapping *model.ColumnMapping,
	existing model.ProductIndex, observe Observer) (*model.ImportRun, []*RowOperationError) {

	if observe == nil {
		observe = func(model.ProgressSnapshot) {}
	}

	run := &model.ImportRun{
		ID:    runID,
		Mode:  c.opts.Mode,
		State: model.RunIdle,
		Total: len(rows),
	}
	run.State = model.RunRunning
	run.StartedAt = time.Now()

	var failures []*RowOperationError
	if c.opts.Workers > 1 {
		failures = c.runSharded(ctx, run, rows, mapping, existing, observe)
	} else {
		failures = c.runSequential(ctx, run, rows, mapping, existing, observe)
	}

	run.FinishedAt = time.Now()
	if run.State == model.RunRunning {
		run.State = model.RunCompleted
		final := run.Snapshot()
		final.Done = true
		observe(final)
	}

	c.logger.Info("import run finished",
		zap.String("run", run.ID),
		zap.String("state", string(run.State)),
		zap.Int("total", run.Total),
		zap.Int("processed", run.Processed),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Int("skipped", run.Skipped),
	)
	return run, failures
}

func (c *Committer) runSequential(ctx context.Context, run *model.ImportRun, rows []model.RowRecord,
	mapping *model.ColumnMapping, existing model.ProductIndex, observe Observer) []*RowOperationError {

	var failures []*RowOperationError
	for i, row := range rows {
		if ctx.Err() != nil {
			run.State = model.RunCancelled
			break
		}

		out := c.processRow(ctx, i, row, mapping, existing)
		if out.err != nil {
			failures = append(failures, out.err)
		}
		c.apply(run, out)
		observe(run.Snapshot())

		if c.opts.YieldEvery > 0 && run.Processed%c.opts.YieldEvery == 0 && run.Processed < run.Total {
			c.yield(ctx)
		}
	}
	return failures
}

// runSharded 按编码哈希分片，每个分片内按原顺序串行处理
func (c *Committer) runSharded(ctx context.Context, run *model.ImportRun, rows []model.RowRecord,
	mapping *model.ColumnMapping, existing model.ProductIndex, observe Observer) []*RowOperationError {

	shards := make([][]int, c.opts.Workers)
	for i, row := range rows {
		code := c.extractor.Extract(row, mapping).CodeValue()
		s := shardFor(code, c.opts.Workers)
		shards[s] = append(shards[s], i)
	}

	var (
		mu        sync.Mutex
		failures  []*RowOperationError
		cancelled bool
		g         errgroup.Group
	)
	for _, idxs := range shards {
		idxs := idxs
		g.Go(func() error {
			for _, i := range idxs {
				if ctx.Err() != nil {
					mu.Lock()
					cancelled = true
					mu.Unlock()
					return nil
				}

				out := c.processRow(ctx, i, rows[i], mapping, existing)

				mu.Lock()
				if out.err != nil {
					failures = append(failures, out.err)
				}
				c.apply(run, out)
				observe(run.Snapshot())
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if cancelled {
		run.State = model.RunCancelled
	}
	sort.SliceStable(failures, func(a, b int) bool { return failures[a].Row < failures[b].Row })
	run.Errors = run.Errors[:0]
	for _, f := range failures {
		run.Errors = append(run.Errors, f.Error())
	}
	return failures
}

func shardFor(code string, n int) int {
	if code == "" || n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return int(h.Sum32() % uint32(n))
}

func (c *Committer) processRow(ctx context.Context, idx int, row model.RowRecord,
	mapping *model.ColumnMapping, existing model.ProductIndex) rowOutcome {

	rowNum := row.SourceRow(idx)
	rec := c.extractor.Extract(row, mapping)
	code := rec.CodeValue()
	if code == "" {
		return rowOutcome{action: ActionFail, err: &RowOperationError{Row: rowNum, Op: "extract", Err: ErrMissingCode}}
	}

	product, found := existing.Lookup(code)
	action := Decide(found, c.opts.Mode)

	// 已发出的请求不随取消中断
	opCtx := context.WithoutCancel(ctx)

	var err error
	switch action {
	case ActionSkip:
		return rowOutcome{action: ActionSkip}
	case ActionUpdate:
		_, err = c.writer.UpdateProduct(opCtx, product.ID, rec, c.opts.InventoryID)
	case ActionCreate:
		_, err = c.writer.CreateProduct(opCtx, rec, c.opts.InventoryID)
	}
	if err != nil {
		c.logger.Warn("row operation failed",
			zap.Int("row", rowNum),
			zap.String("code", code),
			zap.String("op", string(action)),
			zap.Error(err),
		)
		return rowOutcome{action: ActionFail, err: &RowOperationError{Row: rowNum, Code: code, Op: string(action), Err: err}}
	}
	return rowOutcome{action: action}
}

func (c *Committer) apply(run *model.ImportRun, out rowOutcome) {
	switch out.action {
	case ActionCreate:
		run.Succeeded++
		run.Created++
	case ActionUpdate:
		run.Succeeded++
		run.Updated++
	case ActionSkip:
		run.Skipped++
	case ActionFail:
		run.Failed++
		run.Errors = append(run.Errors, out.err.Error())
	}
	run.Processed++
}

func (c *Committer) yield(ctx context.Context) {
	if c.opts.YieldPause <= 0 {
		return
	}
	c.pause(ctx, c.opts.YieldPause)
}

// sleepCtx 等待 d，上下文取消时提前返回
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
