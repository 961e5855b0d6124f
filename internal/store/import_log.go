package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// ImportLog 导入运行记录
type ImportLog struct {
	ID            int64         `json:"id"`
	RunID         string        `json:"runId"`
	Filename      string        `json:"filename"`
	FileSize      int64         `json:"fileSize"`
	FileHash      string        `json:"fileHash"`
	Mode          string        `json:"mode"`
	InventoryID   int64         `json:"inventoryId"`
	Status        string        `json:"status"`
	TotalRows     int           `json:"totalRows"`
	ProcessedRows int           `json:"processedRows"`
	SucceededRows int           `json:"succeededRows"`
	FailedRows    int           `json:"failedRows"`
	SkippedRows   int           `json:"skippedRows"`
	CreatedRows   int           `json:"createdRows"`
	UpdatedRows   int           `json:"updatedRows"`
	Summary       string        `json:"summary"`
	StartedAt     time.Time     `json:"startedAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	Errors        []ImportError `json:"errors,omitempty"`
}

// ImportError 行级失败明细
type ImportError struct {
	Row       int    `json:"row"`
	Code      string `json:"code"`
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

// NewImportLog 导入开始时的记录参数
type NewImportLog struct {
	RunID       string
	Filename    string
	FileSize    int64
	FileHash    string
	Mode        model.ImportMode
	InventoryID int64
	TotalRows   int
}

// CreateImportLog 创建导入日志，返回 import_log_id
func (s *Store) CreateImportLog(l NewImportLog) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO import_logs (run_id, filename, file_size, file_hash, mode, inventory_id, total_rows, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.RunID, l.Filename, l.FileSize, l.FileHash, string(l.Mode), l.InventoryID, l.TotalRows, string(model.RunRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to create import log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get import log id: %w", err)
	}
	return id, nil
}

// FinishImportLog 写入最终计数、状态与汇总，并保存错误明细
func (s *Store) FinishImportLog(id int64, run *model.ImportRun, summary string, errs []ImportError) error {
	tx, err := s.BeginTx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE import_logs SET
			status = ?,
			total_rows = ?,
			processed_rows = ?,
			succeeded_rows = ?,
			failed_rows = ?,
			skipped_rows = ?,
			created_rows = ?,
			updated_rows = ?,
			summary = ?,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(run.State), run.Total, run.Processed, run.Succeeded, run.Failed, run.Skipped,
		run.Created, run.Updated, summary, id)
	if err != nil {
		return fmt.Errorf("failed to update import log: %w", err)
	}

	if len(errs) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO import_errors (import_log_id, row_num, code, operation, message)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare import error insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range errs {
			if _, err := stmt.Exec(id, e.Row, e.Code, e.Operation, e.Message); err != nil {
				return fmt.Errorf("failed to insert import error: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import log: %w", err)
	}
	return nil
}

const importLogColumns = `
	id, run_id, filename, file_size, file_hash, mode, inventory_id, status,
	total_rows, processed_rows, succeeded_rows, failed_rows, skipped_rows,
	created_rows, updated_rows, summary, started_at, completed_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImportLog(r rowScanner) (*ImportLog, error) {
	var (
		l         ImportLog
		started   sql.NullTime
		completed sql.NullTime
	)
	err := r.Scan(
		&l.ID, &l.RunID, &l.Filename, &l.FileSize, &l.FileHash, &l.Mode, &l.InventoryID, &l.Status,
		&l.TotalRows, &l.ProcessedRows, &l.SucceededRows, &l.FailedRows, &l.SkippedRows,
		&l.CreatedRows, &l.UpdatedRows, &l.Summary, &started, &completed,
	)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		l.StartedAt = started.Time
	}
	if completed.Valid {
		t := completed.Time
		l.CompletedAt = &t
	}
	return &l, nil
}

// ListImportLogs 最近的导入记录（不含错误明细）
func (s *Store) ListImportLogs(limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+importLogColumns+` FROM import_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import logs: %w", err)
	}
	defer rows.Close()

	var logs []ImportLog
	for rows.Next() {
		l, err := scanImportLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// GetImportLog 按 run_id 获取导入记录及错误明细
func (s *Store) GetImportLog(runID string) (*ImportLog, error) {
	l, err := scanImportLog(s.db.QueryRow(`SELECT `+importLogColumns+` FROM import_logs WHERE run_id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("import log %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get import log: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT row_num, code, operation, message FROM import_errors
		WHERE import_log_id = ? ORDER BY id
	`, l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query import errors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ImportError
		if err := rows.Scan(&e.Row, &e.Code, &e.Operation, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan import error: %w", err)
		}
		l.Errors = append(l.Errors, e)
	}
	return l, rows.Err()
}

// LastImportLog 最近一次导入记录，没有时返回 ErrNotFound
func (s *Store) LastImportLog() (*ImportLog, error) {
	l, err := scanImportLog(s.db.QueryRow(`SELECT ` + importLogColumns + ` FROM import_logs ORDER BY id DESC LIMIT 1`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get last import log: %w", err)
	}
	return l, nil
}
