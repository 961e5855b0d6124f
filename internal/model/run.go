package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ImportMode 导入模式
type ImportMode string

const (
	ModeCreateOnly      ImportMode = "crear"
	ModeUpdateOnly      ImportMode = "actualizar"
	ModeCreateAndUpdate ImportMode = "ambos"
)

// ParseImportMode 解析导入模式，同时接受英文名称
func ParseImportMode(s string) (ImportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crear", "createonly", "create":
		return ModeCreateOnly, nil
	case "actualizar", "updateonly", "update":
		return ModeUpdateOnly, nil
	case "", "ambos", "createandupdate", "both":
		return ModeCreateAndUpdate, nil
	}
	return "", fmt.Errorf("unknown import mode: %q", s)
}

// AllowsCreate 是否允许新建
func (m ImportMode) AllowsCreate() bool {
	return m == ModeCreateOnly || m == ModeCreateAndUpdate
}

// AllowsUpdate 是否允许更新
func (m ImportMode) AllowsUpdate() bool {
	return m == ModeUpdateOnly || m == ModeCreateAndUpdate
}

// RunState 导入运行状态
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunCancelled RunState = "cancelled"
)

// ProgressSnapshot 进度快照
type ProgressSnapshot struct {
	Processed int  `json:"processed"`
	Total     int  `json:"total"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Done      bool `json:"done,omitempty"` // 运行结束后的最终快照
}

// ImportRun 一次导入执行的状态
type ImportRun struct {
	ID         string     `json:"id"`
	Mode       ImportMode `json:"mode"`
	State      RunState   `json:"state"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Errors     []string   `json:"errors,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}

// Snapshot 当前进度快照
func (r *ImportRun) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		Processed: r.Processed,
		Total:     r.Total,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
	}
}

// Summary 汇总文本："<成功> procesados, <失败> errores"，随后列出前 maxErrors 条错误
func (r *ImportRun) Summary(maxErrors int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.Succeeded))
	b.WriteString(" procesados, ")
	b.WriteString(strconv.Itoa(r.Failed))
	b.WriteString(" errores")

	n := len(r.Errors)
	if maxErrors >= 0 && n > maxErrors {
		n = maxErrors
	}
	for _, e := range r.Errors[:n] {
		b.WriteString("\n")
		b.WriteString(e)
	}
	if n < len(r.Errors) {
		fmt.Fprintf(&b, "\n... y %d errores más", len(r.Errors)-n)
	}
	return b.String()
}
