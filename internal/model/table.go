package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Cell 单元格（表头 + 原始值）
type Cell struct {
	Header string `json:"header"`
	Value  string `json:"value"`
}

// RowRecord 一行数据，单元格保持文件中的列顺序
type RowRecord struct {
	Number int    `json:"row"` // 文件中的行号，表头为第 1 行
	Cells  []Cell `json:"cells"`
}

// NewRowRecord 按表头与值构造行；值不足时补空串
func NewRowRecord(number int, headers, values []string) RowRecord {
	cells := make([]Cell, len(headers))
	for i, h := range headers {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		cells[i] = Cell{Header: h, Value: v}
	}
	return RowRecord{Number: number, Cells: cells}
}

// SourceRow 文件中的行号；未记录行号时按数据行序号推算（表头为第 1 行）
func (r RowRecord) SourceRow(index int) int {
	if r.Number > 0 {
		return r.Number
	}
	return index + 2
}

// Get 返回指定表头的值；表头重复时取最左侧一列
func (r RowRecord) Get(header string) (string, bool) {
	for _, c := range r.Cells {
		if c.Header == header {
			return c.Value, true
		}
	}
	return "", false
}

// Value 同 Get，缺失时返回空串
func (r RowRecord) Value(header string) string {
	v, _ := r.Get(header)
	return v
}

// IsBlank 所有单元格均为空白
func (r RowRecord) IsBlank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c.Value) != "" {
			return false
		}
	}
	return true
}

// MarshalJSON 预览时以 {header: value} 对象输出，保持列顺序
func (r RowRecord) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	seen := make(map[string]bool, len(r.Cells))
	first := true
	for _, c := range r.Cells {
		if seen[c.Header] {
			continue
		}
		seen[c.Header] = true
		k, err := json.Marshal(c.Header)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// SourceTable 解析后的表格
type SourceTable struct {
	Headers  []string    `json:"headers"`
	Rows     []RowRecord `json:"-"`
	Format   string      `json:"format"`             // csv/xls/xlsx
	Encoding string      `json:"encoding,omitempty"` // 仅 CSV
	Sheet    string      `json:"sheet,omitempty"`    // 仅电子表格
	Warnings []string    `json:"warnings,omitempty"` // 解析时可恢复的问题，如未闭合的引号
}

// MappingEntry 单列映射
type MappingEntry struct {
	Header string         `json:"header"`
	Field  CanonicalField `json:"field"`
}

// ColumnMapping 有序的 表头 → 规范字段 映射，可由用户修改
type ColumnMapping struct {
	entries []MappingEntry
	index   map[string]int
}

// NewColumnMapping 创建空映射
func NewColumnMapping() *ColumnMapping {
	return &ColumnMapping{index: make(map[string]int)}
}

// Set 设置表头对应字段；新表头追加在末尾
func (m *ColumnMapping) Set(header string, field CanonicalField) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[header]; ok {
		m.entries[i].Field = field
		return
	}
	m.index[header] = len(m.entries)
	m.entries = append(m.entries, MappingEntry{Header: header, Field: field})
}

// Field 返回表头对应字段，未知表头返回 FieldUnmapped
func (m *ColumnMapping) Field(header string) CanonicalField {
	if m == nil {
		return FieldUnmapped
	}
	if i, ok := m.index[header]; ok {
		return m.entries[i].Field
	}
	return FieldUnmapped
}

// Has 表头是否在映射中
func (m *ColumnMapping) Has(header string) bool {
	if m == nil {
		return false
	}
	_, ok := m.index[header]
	return ok
}

// HasField 是否至少有一列映射到该字段
func (m *ColumnMapping) HasField(field CanonicalField) bool {
	return len(m.HeadersFor(field)) > 0
}

// HeadersFor 映射到该字段的所有表头（按列顺序）
func (m *ColumnMapping) HeadersFor(field CanonicalField) []string {
	if m == nil || field == FieldUnmapped {
		return nil
	}
	var out []string
	for _, e := range m.entries {
		if e.Field == field {
			out = append(out, e.Header)
		}
	}
	return out
}

// Entries 返回映射副本
func (m *ColumnMapping) Entries() []MappingEntry {
	if m == nil {
		return nil
	}
	out := make([]MappingEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len 映射条目数
func (m *ColumnMapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Clone 深拷贝
func (m *ColumnMapping) Clone() *ColumnMapping {
	c := NewColumnMapping()
	for _, e := range m.Entries() {
		c.Set(e.Header, e.Field)
	}
	return c
}

// MarshalJSON 输出为有序数组
func (m *ColumnMapping) MarshalJSON() ([]byte, error) {
	entries := m.Entries()
	if entries == nil {
		entries = []MappingEntry{}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON 从有序数组读取
func (m *ColumnMapping) UnmarshalJSON(data []byte) error {
	var entries []MappingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	m.entries = nil
	m.index = make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Field != FieldUnmapped && !e.Field.Valid() {
			return fmt.Errorf("unknown canonical field %q for column %q", e.Field, e.Header)
		}
		m.Set(e.Header, e.Field)
	}
	return nil
}
