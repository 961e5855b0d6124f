package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

var (
	// ErrUnsupportedFormat 文件扩展名不在 .csv/.xls/.xlsx 之内
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile 去除空行后没有任何数据行
	ErrEmptyFile = errors.New("file has no data rows")
)

// Format 表格文件格式
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLS  Format = "xls"
	FormatXLSX Format = "xlsx"
)

// DetectFormat 按扩展名（不区分大小写）识别格式
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xls":
		return FormatXLS, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
}

// Parse 读取完整文件并解析为表格
func Parse(filename string, r io.Reader) (*model.SourceTable, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseBytes(format, data)
}

// ParseBytes 按指定格式解析内存中的文件内容
func ParseBytes(format Format, data []byte) (*model.SourceTable, error) {
	var (
		table *model.SourceTable
		err   error
	)
	switch format {
	case FormatCSV:
		table, err = parseCSV(data)
	case FormatXLSX:
		table, err = parseXLSX(bytes.NewReader(data))
	case FormatXLS:
		table, err = parseXLS(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(table.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	table.Format = string(format)
	return table, nil
}

// buildSpreadsheetTable 电子表格公共逻辑：首行为表头，空表头补 ColumnaN，
// 仅保留前两列至少一列非空的数据行
func buildSpreadsheetTable(sheet string, grid [][]string) *model.SourceTable {
	table := &model.SourceTable{Sheet: sheet}
	if len(grid) == 0 {
		return table
	}

	headerRow := grid[0]
	headers := make([]string, len(headerRow))
	for i, h := range headerRow {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Columna%d", i+1)
		}
		headers[i] = h
	}
	table.Headers = headers
	if len(headers) == 0 {
		return table
	}

	for i, raw := range grid[1:] {
		values := make([]string, len(headers))
		for j := range headers {
			if j < len(raw) {
				values[j] = strings.TrimSpace(raw[j])
			}
		}
		if !hasLeadingValue(values) {
			continue
		}
		table.Rows = append(table.Rows, model.NewRowRecord(i+2, headers, values))
	}
	return table
}

func hasLeadingValue(values []string) bool {
	for j := 0; j < 2 && j < len(values); j++ {
		if values[j] != "" {
			return true
		}
	}
	return false
}
