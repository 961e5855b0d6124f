package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseCSV 解析 CSV：去 BOM，非 UTF-8 时按 Windows-1252 解码，自动识别分隔符
func parseCSV(data []byte) (*model.SourceTable, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	encoding := "utf-8"
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode csv: %w", err)
		}
		data = decoded
		encoding = "windows-1252"
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	delim := sniffDelimiter(data)

	var (
		headers  []string
		rows     []model.RowRecord
		warnings []string
	)
	for _, rec := range splitRecords(text, delim) {
		if rec.unclosed {
			warnings = append(warnings, fmt.Sprintf("Fila %d: comillas sin cerrar, se leyó solo esta línea", rec.line))
		}
		record, err := readCSVRecord(rec.text, delim)
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", rec.line, err)
		}

		cells := make([]string, len(record))
		for i, v := range record {
			cells[i] = cleanCSVField(v)
		}

		if headers == nil {
			if isBlankRecord(cells) {
				continue
			}
			headers = cells
			continue
		}
		if isBlankRecord(cells) {
			continue
		}
		// 行宽与表头对齐：不足补空，超出截断
		rows = append(rows, model.NewRowRecord(rec.line, headers, cells))
	}

	return &model.SourceTable{
		Headers:  headers,
		Rows:     rows,
		Encoding: encoding,
		Warnings: warnings,
	}, nil
}

// csvRecord 一条逻辑记录及其在文件中的起始行号
type csvRecord struct {
	text     string
	line     int
	unclosed bool // 引号直到文件末尾都未闭合，只保留起始行
}

// splitRecords 先按行切分；引号字段跨行且之后能闭合时合并为一条记录，
// 否则该引号只影响所在行，后续行照常解析
func splitRecords(text string, delim rune) []csvRecord {
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	var out []csvRecord
	for i := 0; i < len(lines); {
		open := quoteOpenAfter(lines[i], delim, false)
		j := i
		for open && j+1 < len(lines) {
			j++
			open = quoteOpenAfter(lines[j], delim, true)
		}
		if open {
			out = append(out, csvRecord{text: lines[i] + `"`, line: i + 1, unclosed: true})
			i++
			continue
		}
		out = append(out, csvRecord{text: strings.Join(lines[i:j+1], "\n"), line: i + 1})
		i = j + 1
	}
	return out
}

// quoteOpenAfter 扫描一行后是否仍处于引号字段内；只有字段开头的引号才开启引号字段
func quoteOpenAfter(line string, delim rune, inQuote bool) bool {
	fieldStart := !inQuote
	rs := []rune(line)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if inQuote {
			if r == '"' {
				if i+1 < len(rs) && rs[i+1] == '"' {
					i++
					continue
				}
				inQuote = false
			}
			continue
		}
		switch {
		case r == delim:
			fieldStart = true
		case r == '"' && fieldStart:
			inQuote = true
			fieldStart = false
		case r == ' ' && fieldStart && delim != '\t':
		default:
			fieldStart = false
		}
	}
	return inQuote
}

func readCSVRecord(text string, delim rune) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	// 制表符分隔时不能跳过前导空白，否则空字段会被吞掉
	reader.TrimLeadingSpace = delim != '\t'

	record, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return record, err
}

// sniffDelimiter 根据首个非空行判断分隔符，优先逗号
func sniffDelimiter(data []byte) rune {
	first := string(data)
	for _, l := range strings.Split(first, "\n") {
		if strings.TrimSpace(l) != "" {
			first = l
			break
		}
	}

	best, bestCount := ',', countOutsideQuotes(first, ',')
	for _, d := range []rune{';', '\t'} {
		if n := countOutsideQuotes(first, d); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func countOutsideQuotes(line string, delim rune) int {
	n := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			n++
		}
	}
	return n
}

// cleanCSVField 去除首尾空白；宽松引号模式下残留的成对外层引号一并去掉
func cleanCSVField(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	return v
}

func isBlankRecord(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
