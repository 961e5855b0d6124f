package parser

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// parseXLSX 读取第一个 Sheet
func parseXLSX(r io.Reader) (*model.SourceTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return buildSpreadsheetTable(sheets[0], rows), nil
}
