package parser

import (
	"fmt"
	"io"

	"github.com/extrame/xls"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// parseXLS 读取旧版 .xls（BIFF8）的第一个 Sheet
func parseXLS(r io.ReadSeeker) (table *model.SourceTable, err error) {
	// extrame/xls 遇到损坏的 BIFF 记录时会 panic
	defer func() {
		if rec := recover(); rec != nil {
			table, err = nil, fmt.Errorf("failed to parse xls: %v", rec)
		}
	}()

	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrEmptyFile
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyFile
	}

	grid := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		last := row.LastCol()
		cells := make([]string, 0, last)
		for j := 0; j < last; j++ {
			cells = append(cells, row.Col(j))
		}
		grid = append(grid, cells)
	}
	return buildSpreadsheetTable(sheet.Name, grid), nil
}
