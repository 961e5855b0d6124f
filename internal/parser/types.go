package parser

import (
	"fmt"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// WarningKind 校验警告类型
type WarningKind string

const (
	WarningMissingCode    WarningKind = "missing_code"
	WarningMissingName    WarningKind = "missing_name"
	WarningUnitsNotNumber WarningKind = "units_not_numeric"
)

// ValidationWarning 行级校验警告（不阻断导入，需用户确认）
type ValidationWarning struct {
	Row   int                  `json:"row"` // 1 起计，已计入表头行
	Kind  WarningKind          `json:"kind"`
	Field model.CanonicalField `json:"field"`
}

// String 界面显示文本
func (w ValidationWarning) String() string {
	switch w.Kind {
	case WarningMissingCode:
		return fmt.Sprintf("Fila %d: Falta el código del producto", w.Row)
	case WarningMissingName:
		return fmt.Sprintf("Fila %d: Falta el nombre del producto", w.Row)
	case WarningUnitsNotNumber:
		return fmt.Sprintf("Fila %d: \"Piezas por caja\" debe ser un número", w.Row)
	}
	return fmt.Sprintf("Fila %d: %s", w.Row, w.Kind)
}

// Messages 转为文本列表
func Messages(warnings []ValidationWarning) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}
