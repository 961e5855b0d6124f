package parser

import (
	"strings"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// Validate 逐行校验：缺编码、缺名称、每箱件数非数字。
// 行号取文件中的行号，缺失时按数据行序号 + 2 推算。
func Validate(rows []model.RowRecord, mapping *model.ColumnMapping) []ValidationWarning {
	codeHeader, hasCode := firstHeader(mapping, model.FieldCode)
	nameHeader, hasName := firstHeader(mapping, model.FieldName)
	unitsHeader, hasUnits := firstHeader(mapping, model.FieldUnitsPerBox)

	var warnings []ValidationWarning
	for i, row := range rows {
		rowNum := row.SourceRow(i)

		if !hasCode || strings.TrimSpace(row.Value(codeHeader)) == "" {
			warnings = append(warnings, ValidationWarning{Row: rowNum, Kind: WarningMissingCode, Field: model.FieldCode})
		}
		if !hasName || strings.TrimSpace(row.Value(nameHeader)) == "" {
			warnings = append(warnings, ValidationWarning{Row: rowNum, Kind: WarningMissingName, Field: model.FieldName})
		}
		if hasUnits {
			v := strings.TrimSpace(row.Value(unitsHeader))
			if v != "" && !IsNumeric(v) {
				warnings = append(warnings, ValidationWarning{Row: rowNum, Kind: WarningUnitsNotNumber, Field: model.FieldUnitsPerBox})
			}
		}
	}
	return warnings
}

func firstHeader(mapping *model.ColumnMapping, field model.CanonicalField) (string, bool) {
	headers := mapping.HeadersFor(field)
	if len(headers) == 0 {
		return "", false
	}
	return headers[0], true
}
