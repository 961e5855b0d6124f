package parser

import (
	"strings"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// FallbackRule 映射缺失时按列名关键词兜底识别字段（对折叠后的列名匹配）
type FallbackRule struct {
	Field    model.CanonicalField
	Contains []string // 任一子串命中
	Equals   []string // 或整体相等
	AllOf    []string // 且必须全部包含
	Excludes []string // 包含任一则排除
}

func (r FallbackRule) match(folded string) bool {
	if folded == "" || ContainsAny(folded, r.Excludes) {
		return false
	}
	for _, kw := range r.AllOf {
		if !strings.Contains(folded, kw) {
			return false
		}
	}
	if len(r.Contains) == 0 && len(r.Equals) == 0 {
		return len(r.AllOf) > 0
	}
	return ContainsAny(folded, r.Contains) || EqualsAny(folded, r.Equals)
}

// DefaultFallbackRules 默认兜底规则，按白名单字段各一条
func DefaultFallbackRules() []FallbackRule {
	return []FallbackRule{
		{Field: model.FieldCode, Contains: []string{"codigo"}, Equals: []string{"code"}, Excludes: []string{"barras"}},
		{Field: model.FieldName, Contains: []string{"nombre"}, Equals: []string{"name", "producto"}, Excludes: []string{"codigo"}},
		{Field: model.FieldCategory, Contains: []string{"categoria"}, Equals: []string{"category"}, Excludes: []string{"subcategor"}},
		{Field: model.FieldSubcategory, Contains: []string{"subcategoria"}, Equals: []string{"subcategory"}},
		{Field: model.FieldPresentation, Contains: []string{"presentacion"}, Equals: []string{"presentation"}},
		{Field: model.FieldLot, Contains: []string{"lote"}, Equals: []string{"lot", "batch"}},
		{Field: model.FieldUnitsPerBox, AllOf: []string{"piezas", "caja"}},
	}
}

// Extractor 字段抽取器
type Extractor struct {
	rules []FallbackRule
}

// NewExtractor 创建字段抽取器；rules 为 nil 时使用默认兜底规则
func NewExtractor(rules []FallbackRule) *Extractor {
	if rules == nil {
		rules = DefaultFallbackRules()
	}
	return &Extractor{rules: rules}
}

// Extract 将一行转为规范记录。
// 主流程按列顺序读取已映射的白名单字段，同一字段多列时最左列优先；
// 之后对仍为空的白名单字段按列名关键词兜底，取第一个非空值。
// 名称始终不会以编码代替。
func (e *Extractor) Extract(row model.RowRecord, mapping *model.ColumnMapping) *model.CanonicalRecord {
	rec := &model.CanonicalRecord{}
	assigned := make(map[model.CanonicalField]bool, len(model.AcceptedFields))

	for _, cell := range row.Cells {
		field := mapping.Field(cell.Header)
		if !field.Accepted() {
			rec.Extra = append(rec.Extra, cell)
			continue
		}
		if assigned[field] {
			continue
		}
		assigned[field] = true
		setPrimary(rec, field, strings.TrimSpace(cell.Value))
	}

	for _, rule := range e.rules {
		if !rule.Field.Accepted() || isFilled(rec, rule.Field) {
			continue
		}
		for _, cell := range row.Cells {
			v := strings.TrimSpace(cell.Value)
			if v == "" || !rule.match(FoldText(cell.Header)) {
				continue
			}
			if setFallback(rec, rule.Field, v) {
				break
			}
		}
	}

	if rec.Name == nil {
		empty := ""
		rec.Name = &empty
	}
	return rec
}

func setPrimary(rec *model.CanonicalRecord, field model.CanonicalField, v string) {
	if field == model.FieldUnitsPerBox {
		if v == "" {
			zero := 0
			rec.UnitsPerBox = &zero
			return
		}
		if n, ok := ParseLeadingInt(v); ok {
			rec.UnitsPerBox = &n
		}
		return
	}

	slot := rec.StringSlot(field)
	if slot == nil {
		return
	}
	switch field {
	case model.FieldCategory, model.FieldSubcategory, model.FieldPresentation:
		*slot = &v
	default:
		if v != "" {
			*slot = &v
		}
	}
}

func setFallback(rec *model.CanonicalRecord, field model.CanonicalField, v string) bool {
	if field == model.FieldUnitsPerBox {
		n, ok := ParseLeadingInt(v)
		if !ok {
			return false
		}
		rec.UnitsPerBox = &n
		return true
	}
	slot := rec.StringSlot(field)
	if slot == nil {
		return false
	}
	*slot = &v
	return true
}

// isFilled 字段已有非空值；每箱件数为 0 时仍允许兜底
func isFilled(rec *model.CanonicalRecord, field model.CanonicalField) bool {
	if field == model.FieldUnitsPerBox {
		return rec.UnitsPerBox != nil && *rec.UnitsPerBox != 0
	}
	return rec.IsSet(field)
}
