package model

import "strings"

// CanonicalRecord 一行数据抽取后的规范记录
// nil 表示字段缺失（发送为 null），非 nil 的空串表示明确为空
type CanonicalRecord struct {
	Code         *string `json:"code"`
	Name         *string `json:"name"`
	Presentation *string `json:"presentation"`
	Category     *string `json:"category"`
	Subcategory  *string `json:"subcategory"`
	Lot          *string `json:"lot"`
	UnitsPerBox  *int    `json:"unitsPerBox"`

	// Extra 未写入后端的其余列（非白名单字段或未映射列）
	Extra []Cell `json:"extra,omitempty"`
}

// CodeValue 去空白后的编码，缺失时为空串
func (r *CanonicalRecord) CodeValue() string {
	if r == nil || r.Code == nil {
		return ""
	}
	return strings.TrimSpace(*r.Code)
}

// NameValue 名称，缺失时为空串
func (r *CanonicalRecord) NameValue() string {
	if r == nil || r.Name == nil {
		return ""
	}
	return *r.Name
}

// StringSlot 返回文本字段的存储位置；unitsPerBox 与非白名单字段返回 nil
func (r *CanonicalRecord) StringSlot(f CanonicalField) **string {
	switch f {
	case FieldCode:
		return &r.Code
	case FieldName:
		return &r.Name
	case FieldPresentation:
		return &r.Presentation
	case FieldCategory:
		return &r.Category
	case FieldSubcategory:
		return &r.Subcategory
	case FieldLot:
		return &r.Lot
	}
	return nil
}

// IsSet 字段已存在且非空白
func (r *CanonicalRecord) IsSet(f CanonicalField) bool {
	if f == FieldUnitsPerBox {
		return r.UnitsPerBox != nil
	}
	slot := r.StringSlot(f)
	if slot == nil || *slot == nil {
		return false
	}
	return strings.TrimSpace(**slot) != ""
}

// Product 库存后端中的商品
type Product struct {
	ID           int64   `json:"id"`
	Code         string  `json:"codigo"`
	Name         string  `json:"nombre"`
	Presentation string  `json:"presentacion"`
	Category     string  `json:"categoria"`
	Subcategory  string  `json:"subcategoria"`
	UnitsPerBox  int     `json:"piezas_por_caja"`
	Lot          *string `json:"lote"`
	InventoryID  int64   `json:"inventario_id,omitempty"`
}

// ProductIndex 按编码精确匹配的现有商品索引，同编码时先出现者优先
type ProductIndex map[string]Product

// NewProductIndex 从商品列表构建索引
func NewProductIndex(products []Product) ProductIndex {
	idx := make(ProductIndex, len(products))
	for _, p := range products {
		if _, ok := idx[p.Code]; ok {
			continue
		}
		idx[p.Code] = p
	}
	return idx
}

// Lookup 按编码查找
func (idx ProductIndex) Lookup(code string) (Product, bool) {
	p, ok := idx[code]
	return p, ok
}
