package model

import "strings"

// CanonicalField 系统规范字段
type CanonicalField string

const (
	FieldUnmapped       CanonicalField = ""
	FieldCode           CanonicalField = "code"
	FieldName           CanonicalField = "name"
	FieldPresentation   CanonicalField = "presentation"
	FieldCategory       CanonicalField = "category"
	FieldSubcategory    CanonicalField = "subcategory"
	FieldLot            CanonicalField = "lot"
	FieldUnitsPerBox    CanonicalField = "unitsPerBox"
	FieldDescription    CanonicalField = "description"
	FieldPrice          CanonicalField = "price"
	FieldPurchasePrice  CanonicalField = "purchasePrice"
	FieldSupplier       CanonicalField = "supplier"
	FieldBrand          CanonicalField = "brand"
	FieldBarcode        CanonicalField = "barcode"
	FieldSKU            CanonicalField = "sku"
	FieldMinStock       CanonicalField = "minStock"
	FieldMaxStock       CanonicalField = "maxStock"
	FieldLocation       CanonicalField = "location"
	FieldUnitOfMeasure  CanonicalField = "unitOfMeasure"
	FieldWeight         CanonicalField = "weight"
	FieldDimensions     CanonicalField = "dimensions"
	FieldExpirationDate CanonicalField = "expirationDate"
	FieldActive         CanonicalField = "active"
)

// CanonicalFields 规范字段的声明顺序，列分类时按此顺序匹配，先匹配者优先
var CanonicalFields = []CanonicalField{
	FieldCode,
	FieldName,
	FieldPresentation,
	FieldCategory,
	FieldSubcategory,
	FieldLot,
	FieldUnitsPerBox,
	FieldDescription,
	FieldPrice,
	FieldPurchasePrice,
	FieldSupplier,
	FieldBrand,
	FieldBarcode,
	FieldSKU,
	FieldMinStock,
	FieldMaxStock,
	FieldLocation,
	FieldUnitOfMeasure,
	FieldWeight,
	FieldDimensions,
	FieldExpirationDate,
	FieldActive,
}

// AcceptedFields 允许写入库存后端的字段
var AcceptedFields = []CanonicalField{
	FieldCode,
	FieldName,
	FieldPresentation,
	FieldCategory,
	FieldSubcategory,
	FieldUnitsPerBox,
	FieldLot,
}

// Accepted 是否属于写入白名单
func (f CanonicalField) Accepted() bool {
	for _, a := range AcceptedFields {
		if a == f {
			return true
		}
	}
	return false
}

// Valid 是否为已声明的规范字段
func (f CanonicalField) Valid() bool {
	for _, c := range CanonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

// Label 字段的界面显示名（西班牙语）
func (f CanonicalField) Label() string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}

var fieldLabels = map[CanonicalField]string{
	FieldCode:           "Código",
	FieldName:           "Nombre",
	FieldPresentation:   "Presentación",
	FieldCategory:       "Categoría",
	FieldSubcategory:    "Subcategoría",
	FieldLot:            "Lote",
	FieldUnitsPerBox:    "Piezas por caja",
	FieldDescription:    "Descripción",
	FieldPrice:          "Precio",
	FieldPurchasePrice:  "Precio de compra",
	FieldSupplier:       "Proveedor",
	FieldBrand:          "Marca",
	FieldBarcode:        "Código de barras",
	FieldSKU:            "SKU",
	FieldMinStock:       "Stock mínimo",
	FieldMaxStock:       "Stock máximo",
	FieldLocation:       "Ubicación",
	FieldUnitOfMeasure:  "Unidad de medida",
	FieldWeight:         "Peso",
	FieldDimensions:     "Dimensiones",
	FieldExpirationDate: "Fecha de vencimiento",
	FieldActive:         "Activo",
}

// ParseCanonicalField 解析字段名；空串或 "unmapped" 表示不映射
func ParseCanonicalField(s string) (CanonicalField, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unmapped") {
		return FieldUnmapped, true
	}
	for _, c := range CanonicalFields {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return FieldUnmapped, false
}
