package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

// SynonymTable 规范字段 → 列名同义词（子串）
type SynonymTable map[model.CanonicalField][]string

// DefaultSynonyms 默认同义词表
func DefaultSynonyms() SynonymTable {
	return SynonymTable{
		model.FieldCode:           {"código", "codigo", "code", "sku"},
		model.FieldName:           {"nombre", "name", "producto", "descripción", "descripcion"},
		model.FieldPresentation:   {"presentación", "presentacion", "presentation"},
		model.FieldCategory:       {"categoría", "categoria", "category"},
		model.FieldSubcategory:    {"subcategoría", "subcategoria", "subcategory"},
		model.FieldLot:            {"lote", "lot", "batch"},
		model.FieldUnitsPerBox:    {"piezas por caja", "piezas_por_caja", "piezas/caja", "pieces per box"},
		model.FieldDescription:    {"descripción", "descripcion", "description"},
		model.FieldPrice:          {"precio", "price"},
		model.FieldPurchasePrice:  {"precio compra", "precio_compra", "cost", "costo"},
		model.FieldSupplier:       {"proveedor", "supplier", "vendor"},
		model.FieldBrand:          {"marca", "brand"},
		model.FieldBarcode:        {"código de barras", "codigo_barras", "barcode", "ean"},
		model.FieldSKU:            {"sku"},
		model.FieldMinStock:       {"stock mínimo", "stock_minimo", "min stock", "minimo"},
		model.FieldMaxStock:       {"stock máximo", "stock_maximo", "max stock", "maximo"},
		model.FieldLocation:       {"ubicación", "ubicacion", "location", "ubic"},
		model.FieldUnitOfMeasure:  {"unidad de medida", "unidad_medida", "unit"},
		model.FieldWeight:         {"peso", "weight"},
		model.FieldDimensions:     {"dimensiones", "dimensions"},
		model.FieldExpirationDate: {"fecha vencimiento", "fecha_vencimiento", "expiry", "vencimiento"},
		model.FieldActive:         {"activo", "active", "enabled"},
	}
}

type synonymFile struct {
	Synonyms map[string][]string `toml:"synonyms"`
}

// LoadSynonyms 从 TOML 文件读取同义词表，文件中的字段覆盖默认表中的同名字段
//
//	[synonyms]
//	code = ["código", "clave"]
func LoadSynonyms(path string) (SynonymTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var f synonymFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse synonyms file: %w", err)
	}

	table := DefaultSynonyms()
	for name, list := range f.Synonyms {
		field, ok := model.ParseCanonicalField(name)
		if !ok || field == model.FieldUnmapped {
			return nil, fmt.Errorf("unknown canonical field in synonyms file: %q", name)
		}
		table[field] = list
	}
	return table, nil
}

// Classifier 列分类器
type Classifier struct {
	folded map[model.CanonicalField][]string
}

// NewClassifier 创建列分类器；table 为 nil 时使用默认同义词表
func NewClassifier(table SynonymTable) *Classifier {
	if table == nil {
		table = DefaultSynonyms()
	}
	folded := make(map[model.CanonicalField][]string, len(table))
	for field, list := range table {
		for _, syn := range list {
			if s := FoldText(syn); s != "" {
				folded[field] = append(folded[field], s)
			}
		}
	}
	return &Classifier{folded: folded}
}

// Classify 为每个表头推荐规范字段；
// 按字段声明顺序尝试，表头包含同义词或同义词包含表头即命中，先命中者优先。
// 未命中的表头映射为未映射并列入 unmapped。
func (c *Classifier) Classify(headers []string) (*model.ColumnMapping, []string) {
	mapping := model.NewColumnMapping()
	var unmapped []string

	for _, header := range headers {
		if mapping.Has(header) {
			continue
		}
		field := c.classifyHeader(header)
		mapping.Set(header, field)
		if field == model.FieldUnmapped {
			unmapped = append(unmapped, header)
		}
	}
	return mapping, unmapped
}

func (c *Classifier) classifyHeader(header string) model.CanonicalField {
	h := FoldText(header)
	if h == "" {
		return model.FieldUnmapped
	}
	for _, field := range model.CanonicalFields {
		for _, syn := range c.folded[field] {
			if strings.Contains(h, syn) || strings.Contains(syn, h) {
				return field
			}
		}
	}
	return model.FieldUnmapped
}
