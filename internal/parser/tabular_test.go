package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParse_CSVQuotedFieldsAndBlankRows(t *testing.T) {
	t.Parallel()

	input := "código,nombre,categoría,lote\n" +
		"\"A1\",\"Product, A\",Alimentos,L1\n" +
		"\n" +
		" , , , \n" +
		"B2, \"Say \"\"hi\"\"\",X,\n"

	table, err := Parse("productos.csv", strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	wantHeaders := []string{"código", "nombre", "categoría", "lote"}
	if strings.Join(table.Headers, "|") != strings.Join(wantHeaders, "|") {
		t.Fatalf("unexpected headers: %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(table.Rows))
	}
	if got := table.Rows[0].Value("nombre"); got != "Product, A" {
		t.Fatalf("quoted comma split: %q", got)
	}
	if got := table.Rows[1].Value("nombre"); got != `Say "hi"` {
		t.Fatalf("escaped quote: %q", got)
	}
	if got := table.Rows[1].Value("lote"); got != "" {
		t.Fatalf("expected blank lot, got %q", got)
	}
	if table.Format != "csv" || table.Encoding != "utf-8" {
		t.Fatalf("unexpected format/encoding: %s/%s", table.Format, table.Encoding)
	}
}

func TestParse_CSVSemicolonWindows1252(t *testing.T) {
	t.Parallel()

	input := []byte("c\xf3digo;nombre\nA1;Caf\xe9\n")
	table, err := ParseBytes(FormatCSV, input)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if table.Headers[0] != "código" {
		t.Fatalf("header not decoded: %q", table.Headers[0])
	}
	if got := table.Rows[0].Value("nombre"); got != "Café" {
		t.Fatalf("value not decoded: %q", got)
	}
	if table.Encoding != "windows-1252" {
		t.Fatalf("unexpected encoding: %s", table.Encoding)
	}
}

func TestParse_CSVShortRowsPadded(t *testing.T) {
	t.Parallel()

	table, err := Parse("a.csv", strings.NewReader("a,b,c\n1\n4,5,6,7\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(table.Rows[0].Cells) != 3 || table.Rows[0].Value("c") != "" {
		t.Fatalf("short row not padded: %+v", table.Rows[0])
	}
	if len(table.Rows[1].Cells) != 3 {
		t.Fatalf("long row not truncated: %+v", table.Rows[1])
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := Parse("inventario.pdf", strings.NewReader("x"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	if _, err := DetectFormat("INVENTARIO.CSV"); err != nil {
		t.Fatalf("uppercase extension rejected: %v", err)
	}
}

func TestParse_EmptyFile(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"codigo,nombre\n",
		"codigo,nombre\n,\n  ,  \n",
	}
	for _, in := range cases {
		if _, err := Parse("vacio.csv", strings.NewReader(in)); !errors.Is(err, ErrEmptyFile) {
			t.Fatalf("input %q: expected ErrEmptyFile, got %v", in, err)
		}
	}
}

func TestParse_XLSXFirstSheetOnly(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })

	rows := [][]interface{}{
		{"Código", "", "Categoría"},
		{"A1", "Prod A", "Cat"},
		{"", "", "solo tercera"},
		{"", "Prod B", ""},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	if _, err := f.NewSheet("Otra"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	if err := f.SetSheetRow("Otra", "A1", &[]interface{}{"x", "y"}); err != nil {
		t.Fatalf("set row: %v", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	table, err := Parse("inventario.xlsx", buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if table.Sheet != "Sheet1" {
		t.Fatalf("expected first sheet, got %s", table.Sheet)
	}
	if strings.Join(table.Headers, "|") != "Código|Columna2|Categoría" {
		t.Fatalf("unexpected headers: %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows after completeness filter, got %d", len(table.Rows))
	}
	if table.Rows[0].Value("Columna2") != "Prod A" {
		t.Fatalf("synthesized header lost value: %+v", table.Rows[0])
	}
	if table.Rows[1].Number != 4 || table.Rows[1].Value("Columna2") != "Prod B" {
		t.Fatalf("unexpected second row: %+v", table.Rows[1])
	}

	// 被过滤的第 3 行不影响后续行号
	warnings := Validate(table.Rows, mappingOf("Código", "code", "Columna2", "name"))
	if len(warnings) != 1 || warnings[0].String() != "Fila 4: Falta el código del producto" {
		t.Fatalf("unexpected warnings: %v", Messages(warnings))
	}
}

func TestParse_XLSCorruptInput(t *testing.T) {
	t.Parallel()

	if _, err := Parse("viejo.xls", strings.NewReader("not a workbook")); err == nil {
		t.Fatalf("expected error for corrupt xls")
	}
}

func TestParse_CSVUnclosedQuoteOnlyDamagesItsLine(t *testing.T) {
	t.Parallel()

	input := "código,nombre\nA1,\"Product A\nB2,Product B\nC3,Product C\n"
	table, err := ParseBytes(FormatCSV, []byte(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(table.Rows))
	}
	if got := table.Rows[0].Value("nombre"); got != "Product A" {
		t.Fatalf("unexpected name on damaged line: %q", got)
	}
	if table.Rows[1].Value("código") != "B2" || table.Rows[2].Value("nombre") != "Product C" {
		t.Fatalf("rows after the stray quote were not parsed: %+v", table.Rows[1:])
	}
	if len(table.Warnings) != 1 || !strings.HasPrefix(table.Warnings[0], "Fila 2:") {
		t.Fatalf("expected one warning for line 2, got %v", table.Warnings)
	}
}

func TestParse_CSVQuotedNewlineKeepsLineNumbers(t *testing.T) {
	t.Parallel()

	input := "código,nombre\n\nA1,\"Línea 1\nLínea 2\"\nB2,Tubo 12\"\nC3,Tubo 3/4\"\n"
	table, err := ParseBytes(FormatCSV, []byte(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(table.Rows) != 3 || len(table.Warnings) != 0 {
		t.Fatalf("unexpected rows=%d warnings=%v", len(table.Rows), table.Warnings)
	}
	if got := table.Rows[0].Value("nombre"); got != "Línea 1\nLínea 2" {
		t.Fatalf("quoted newline lost: %q", got)
	}
	if got := table.Rows[1].Value("nombre"); got != `Tubo 12"` {
		t.Fatalf("inch mark mangled: %q", got)
	}
	if table.Rows[0].Number != 3 || table.Rows[1].Number != 5 || table.Rows[2].Number != 6 {
		t.Fatalf("unexpected line numbers: %d %d %d", table.Rows[0].Number, table.Rows[1].Number, table.Rows[2].Number)
	}
}
