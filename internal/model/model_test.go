package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRowRecord_PadsAndPrefersLeftmost(t *testing.T) {
	t.Parallel()

	row := NewRowRecord(2, []string{"Código", "Nombre", "Código"}, []string{"A1"})
	if len(row.Cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(row.Cells))
	}
	if v, ok := row.Get("Código"); !ok || v != "A1" {
		t.Fatalf("expected left-most value A1, got %q %v", v, ok)
	}
	if row.Value("Nombre") != "" || row.Value("Lote") != "" {
		t.Fatalf("padded and missing cells should read as empty")
	}

	row = NewRowRecord(3, []string{"a", "b"}, []string{"1", "2", "3"})
	if len(row.Cells) != 2 {
		t.Fatalf("long rows should be truncated to header width, got %d", len(row.Cells))
	}
	if NewRowRecord(4, []string{"a"}, []string{"   "}).IsBlank() != true {
		t.Fatalf("whitespace-only row should be blank")
	}

	data, err := json.Marshal(NewRowRecord(2, []string{"b", "a", "b"}, []string{"1", "2", "3"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"b":"1","a":"2"}` {
		t.Fatalf("unexpected json: %s", data)
	}
}

func TestColumnMapping_JSONAndLookup(t *testing.T) {
	t.Parallel()

	m := NewColumnMapping()
	m.Set("Código", FieldCode)
	m.Set("Clave", FieldCode)
	m.Set("Notas", FieldUnmapped)
	m.Set("Código", FieldCode)

	if m.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", m.Len())
	}
	if got := m.HeadersFor(FieldCode); len(got) != 2 || got[0] != "Código" {
		t.Fatalf("unexpected headers for code: %v", got)
	}
	if m.HasField(FieldName) || m.Field("Notas") != FieldUnmapped || m.Has("Precio") {
		t.Fatalf("unexpected lookups")
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ColumnMapping
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Field("Clave") != FieldCode || back.Len() != 3 {
		t.Fatalf("mapping not preserved: %s", data)
	}

	if err := json.Unmarshal([]byte(`[{"header":"x","field":"color"}]`), &back); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestCanonicalField_AcceptedAndParse(t *testing.T) {
	t.Parallel()

	for _, f := range AcceptedFields {
		if !f.Accepted() || !f.Valid() {
			t.Fatalf("%s should be accepted and valid", f)
		}
	}
	if FieldPrice.Accepted() {
		t.Fatalf("price is not written to the backend")
	}
	if f, ok := ParseCanonicalField("UnitsPerBox"); !ok || f != FieldUnitsPerBox {
		t.Fatalf("case-insensitive parse failed: %v %v", f, ok)
	}
	if f, ok := ParseCanonicalField("unmapped"); !ok || f != FieldUnmapped {
		t.Fatalf("unmapped parse failed")
	}
	if _, ok := ParseCanonicalField("color"); ok {
		t.Fatalf("unknown field should not parse")
	}
	if FieldUnitsPerBox.Label() != "Piezas por caja" {
		t.Fatalf("unexpected label: %s", FieldUnitsPerBox.Label())
	}
}

func TestParseImportMode(t *testing.T) {
	t.Parallel()

	cases := map[string]ImportMode{
		"crear":           ModeCreateOnly,
		"createOnly":      ModeCreateOnly,
		"Actualizar":      ModeUpdateOnly,
		"updateOnly":      ModeUpdateOnly,
		"":                ModeCreateAndUpdate,
		"createAndUpdate": ModeCreateAndUpdate,
	}
	for in, want := range cases {
		got, err := ParseImportMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseImportMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseImportMode("borrar"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestProductIndex_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	idx := NewProductIndex([]Product{{ID: 1, Code: "A"}, {ID: 2, Code: "A"}, {ID: 3, Code: "B"}})
	if p, ok := idx.Lookup("A"); !ok || p.ID != 1 {
		t.Fatalf("expected first A, got %+v", p)
	}
	if _, ok := idx.Lookup("a"); ok {
		t.Fatalf("lookup must be exact")
	}
}

func TestImportRun_Summary(t *testing.T) {
	t.Parallel()

	run := &ImportRun{Succeeded: 5, Failed: 3, Errors: []string{"e1", "e2", "e3"}}
	if got := run.Summary(10); got != "5 procesados, 3 errores\ne1\ne2\ne3" {
		t.Fatalf("unexpected summary: %q", got)
	}
	got := run.Summary(2)
	if !strings.HasSuffix(got, "\n... y 1 errores más") || strings.Contains(got, "e3") {
		t.Fatalf("unexpected truncated summary: %q", got)
	}
	if (&ImportRun{}).Summary(10) != "0 procesados, 0 errores" {
		t.Fatalf("unexpected empty summary")
	}
}
