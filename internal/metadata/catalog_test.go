package metadata

import (
	"errors"
	"reflect"
	"testing"

	"github.com/docsql/docsql/internal/schema"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/typeinfo"
)

const twoSourceSchema = `{
  "bsonType": "object",
  "properties": {
    "foo": {
      "bsonType": "object",
      "required": ["c", "d", "b", "dup"],
      "properties": {
        "c": {"bsonType": "int"},
        "anyOfStrOrInt": {"anyOf": [{"bsonType": "string"}, {"bsonType": "int"}]},
        "d": {"bsonType": "double"},
        "b": {"bsonType": "string"},
        "vec": {"bsonType": "array", "items": {"bsonType": "int"}},
        "null": {"bsonType": "null"},
        "doc": {"bsonType": "object", "properties": {}},
        "dup": {"bsonType": "long"}
      }
    },
    "all": {
      "bsonType": "object",
      "required": ["a"],
      "properties": {
        "a": {"bsonType": "int"},
        "binary": {"bsonType": "binData"},
        "str": {"bsonType": "string"},
        "dup": {"bsonType": "decimal"}
      }
    }
  }
}`

func newCatalog(t *testing.T, order []schema.ColumnRef, sortFields bool) *Catalog {
	t.Helper()
	root, err := schema.DecodeJSON([]byte(twoSourceSchema))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	catalog, err := NewFromSchema(root, order, sortFields)
	if err != nil {
		t.Fatalf("NewFromSchema() error = %v", err)
	}
	return catalog
}

func names(t *testing.T, c *Catalog) []string {
	t.Helper()
	out := make([]string, 0, c.ColumnCount())
	for i := 1; i <= c.ColumnCount(); i++ {
		name, err := c.ColumnName(i)
		if err != nil {
			t.Fatalf("ColumnName(%d) error = %v", i, err)
		}
		out = append(out, name)
	}
	return out
}

func TestDeclaredFieldOrder(t *testing.T) {
	c := newCatalog(t, nil, false)
	want := []string{"a", "binary", "str", "dup", "c", "anyOfStrOrInt", "d", "b", "vec", "null", "doc", "dup"}
	if got := names(t, c); !reflect.DeepEqual(got, want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
}

func TestSortedFieldOrder(t *testing.T) {
	c := newCatalog(t, nil, true)
	want := []string{"a", "binary", "dup", "str", "anyOfStrOrInt", "b", "c", "d", "doc", "dup", "null", "vec"}
	if got := names(t, c); !reflect.DeepEqual(got, want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	table, err := c.TableName(5)
	if err != nil || table != "foo" {
		t.Fatalf("TableName(5) = %q, %v", table, err)
	}
}

func TestExplicitOrderOverridesSchemaOrder(t *testing.T) {
	order := []schema.ColumnRef{
		{Datasource: "foo", Field: "b"},
		{Datasource: "all", Field: "a"},
		{Datasource: "foo", Field: "c"},
	}
	c := newCatalog(t, order, true)
	if got := names(t, c); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Fatalf("columns = %v", got)
	}
	if table, _ := c.TableName(2); table != "all" {
		t.Fatalf("TableName(2) = %q", table)
	}
}

func TestExplicitOrderUnknownFieldIsInvalid(t *testing.T) {
	root, _ := schema.DecodeJSON([]byte(twoSourceSchema))
	_, err := NewFromSchema(root, []schema.ColumnRef{{Datasource: "foo", Field: "zzz"}}, false)
	if !errors.Is(err, sqlerr.ErrInvalidInput) {
		t.Fatalf("NewFromSchema() error = %v", err)
	}
}

func TestAmbiguousLabelFailsButIndexesWork(t *testing.T) {
	c := newCatalog(t, nil, true)
	_, err := c.Index("dup")
	var ambiguous *sqlerr.AmbiguousColumnError
	if !errors.As(err, &ambiguous) || ambiguous.Label != "dup" {
		t.Fatalf("Index(dup) error = %v", err)
	}
	if errors.Is(err, sqlerr.ErrColumnNotFound) {
		t.Fatal("ambiguous error must be distinct from not found")
	}
	first, err := c.ColumnTypeName(3)
	if err != nil || first != "decimal" {
		t.Fatalf("ColumnTypeName(3) = %q, %v", first, err)
	}
	second, err := c.ColumnTypeName(10)
	if err != nil || second != "long" {
		t.Fatalf("ColumnTypeName(10) = %q, %v", second, err)
	}
}

func TestIndexNotFound(t *testing.T) {
	c := newCatalog(t, nil, true)
	if _, err := c.Index("nope"); !errors.Is(err, sqlerr.ErrColumnNotFound) {
		t.Fatalf("Index(nope) error = %v", err)
	}
	index, err := c.Index("str")
	if err != nil || index != 3 {
		t.Fatalf("Index(str) = %d, %v", index, err)
	}
}

func TestBoundsChecked(t *testing.T) {
	c := newCatalog(t, nil, true)
	for _, i := range []int{0, -1, c.ColumnCount() + 1} {
		if _, err := c.ColumnName(i); !errors.Is(err, sqlerr.ErrInvalidInput) {
			t.Fatalf("ColumnName(%d) error = %v", i, err)
		}
		if _, err := c.IsReadOnly(i); err == nil {
			t.Fatalf("IsReadOnly(%d) expected error", i)
		}
		if _, err := c.CatalogName(i); err == nil {
			t.Fatalf("CatalogName(%d) expected error", i)
		}
	}
}

func TestPolymorphicColumnAttributes(t *testing.T) {
	c := newCatalog(t, nil, true)
	const poly = 5 // foo.anyOfStrOrInt
	column, err := c.Column(poly)
	if err != nil {
		t.Fatalf("Column() error = %v", err)
	}
	if !column.IsPolymorphic() {
		t.Fatalf("column %s should be polymorphic", column.Name)
	}
	size, _ := c.DisplaySize(poly)
	precision, _ := c.Precision(poly)
	scale, _ := c.Scale(poly)
	if size != typeinfo.UnknownLength || precision != typeinfo.UnknownLength || scale != typeinfo.UnknownLength {
		t.Fatalf("size/precision/scale = %d/%d/%d", size, precision, scale)
	}
	caseSensitive, _ := c.IsCaseSensitive(poly)
	signed, _ := c.IsSigned(poly)
	if !caseSensitive || !signed {
		t.Fatalf("caseSensitive/signed = %v/%v", caseSensitive, signed)
	}
	sqlType, _ := c.ColumnType(poly)
	if sqlType != typeinfo.Other {
		t.Fatalf("ColumnType = %s", sqlType)
	}
}

func TestTypedColumnAttributes(t *testing.T) {
	c := newCatalog(t, nil, true)
	// foo.d is a double
	size, _ := c.DisplaySize(8)
	precision, _ := c.Precision(8)
	scale, _ := c.Scale(8)
	if size != 15 || precision != 15 || scale != 15 {
		t.Fatalf("double size/precision/scale = %d/%d/%d", size, precision, scale)
	}
	caseSensitive, _ := c.IsCaseSensitive(8)
	if caseSensitive {
		t.Fatal("double should not be case sensitive")
	}
	class, _ := c.ColumnClassName(8)
	if class != "float64" {
		t.Fatalf("ColumnClassName = %q", class)
	}
	label, _ := c.ColumnLabel(8)
	if label != "d" {
		t.Fatalf("ColumnLabel = %q", label)
	}
}

func TestNullability(t *testing.T) {
	c := newCatalog(t, nil, true)
	cases := map[int]schema.Nullability{
		1:  schema.NoNulls,  // all.a required int
		2:  schema.Nullable, // all.binary not required
		5:  schema.Nullable, // foo.anyOfStrOrInt
		7:  schema.NoNulls,  // foo.c required
		11: schema.Nullable, // foo.null
	}
	for index, want := range cases {
		got, err := c.Nullable(index)
		if err != nil {
			t.Fatalf("Nullable(%d) error = %v", index, err)
		}
		if got != want {
			t.Fatalf("Nullable(%d) = %d, want %d", index, got, want)
		}
	}
}

func TestRejectsNonObjectDatasource(t *testing.T) {
	root, err := schema.DecodeJSON([]byte(`{"bsonType":"object","properties":{"foo":{"bsonType":"string"}}}`))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if _, err := NewFromSchema(root, nil, false); !errors.Is(err, sqlerr.ErrInvalidInput) {
		t.Fatalf("NewFromSchema() error = %v", err)
	}
}

func TestDatasourceOfLabel(t *testing.T) {
	c := newCatalog(t, nil, false)
	if ds, err := c.Datasource("vec"); err != nil || ds != "foo" {
		t.Fatalf("Datasource(vec) = %q, %v", ds, err)
	}
	if _, err := c.Datasource("zzz"); !errors.Is(err, sqlerr.ErrColumnNotFound) {
		t.Fatalf("Datasource(zzz) error = %v", err)
	}
}
