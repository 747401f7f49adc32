package metadata

import (
	"fmt"

	"github.com/docsql/docsql/internal/schema"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/typeinfo"
)

// Column describes one output column of a result set.
type Column struct {
	Datasource  string
	Name        string
	Info        typeinfo.Info
	Nullability schema.Nullability
}

// IsPolymorphic reports whether the column holds values of any kind.
func (c Column) IsPolymorphic() bool {
	return c.Info.IsAny()
}

type position struct {
	datasource string
	index      int
}

// Catalog is the ordered, immutable column list of a result set.
type Catalog struct {
	columns []Column
	labels  map[string][]position
}

// New builds a catalog from a result schema. Without an explicit order, data
// sources are visited in lexicographic order and their fields either sorted or
// in declared order.
func New(result schema.Result, sortFields bool) (*Catalog, error) {
	if !result.Root.IsObject() {
		return nil, sqlerr.Invalid("result set json schema must be object with properties")
	}
	c := &Catalog{labels: map[string][]position{}}
	if len(result.Order) == 0 {
		datasources := result.Root.PropertyNames(true)
		for _, name := range datasources {
			node, err := result.Datasource(name)
			if err != nil {
				return nil, err
			}
			for _, field := range node.PropertyNames(sortFields) {
				if err := c.add(name, field, node); err != nil {
					return nil, err
				}
			}
		}
		return c, nil
	}
	for _, ref := range result.Order {
		node, err := result.Datasource(ref.Datasource)
		if err != nil {
			return nil, err
		}
		if err := c.add(ref.Datasource, ref.Field, node); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewFromSchema validates root and builds the catalog.
func NewFromSchema(root *schema.Node, order []schema.ColumnRef, sortFields bool) (*Catalog, error) {
	result, err := schema.NewResult(root, order)
	if err != nil {
		return nil, err
	}
	return New(result, sortFields)
}

func (c *Catalog) add(datasource, field string, node *schema.Node) error {
	column, ok := node.Property(field)
	if !ok {
		return sqlerr.Invalid("field %q is not in data source %q", field, datasource)
	}
	info, err := column.TypeInfo()
	if err != nil {
		return fmt.Errorf("column %s.%s: %w", datasource, field, err)
	}
	c.columns = append(c.columns, Column{
		Datasource:  datasource,
		Name:        field,
		Info:        info,
		Nullability: node.ColumnNullability(field),
	})
	c.labels[field] = append(c.labels[field], position{datasource: datasource, index: len(c.columns) - 1})
	return nil
}

func (c *Catalog) ColumnCount() int {
	return len(c.columns)
}

func (c *Catalog) checkBounds(i int) error {
	if i < 1 || i > len(c.columns) {
		return &sqlerr.IndexError{Index: i, Count: len(c.columns)}
	}
	return nil
}

// Column returns the column at 1-based index i.
func (c *Catalog) Column(i int) (Column, error) {
	if err := c.checkBounds(i); err != nil {
		return Column{}, err
	}
	return c.columns[i-1], nil
}

// Columns returns a copy of all columns in output order.
func (c *Catalog) Columns() []Column {
	out := make([]Column, len(c.columns))
	copy(out, c.columns)
	return out
}

// Index returns the 0-based position of the only column named label.
func (c *Catalog) Index(label string) (int, error) {
	positions, ok := c.labels[label]
	if !ok {
		return 0, fmt.Errorf("%w: column label %q not found", sqlerr.ErrColumnNotFound, label)
	}
	if len(positions) > 1 {
		return 0, &sqlerr.AmbiguousColumnError{Label: label}
	}
	return positions[0].index, nil
}

// Datasource returns the data source owning the only column named label.
func (c *Catalog) Datasource(label string) (string, error) {
	index, err := c.Index(label)
	if err != nil {
		return "", err
	}
	return c.columns[index].Datasource, nil
}
