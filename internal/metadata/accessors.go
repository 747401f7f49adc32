package metadata

import (
	"github.com/docsql/docsql/internal/schema"
	"github.com/docsql/docsql/internal/typeinfo"
)

func (c *Catalog) ColumnName(i int) (string, error) {
	column, err := c.Column(i)
	return column.Name, err
}

// ColumnLabel is always the column name; results carry no aliases of their own.
func (c *Catalog) ColumnLabel(i int) (string, error) {
	return c.ColumnName(i)
}

func (c *Catalog) TableName(i int) (string, error) {
	column, err := c.Column(i)
	return column.Datasource, err
}

func (c *Catalog) CatalogName(i int) (string, error) {
	return "", c.checkBounds(i)
}

func (c *Catalog) SchemaName(i int) (string, error) {
	return "", c.checkBounds(i)
}

func (c *Catalog) Nullable(i int) (schema.Nullability, error) {
	column, err := c.Column(i)
	if err != nil {
		return schema.NullableUnknown, err
	}
	return column.Nullability, nil
}

func (c *Catalog) ColumnType(i int) (typeinfo.SQLType, error) {
	column, err := c.Column(i)
	if err != nil {
		return typeinfo.Other, err
	}
	return column.Info.SQLType, nil
}

func (c *Catalog) ColumnTypeName(i int) (string, error) {
	column, err := c.Column(i)
	return column.Info.Name, err
}

func (c *Catalog) ColumnClassName(i int) (string, error) {
	column, err := c.Column(i)
	return column.Info.ClassName(), err
}

func (c *Catalog) DisplaySize(i int) (int, error) {
	column, err := c.Column(i)
	if err != nil || column.IsPolymorphic() {
		return typeinfo.UnknownLength, err
	}
	return column.Info.DisplaySize, nil
}

func (c *Catalog) Precision(i int) (int, error) {
	column, err := c.Column(i)
	if err != nil || column.IsPolymorphic() {
		return typeinfo.UnknownLength, err
	}
	return column.Info.Precision, nil
}

func (c *Catalog) Scale(i int) (int, error) {
	column, err := c.Column(i)
	if err != nil || column.IsPolymorphic() {
		return typeinfo.UnknownLength, err
	}
	return column.Info.Scale, nil
}

func (c *Catalog) IsCaseSensitive(i int) (bool, error) {
	column, err := c.Column(i)
	if err != nil {
		return false, err
	}
	return column.IsPolymorphic() || column.Info.CaseSensitive, nil
}

func (c *Catalog) IsSigned(i int) (bool, error) {
	column, err := c.Column(i)
	if err != nil {
		return false, err
	}
	return column.IsPolymorphic() || column.Info.Signed, nil
}

func (c *Catalog) IsAutoIncrement(i int) (bool, error) {
	return false, c.checkBounds(i)
}

func (c *Catalog) IsSearchable(i int) (bool, error) {
	if err := c.checkBounds(i); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Catalog) IsCurrency(i int) (bool, error) {
	return false, c.checkBounds(i)
}

func (c *Catalog) IsReadOnly(i int) (bool, error) {
	if err := c.checkBounds(i); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Catalog) IsWritable(i int) (bool, error) {
	return false, c.checkBounds(i)
}

func (c *Catalog) IsDefinitelyWritable(i int) (bool, error) {
	return false, c.checkBounds(i)
}
