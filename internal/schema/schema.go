package schema

import (
	"fmt"
	"sort"

	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/typeinfo"
)

type Kind int

const (
	KindAny Kind = iota
	KindScalar
	KindObject
	KindArray
	KindAnyOf
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindAnyOf:
		return "anyOf"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Nullability codes, matching the JDBC columnNoNulls/columnNullable/columnNullableUnknown values.
type Nullability int

const (
	NoNulls         Nullability = 0
	Nullable        Nullability = 1
	NullableUnknown Nullability = 2
)

type Property struct {
	Name   string
	Schema *Node
}

// Node is one JSON schema node of a result schema. Properties keep their
// declared order; a nil Properties slice means the node declared none.
type Node struct {
	Kind                 Kind
	BSONTypes            []string
	Properties           []Property
	Required             []string
	Items                *Node
	AdditionalProperties bool
	AnyOf                []*Node
}

// ColumnRef names one output column as (data source, field).
type ColumnRef struct {
	Datasource string
	Field      string
}

func (n *Node) IsObject() bool {
	return n != nil && n.Kind == KindObject && n.Properties != nil
}

func (n *Node) Property(name string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// PropertyNames lists property names in declared order, or sorted when sorted is set.
func (n *Node) PropertyNames(sorted bool) []string {
	names := make([]string, 0, len(n.Properties))
	for _, p := range n.Properties {
		names = append(names, p.Name)
	}
	if sorted {
		sort.Strings(names)
	}
	return names
}

func (n *Node) IsRequired(name string) bool {
	for _, r := range n.Required {
		if r == name {
			return true
		}
	}
	return false
}

// TypeInfo resolves the column kind. Null branches of an anyOf are ignored;
// any remaining mix of kinds resolves to the open kind.
func (n *Node) TypeInfo() (typeinfo.Info, error) {
	if n == nil {
		return typeinfo.Any(), nil
	}
	switch n.Kind {
	case KindAny:
		return typeinfo.Any(), nil
	case KindObject:
		return typeinfo.ByName("object")
	case KindArray:
		return typeinfo.ByName("array")
	case KindScalar:
		return typeinfo.ByName(n.BSONTypes[0])
	case KindAnyOf:
		var resolved []typeinfo.Info
		seen := map[string]bool{}
		for _, branch := range n.AnyOf {
			info, err := branch.TypeInfo()
			if err != nil {
				return typeinfo.Info{}, err
			}
			if info.Name == "null" || seen[info.Name] {
				continue
			}
			seen[info.Name] = true
			resolved = append(resolved, info)
		}
		switch len(resolved) {
		case 0:
			return typeinfo.ByName("null")
		case 1:
			return resolved[0], nil
		default:
			return typeinfo.Any(), nil
		}
	}
	return typeinfo.Info{}, fmt.Errorf("unknown schema kind %s", n.Kind)
}

// IsNullable reports whether a value matching n may be null.
func (n *Node) IsNullable() bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case KindAny:
		return true
	case KindScalar:
		return n.BSONTypes[0] == "null"
	case KindAnyOf:
		for _, branch := range n.AnyOf {
			if branch.IsNullable() {
				return true
			}
		}
	}
	return false
}

// ColumnNullability applies to a property of an object node: columns that are
// not required, or whose schema admits null, are nullable.
func (n *Node) ColumnNullability(field string) Nullability {
	column, ok := n.Property(field)
	if !ok {
		return NullableUnknown
	}
	if column.Kind == KindAny || !n.IsRequired(field) || column.IsNullable() {
		return Nullable
	}
	return NoNulls
}

// Result is the schema of a result set plus the optional explicit column order.
type Result struct {
	Root  *Node
	Order []ColumnRef
}

// NewResult validates that root is an object schema with properties.
func NewResult(root *Node, order []ColumnRef) (Result, error) {
	if !root.IsObject() {
		return Result{}, sqlerr.Invalid("result set json schema must be object with properties")
	}
	return Result{Root: root, Order: order}, nil
}

// Datasource returns the named data source node, validated as an object.
func (r Result) Datasource(name string) (*Node, error) {
	node, ok := r.Root.Property(name)
	if !ok {
		return nil, sqlerr.Invalid("data source %q is not in the result schema", name)
	}
	if !node.IsObject() {
		return nil, sqlerr.Invalid("data source %q json schema must be object with properties", name)
	}
	return node, nil
}
