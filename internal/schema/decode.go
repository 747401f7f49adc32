package schema

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/sqlerr"
)

// Decode reads a JSON schema document, preserving declared property order.
func Decode(raw bson.Raw) (*Node, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, fmt.Errorf("%w: read json schema: %v", sqlerr.ErrInvalidInput, err)
	}
	node := &Node{}
	for _, elem := range elems {
		value := elem.Value()
		switch elem.Key() {
		case "bsonType":
			types, err := stringList(value)
			if err != nil {
				return nil, fmt.Errorf("bsonType: %w", err)
			}
			node.BSONTypes = types
		case "properties":
			doc, ok := value.DocumentOK()
			if !ok {
				return nil, sqlerr.Invalid("properties must be a document, got %s", value.Type)
			}
			props, err := doc.Elements()
			if err != nil {
				return nil, fmt.Errorf("%w: read properties: %v", sqlerr.ErrInvalidInput, err)
			}
			node.Properties = make([]Property, 0, len(props))
			for _, prop := range props {
				child, err := decodeValue(prop.Value())
				if err != nil {
					return nil, fmt.Errorf("property %q: %w", prop.Key(), err)
				}
				node.Properties = append(node.Properties, Property{Name: prop.Key(), Schema: child})
			}
		case "anyOf":
			branches, err := nodeList(value)
			if err != nil {
				return nil, fmt.Errorf("anyOf: %w", err)
			}
			node.AnyOf = branches
		case "required":
			required, err := stringList(value)
			if err != nil {
				return nil, fmt.Errorf("required: %w", err)
			}
			node.Required = required
		case "items":
			switch value.Type {
			case bson.TypeEmbeddedDocument:
				items, err := decodeValue(value)
				if err != nil {
					return nil, fmt.Errorf("items: %w", err)
				}
				node.Items = items
			case bson.TypeArray:
				branches, err := nodeList(value)
				if err != nil {
					return nil, fmt.Errorf("items: %w", err)
				}
				node.Items = &Node{Kind: KindAnyOf, AnyOf: branches}
			}
		case "additionalProperties":
			switch value.Type {
			case bson.TypeBoolean:
				node.AdditionalProperties = value.Boolean()
			case bson.TypeEmbeddedDocument:
				node.AdditionalProperties = true
			}
		}
	}
	node.Kind = classify(node)
	return node, nil
}

// DecodeJSON reads a JSON schema written as extended JSON.
func DecodeJSON(data []byte) (*Node, error) {
	var raw bson.Raw
	if err := bson.UnmarshalExtJSON(data, false, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse json schema: %v", sqlerr.ErrInvalidInput, err)
	}
	return Decode(raw)
}

func classify(node *Node) Kind {
	switch {
	case len(node.AnyOf) > 0:
		return KindAnyOf
	case len(node.BSONTypes) == 0:
		return KindAny
	case len(node.BSONTypes) > 1:
		for _, name := range node.BSONTypes {
			node.AnyOf = append(node.AnyOf, &Node{Kind: classifyName(name), BSONTypes: []string{name}})
		}
		return KindAnyOf
	default:
		return classifyName(node.BSONTypes[0])
	}
}

func classifyName(name string) Kind {
	switch name {
	case "object":
		return KindObject
	case "array":
		return KindArray
	default:
		return KindScalar
	}
}

func decodeValue(value bson.RawValue) (*Node, error) {
	doc, ok := value.DocumentOK()
	if !ok {
		return nil, sqlerr.Invalid("schema must be a document, got %s", value.Type)
	}
	return Decode(doc)
}

func nodeList(value bson.RawValue) ([]*Node, error) {
	arr, ok := value.ArrayOK()
	if !ok {
		return nil, sqlerr.Invalid("expected array, got %s", value.Type)
	}
	values, err := arr.Values()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sqlerr.ErrInvalidInput, err)
	}
	nodes := make([]*Node, 0, len(values))
	for _, v := range values {
		child, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, child)
	}
	return nodes, nil
}

func stringList(value bson.RawValue) ([]string, error) {
	if s, ok := value.StringValueOK(); ok {
		return []string{s}, nil
	}
	arr, ok := value.ArrayOK()
	if !ok {
		return nil, sqlerr.Invalid("expected string or array, got %s", value.Type)
	}
	values, err := arr.Values()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sqlerr.ErrInvalidInput, err)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.StringValueOK()
		if !ok {
			return nil, sqlerr.Invalid("expected string, got %s", v.Type)
		}
		out = append(out, s)
	}
	return out, nil
}

// SchemaResponse is the reply to the sqlGetResultSchema command.
type SchemaResponse struct {
	OK          float64
	Metadata    map[string]string
	Version     int
	Schema      *Node
	SelectOrder []ColumnRef
}

// DecodeSchemaResponse parses {ok, metadata, schema: {version, jsonSchema}, selectOrder}.
func DecodeSchemaResponse(raw bson.Raw) (SchemaResponse, error) {
	var resp SchemaResponse
	if ok, err := raw.LookupErr("ok"); err == nil {
		if f, isNum := number(ok); isNum {
			resp.OK = f
		}
	}
	if meta, err := raw.LookupErr("metadata"); err == nil {
		if doc, ok := meta.DocumentOK(); ok {
			resp.Metadata = map[string]string{}
			elems, err := doc.Elements()
			if err != nil {
				return SchemaResponse{}, fmt.Errorf("%w: read metadata: %v", sqlerr.ErrSerialization, err)
			}
			for _, elem := range elems {
				if s, ok := elem.Value().StringValueOK(); ok {
					resp.Metadata[elem.Key()] = s
				} else {
					resp.Metadata[elem.Key()] = elem.Value().String()
				}
			}
		}
	}
	versioned, err := raw.LookupErr("schema")
	if err != nil {
		return SchemaResponse{}, fmt.Errorf("%w: schema response has no schema", sqlerr.ErrSerialization)
	}
	versionedDoc, ok := versioned.DocumentOK()
	if !ok {
		return SchemaResponse{}, fmt.Errorf("%w: schema must be a document", sqlerr.ErrSerialization)
	}
	if version, err := versionedDoc.LookupErr("version"); err == nil {
		if v, ok := number(version); ok {
			resp.Version = int(v)
		}
	}
	jsonSchema, err := versionedDoc.LookupErr("jsonSchema")
	if err != nil {
		return SchemaResponse{}, fmt.Errorf("%w: schema response has no jsonSchema", sqlerr.ErrSerialization)
	}
	resp.Schema, err = decodeValue(jsonSchema)
	if err != nil {
		return SchemaResponse{}, err
	}
	if order, err := raw.LookupErr("selectOrder"); err == nil && order.Type == bson.TypeArray {
		resp.SelectOrder, err = DecodeSelectOrder(order)
		if err != nil {
			return SchemaResponse{}, err
		}
	}
	return resp, nil
}

// DecodeSelectOrder reads [[datasource, field], ...].
func DecodeSelectOrder(value bson.RawValue) ([]ColumnRef, error) {
	arr, ok := value.ArrayOK()
	if !ok {
		return nil, sqlerr.Invalid("selectOrder must be an array")
	}
	pairs, err := arr.Values()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sqlerr.ErrInvalidInput, err)
	}
	refs := make([]ColumnRef, 0, len(pairs))
	for _, pair := range pairs {
		parts, err := stringList(pair)
		if err != nil {
			return nil, fmt.Errorf("selectOrder: %w", err)
		}
		ref, err := NewColumnRef(parts)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func NewColumnRef(parts []string) (ColumnRef, error) {
	if len(parts) != 2 {
		return ColumnRef{}, sqlerr.Invalid("select order entry must be [datasource, field], got %d elements", len(parts))
	}
	return ColumnRef{Datasource: parts[0], Field: parts[1]}, nil
}

func number(value bson.RawValue) (float64, bool) {
	if v, ok := value.Int32OK(); ok {
		return float64(v), true
	}
	if v, ok := value.Int64OK(); ok {
		return float64(v), true
	}
	if v, ok := value.DoubleOK(); ok {
		return v, true
	}
	return 0, false
}
