package parquet

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/docsql/docsql/internal/export"
	"github.com/docsql/docsql/internal/storage"
	"github.com/docsql/docsql/internal/typeinfo"
)

const ContentType = storage.ParquetContentType

// Sink encodes rows into an in-memory parquet file. Every column is optional.
type Sink struct {
	buf     *bytes.Buffer
	schema  *parquet.Schema
	writer  *parquet.Writer
	columns []export.Column
	// leaf column index per export column
	leaves []int
	rows   []parquet.Row
}

// batchSize bounds the rows buffered before they are handed to the writer.
const batchSize = 512

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Begin(_ context.Context, cols []export.Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("parquet export needs at least one column")
	}
	group := parquet.Group{}
	for _, col := range cols {
		if _, dup := group[col.Name]; dup {
			return fmt.Errorf("duplicate column %q", col.Name)
		}
		group[col.Name] = parquet.Optional(leafFor(col.Type))
	}
	s.schema = parquet.NewSchema("docsql_export", group)
	s.columns = cols
	s.leaves = make([]int, len(cols))
	for i, col := range cols {
		leaf, ok := s.schema.Lookup(col.Name)
		if !ok {
			return fmt.Errorf("column %q missing from parquet schema", col.Name)
		}
		s.leaves[i] = leaf.ColumnIndex
	}
	s.buf = bytes.NewBuffer(nil)
	s.writer = parquet.NewWriter(s.buf, s.schema)
	return nil
}

func leafFor(typ typeinfo.SQLType) parquet.Node {
	switch typ {
	case typeinfo.Bit, typeinfo.Boolean:
		return parquet.Leaf(parquet.BooleanType)
	case typeinfo.Integer:
		return parquet.Int(32)
	case typeinfo.BigInt:
		return parquet.Int(64)
	case typeinfo.Double:
		return parquet.Leaf(parquet.DoubleType)
	case typeinfo.Timestamp:
		return parquet.Timestamp(parquet.Millisecond)
	case typeinfo.Binary:
		return parquet.Leaf(parquet.ByteArrayType)
	default:
		return parquet.String()
	}
}

func (s *Sink) WriteRow(_ context.Context, values []any) error {
	if s.writer == nil {
		return fmt.Errorf("parquet sink not started")
	}
	if len(values) != len(s.columns) {
		return fmt.Errorf("row has %d values, want %d", len(values), len(s.columns))
	}
	row := make(parquet.Row, len(values))
	for i, v := range values {
		pv, err := toValue(v)
		if err != nil {
			return fmt.Errorf("column %q: %w", s.columns[i].Name, err)
		}
		definition := 1
		if pv.IsNull() {
			definition = 0
		}
		leaf := s.leaves[i]
		row[leaf] = pv.Level(0, definition, leaf)
	}
	s.rows = append(s.rows, row)
	if len(s.rows) >= batchSize {
		return s.flush()
	}
	return nil
}

func toValue(v any) (parquet.Value, error) {
	switch typed := v.(type) {
	case nil:
		return parquet.NullValue(), nil
	case bool:
		return parquet.BooleanValue(typed), nil
	case int32:
		return parquet.Int32Value(typed), nil
	case int64:
		return parquet.Int64Value(typed), nil
	case float64:
		return parquet.DoubleValue(typed), nil
	case string:
		return parquet.ByteArrayValue([]byte(typed)), nil
	case []byte:
		return parquet.ByteArrayValue(typed), nil
	case time.Time:
		return parquet.Int64Value(typed.UnixMilli()), nil
	default:
		return parquet.Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func (s *Sink) flush() error {
	if len(s.rows) == 0 {
		return nil
	}
	if _, err := s.writer.WriteRows(s.rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	s.rows = s.rows[:0]
	return nil
}

// Commit finishes the file and returns it in Summary.Data.
func (s *Sink) Commit(_ context.Context) (export.Summary, error) {
	if s.writer == nil {
		return export.Summary{}, fmt.Errorf("parquet sink not started")
	}
	if err := s.flush(); err != nil {
		return export.Summary{}, err
	}
	if err := s.writer.Close(); err != nil {
		return export.Summary{}, fmt.Errorf("close parquet writer: %w", err)
	}
	data := s.buf.Bytes()
	s.writer = nil
	return export.Summary{Data: data}, nil
}

func (s *Sink) Abort(_ context.Context) error {
	s.writer = nil
	s.rows = nil
	s.buf = nil
	return nil
}
