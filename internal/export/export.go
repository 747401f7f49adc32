package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsql/docsql/internal/resultset"
	"github.com/docsql/docsql/internal/schema"
	"github.com/docsql/docsql/internal/typeinfo"
)

// Column is one exported column. Name is unique within an export.
type Column struct {
	Name       string
	Datasource string
	Field      string
	Type       typeinfo.SQLType
	Nullable   bool
}

type Summary struct {
	Rows      int64
	Truncated bool
	// Data holds the encoded payload for sinks that produce one.
	Data []byte
}

// Sink receives the rows of one result set. Begin is called once before any
// row; exactly one of Commit or Abort ends the export.
type Sink interface {
	Begin(ctx context.Context, cols []Column) error
	WriteRow(ctx context.Context, values []any) error
	Commit(ctx context.Context) (Summary, error)
	Abort(ctx context.Context) error
}

// Columns derives export columns from a result set's catalog. Labels shared by
// several data sources are qualified as datasource_label.
func Columns(rs *resultset.ResultSet) ([]Column, error) {
	catalog, err := rs.Metadata()
	if err != nil {
		return nil, err
	}
	all := catalog.Columns()
	counts := map[string]int{}
	for _, col := range all {
		counts[col.Name]++
	}
	out := make([]Column, 0, len(all))
	seen := map[string]bool{}
	for _, col := range all {
		name := col.Name
		if counts[name] > 1 {
			name = col.Datasource + "_" + col.Name
		}
		for base, i := name, 2; seen[name]; i++ {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		seen[name] = true
		out = append(out, Column{
			Name:       name,
			Datasource: col.Datasource,
			Field:      col.Name,
			Type:       col.Info.SQLType,
			Nullable:   col.Nullability != schema.NoNulls,
		})
	}
	return out, nil
}

// Cell reads the 1-based column i with the getter matching typ. Null cells are nil.
func Cell(rs *resultset.ResultSet, i int, typ typeinfo.SQLType) (any, error) {
	col := resultset.Index(i)
	var (
		v   any
		err error
	)
	switch typ {
	case typeinfo.Bit, typeinfo.Boolean:
		v, err = rs.Bool(col)
	case typeinfo.Integer:
		v, err = rs.Int32(col)
	case typeinfo.BigInt:
		v, err = rs.Int64(col)
	case typeinfo.Double:
		v, err = rs.Float64(col)
	case typeinfo.Decimal:
		d, derr := rs.Decimal(col)
		v, err = d.String(), derr
	case typeinfo.Timestamp:
		v, err = rs.Time(col)
	case typeinfo.Binary:
		v, err = rs.Bytes(col)
	case typeinfo.Null:
		return nil, nil
	default:
		var s string
		s, err = rs.String(col)
		v = s
	}
	if err != nil {
		return nil, err
	}
	null, err := rs.WasNull()
	if err != nil {
		return nil, err
	}
	if null {
		return nil, nil
	}
	return v, nil
}

// Copy streams rs into sink and closes rs. A positive rowLimit stops the copy
// early and marks the summary truncated when rows remain.
func Copy(ctx context.Context, rs *resultset.ResultSet, sink Sink, rowLimit int) (summary Summary, err error) {
	defer func() {
		if closeErr := rs.Close(ctx); closeErr != nil && err == nil {
			err = fmt.Errorf("close result set: %w", closeErr)
		}
	}()

	cols, err := Columns(rs)
	if err != nil {
		return Summary{}, err
	}
	if err := sink.Begin(ctx, cols); err != nil {
		return Summary{}, fmt.Errorf("begin export: %w", err)
	}

	var rows int64
	truncated := false
	for {
		ok, err := rs.Next(ctx)
		if err != nil {
			return Summary{}, abort(ctx, sink, err)
		}
		if !ok {
			break
		}
		if rowLimit > 0 && rows == int64(rowLimit) {
			truncated = true
			break
		}
		values := make([]any, len(cols))
		for i, col := range cols {
			values[i], err = Cell(rs, i+1, col.Type)
			if err != nil {
				return Summary{}, abort(ctx, sink, fmt.Errorf("row %d column %q: %w", rows+1, col.Name, err))
			}
		}
		if err := sink.WriteRow(ctx, values); err != nil {
			return Summary{}, abort(ctx, sink, fmt.Errorf("write row %d: %w", rows+1, err))
		}
		rows++
	}

	summary, err = sink.Commit(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("commit export: %w", err)
	}
	summary.Rows = rows
	summary.Truncated = truncated
	return summary, nil
}

func abort(ctx context.Context, sink Sink, cause error) error {
	if err := sink.Abort(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("abort export: %w", err))
	}
	return cause
}
