package resultset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/docstore"
	"github.com/docsql/docsql/internal/extjson"
	"github.com/docsql/docsql/internal/metadata"
	"github.com/docsql/docsql/internal/observability"
	"github.com/docsql/docsql/internal/sqlerr"
)

// Owner is the statement that produced a result set.
type Owner interface {
	IsClosed() bool
	IsCloseOnCompletion() bool
	Close(ctx context.Context) error
}

type Options struct {
	Format extjson.Options
	Owner  Owner
	Logger *slog.Logger
}

// Column addresses a cell either by 1-based Index or by unqualified Label.
type Column interface {
	position(catalog *metadata.Catalog) (int, error)
}

type Index int

func (i Index) position(catalog *metadata.Catalog) (int, error) {
	if _, err := catalog.Column(int(i)); err != nil {
		return 0, err
	}
	return int(i), nil
}

type Label string

func (l Label) position(catalog *metadata.Catalog) (int, error) {
	index, err := catalog.Index(string(l))
	if err != nil {
		return 0, err
	}
	return index + 1, nil
}

// ResultSet is a forward-only cursor over documents shaped by a column catalog.
// It is not safe for concurrent use.
type ResultSet struct {
	cursor  docstore.Cursor
	catalog *metadata.Catalog
	opts    Options
	logger  *slog.Logger

	current   bson.Raw
	row       int
	closed    bool
	exhausted bool
	wasNull   bool
}

func New(cursor docstore.Cursor, catalog *metadata.Catalog, opts Options) (*ResultSet, error) {
	if cursor == nil {
		return nil, fmt.Errorf("cursor is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("column catalog is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ResultSet{cursor: cursor, catalog: catalog, opts: opts, logger: logger}, nil
}

func (rs *ResultSet) checkClosed() error {
	if rs.closed {
		return fmt.Errorf("%w: result set", sqlerr.ErrClosed)
	}
	return nil
}

// Next advances to the next document. It keeps returning false once the
// source is exhausted. When the owner closes on completion, exhausting the
// source closes the result set and the owner.
func (rs *ResultSet) Next(ctx context.Context) (bool, error) {
	if rs.closed && rs.exhausted {
		return false, nil
	}
	if err := rs.checkClosed(); err != nil {
		return false, err
	}
	ok, err := rs.cursor.HasNext(ctx)
	if err != nil {
		return false, sourceErr(err)
	}
	if !ok {
		rs.exhausted = true
		if owner := rs.opts.Owner; owner != nil && owner.IsCloseOnCompletion() {
			return false, rs.Close(ctx)
		}
		return false, nil
	}
	doc, err := rs.cursor.Next(ctx)
	if err != nil {
		return false, sourceErr(err)
	}
	rs.current = doc
	rs.row++
	observability.IncrementRowsRead()
	return true, nil
}

func sourceErr(err error) error {
	if errors.Is(err, docstore.ErrTimeLimitExceeded) {
		return fmt.Errorf("%w: %v", sqlerr.ErrExecutionTimeout, err)
	}
	return fmt.Errorf("read next document: %w", err)
}

// Close releases the document source. Closing twice is a no-op. When the
// owning statement closes on completion it is closed too.
func (rs *ResultSet) Close(ctx context.Context) error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	rs.current = nil
	var errs []error
	if err := rs.cursor.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close cursor: %w", err))
	}
	rs.logger.DebugContext(ctx, "result_set_closed", slog.Int("rows", rs.row))
	if owner := rs.opts.Owner; owner != nil && !owner.IsClosed() && owner.IsCloseOnCompletion() {
		if err := owner.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rs *ResultSet) IsClosed() bool {
	return rs.closed
}

// IsLast reports whether the source has no further documents. It peeks the
// source on every call.
func (rs *ResultSet) IsLast(ctx context.Context) (bool, error) {
	if err := rs.checkClosed(); err != nil {
		return false, err
	}
	ok, err := rs.cursor.HasNext(ctx)
	if err != nil {
		return false, sourceErr(err)
	}
	return !ok, nil
}

func (rs *ResultSet) IsFirst() (bool, error) {
	if err := rs.checkClosed(); err != nil {
		return false, err
	}
	return rs.row == 1, nil
}

// Row returns the 1-based number of the current row, or 0 before the first advance.
func (rs *ResultSet) Row() (int, error) {
	if err := rs.checkClosed(); err != nil {
		return 0, err
	}
	return rs.row, nil
}

// WasNull reports whether the last cell read was missing, null or undefined.
func (rs *ResultSet) WasNull() (bool, error) {
	if err := rs.checkClosed(); err != nil {
		return false, err
	}
	return rs.wasNull, nil
}

func (rs *ResultSet) Metadata() (*metadata.Catalog, error) {
	if err := rs.checkClosed(); err != nil {
		return nil, err
	}
	return rs.catalog, nil
}

// FindColumn returns the 1-based index of the column labelled label.
func (rs *ResultSet) FindColumn(label string) (int, error) {
	if err := rs.checkClosed(); err != nil {
		return 0, err
	}
	return Label(label).position(rs.catalog)
}

// cell locates document[datasource][column] in the current row. A missing
// data source or field yields the zero RawValue.
func (rs *ResultSet) cell(col Column) (bson.RawValue, metadata.Column, error) {
	if err := rs.checkClosed(); err != nil {
		return bson.RawValue{}, metadata.Column{}, err
	}
	if rs.current == nil {
		return bson.RawValue{}, metadata.Column{}, fmt.Errorf("%w: call Next before reading", sqlerr.ErrNoCurrentRow)
	}
	index, err := col.position(rs.catalog)
	if err != nil {
		return bson.RawValue{}, metadata.Column{}, err
	}
	column, err := rs.catalog.Column(index)
	if err != nil {
		return bson.RawValue{}, metadata.Column{}, err
	}
	source, err := rs.current.LookupErr(column.Datasource)
	if err != nil || isNull(source) {
		return bson.RawValue{}, column, nil
	}
	doc, ok := source.DocumentOK()
	if !ok {
		return bson.RawValue{}, column, fmt.Errorf("%w: data source %q is a %s, not a document",
			sqlerr.ErrSerialization, column.Datasource, source.Type)
	}
	value, err := doc.LookupErr(column.Name)
	if err != nil {
		return bson.RawValue{}, column, nil
	}
	return value, column, nil
}

func isNull(v bson.RawValue) bool {
	return v.Type == 0 || v.Type == bson.TypeNull || v.Type == bson.TypeUndefined
}

func (rs *ResultSet) checkNull(v bson.RawValue) bool {
	rs.wasNull = isNull(v)
	return rs.wasNull
}

// read resolves col, returns zero for null cells and converts everything else
// through table.
func read[T any](rs *ResultSet, col Column, target string, table conversions[T], zero T) (T, error) {
	v, _, err := rs.cell(col)
	if err != nil {
		return zero, err
	}
	if rs.checkNull(v) {
		return zero, nil
	}
	out, err := convert(table, target, v)
	if err != nil {
		observability.IncrementConversionError(target)
		return zero, err
	}
	return out, nil
}
