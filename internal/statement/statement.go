package statement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docsql/docsql/internal/docstore"
	"github.com/docsql/docsql/internal/extjson"
	"github.com/docsql/docsql/internal/observability"
	"github.com/docsql/docsql/internal/resultset"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/translate"
)

// Strategy is how a statement turns SQL into a document stream. It is fixed
// per connection.
type Strategy int

const (
	// AggregationStage sends the SQL text as a $sql stage to a backend that
	// understands SQL natively.
	AggregationStage Strategy = iota
	// TranslateExecute asks a translator for a pipeline and runs it.
	TranslateExecute
)

func (s Strategy) String() string {
	switch s {
	case AggregationStage:
		return "aggregation_stage"
	case TranslateExecute:
		return "translate_execute"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

type Options struct {
	Client      docstore.Client
	Database    string
	Translator  translate.Translator
	Format      extjson.Options
	SortColumns bool
	FetchSize   int
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Statement executes one query at a time and owns at most one live result
// set. It is not safe for concurrent use.
type Statement struct {
	id       int64
	strategy Strategy
	client   docstore.Client
	database string

	translator  translate.Translator
	format      extjson.Options
	sortColumns bool
	fetchSize   int
	timeout     time.Duration
	logger      *slog.Logger

	rs                *resultset.ResultSet
	diagnostics       Diagnostics
	closed            bool
	closeOnCompletion bool
	replacing         bool
}

func New(id int64, strategy Strategy, opts Options) (*Statement, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("document store client is required")
	}
	if opts.Database == "" {
		return nil, sqlerr.Invalid("database name is required")
	}
	switch strategy {
	case AggregationStage:
	case TranslateExecute:
		if opts.Translator == nil {
			return nil, fmt.Errorf("translator is required for %s", strategy)
		}
	default:
		return nil, fmt.Errorf("unsupported strategy %s", strategy)
	}
	if opts.FetchSize < 0 {
		return nil, &sqlerr.FetchSizeError{Size: opts.FetchSize}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Statement{
		id:          id,
		strategy:    strategy,
		client:      opts.Client,
		database:    opts.Database,
		translator:  opts.Translator,
		format:      opts.Format,
		sortColumns: opts.SortColumns,
		fetchSize:   opts.FetchSize,
		timeout:     opts.Timeout,
		logger:      logger.With(slog.Int64("statement_id", id)),
	}, nil
}

func (s *Statement) ID() int64 {
	return s.id
}

func (s *Statement) Strategy() Strategy {
	return s.strategy
}

// Database is the statement's current database. Translated queries may
// switch it.
func (s *Statement) Database() string {
	return s.database
}

func (s *Statement) checkClosed() error {
	if s.closed {
		return fmt.Errorf("%w: statement", sqlerr.ErrClosed)
	}
	return nil
}

// ExecuteQuery runs sql and returns its result set, closing any previous one.
func (s *Statement) ExecuteQuery(ctx context.Context, sql string) (*resultset.ResultSet, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	s.closeResultSet(ctx)

	start := time.Now()
	s.diagnostics = Diagnostics{SQL: sql}
	s.logger.InfoContext(ctx, "statement_execute",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("strategy", s.strategy.String()),
		slog.String("database", s.database),
		slog.String("sql", sql),
	)

	var (
		rs  *resultset.ResultSet
		err error
	)
	switch s.strategy {
	case AggregationStage:
		rs, err = s.executeAggregationStage(ctx, sql)
	case TranslateExecute:
		rs, err = s.executeTranslated(ctx, sql)
	}
	if err != nil {
		outcome := observability.OutcomeError
		if errors.Is(err, docstore.ErrTimeLimitExceeded) {
			err = fmt.Errorf("%w: %v", sqlerr.ErrExecutionTimeout, err)
			outcome = observability.OutcomeTimeout
		}
		observability.ObserveStatement(s.strategy.String(), outcome, time.Since(start))
		s.logger.ErrorContext(ctx, "statement_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
			slog.Any("diagnostics", s.diagnostics),
		)
		return nil, err
	}

	s.rs = rs
	elapsed := time.Since(start)
	observability.ObserveStatement(s.strategy.String(), observability.OutcomeOK, elapsed)
	s.logger.DebugContext(ctx, "statement_executed", slog.String("duration", elapsed.String()))
	return rs, nil
}

// Execute runs sql and reports whether it produced a result set, which is
// always the case for queries.
func (s *Statement) Execute(ctx context.Context, sql string) (bool, error) {
	if _, err := s.ExecuteQuery(ctx, sql); err != nil {
		return false, err
	}
	return s.rs != nil, nil
}

func (s *Statement) ResultSet() (*resultset.ResultSet, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return s.rs, nil
}

// UpdateCount is always -1; statements never modify data.
func (s *Statement) UpdateCount() (int, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	return -1, nil
}

// MoreResults closes the current result set. There is never a second one.
func (s *Statement) MoreResults(ctx context.Context) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}
	s.closeResultSet(ctx)
	return false, nil
}

func (s *Statement) SetFetchSize(n int) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if n < 0 {
		return &sqlerr.FetchSizeError{Size: n}
	}
	s.fetchSize = n
	return nil
}

func (s *Statement) FetchSize() (int, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	return s.fetchSize, nil
}

// SetQueryTimeout bounds each backend call of a query. Zero means no limit.
func (s *Statement) SetQueryTimeout(d time.Duration) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if d < 0 {
		return sqlerr.Invalid("query timeout must be >= 0, got %s", d)
	}
	s.timeout = d
	return nil
}

func (s *Statement) QueryTimeout() (time.Duration, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	return s.timeout, nil
}

// SetSortColumns chooses between sorted and declared field order for result
// sets without an explicit select order.
func (s *Statement) SetSortColumns(sorted bool) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	s.sortColumns = sorted
	return nil
}

// CloseOnCompletion makes closing the current result set close the statement.
func (s *Statement) CloseOnCompletion() error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	s.closeOnCompletion = true
	return nil
}

func (s *Statement) IsCloseOnCompletion() bool {
	return s.closeOnCompletion && !s.replacing
}

func (s *Statement) IsClosed() bool {
	return s.closed
}

// Close closes the live result set and the statement. Closing twice is a no-op.
func (s *Statement) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeResultSet(ctx)
	return nil
}

func (s *Statement) closeResultSet(ctx context.Context) {
	if s.rs == nil {
		return
	}
	rs := s.rs
	s.rs = nil
	s.replacing = !s.closed
	defer func() { s.replacing = false }()
	if err := rs.Close(ctx); err != nil {
		s.logger.WarnContext(ctx, "result_set_close_failed", slog.String("error", err.Error()))
	}
}

// Diagnostics describes the last execution attempt.
func (s *Statement) Diagnostics() Diagnostics {
	return s.diagnostics
}

func (s *Statement) ExecuteUpdate(context.Context, string) (int, error) {
	return 0, sqlerr.Unsupported("ExecuteUpdate")
}

func (s *Statement) AddBatch(string) error {
	return sqlerr.Unsupported("AddBatch")
}

func (s *Statement) ExecuteBatch(context.Context) ([]int, error) {
	return nil, sqlerr.Unsupported("ExecuteBatch")
}

func (s *Statement) Cancel() error {
	return sqlerr.Unsupported("Cancel")
}

func (s *Statement) storeOptions() docstore.Options {
	opts := docstore.Options{MaxTime: s.timeout}
	if s.fetchSize > 0 {
		opts.BatchSize = int32(s.fetchSize)
	}
	return opts
}

func (s *Statement) resultSetOptions() resultset.Options {
	return resultset.Options{Format: s.format, Owner: s, Logger: s.logger}
}
