package sqltable

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/docsql/docsql/internal/export"
	"github.com/docsql/docsql/internal/typeinfo"
)

const (
	DriverPostgres = "pgx"
	DriverDuckDB   = "duckdb"
)

type DBConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// Open opens and pings a table export target. An empty duckdb DSN is an
// in-memory database.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if err := checkDriver(cfg.Driver); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverPostgres && strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sink dsn is required")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sink db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sink db: %w", err)
	}
	return db, nil
}

func checkDriver(driver string) error {
	switch driver {
	case DriverPostgres, DriverDuckDB:
		return nil
	default:
		return fmt.Errorf("unsupported sink driver %q", driver)
	}
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Sink creates the target table when missing and inserts every row in one
// transaction.
type Sink struct {
	db     *sql.DB
	driver string
	table  string

	tx   *sql.Tx
	stmt *sql.Stmt
}

func NewSink(db *sql.DB, driver, table string) (*Sink, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if err := checkDriver(driver); err != nil {
		return nil, err
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Sink{db: db, driver: driver, table: table}, nil
}

func (s *Sink) Begin(ctx context.Context, cols []export.Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("table export needs at least one column")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sink tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, CreateTableSQL(s.driver, s.table, cols)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create table %q: %w", s.table, err)
	}
	stmt, err := tx.PrepareContext(ctx, InsertSQL(s.table, cols))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert into %q: %w", s.table, err)
	}
	s.tx, s.stmt = tx, stmt
	return nil
}

func (s *Sink) WriteRow(ctx context.Context, values []any) error {
	if s.stmt == nil {
		return fmt.Errorf("table sink not started")
	}
	if _, err := s.stmt.ExecContext(ctx, values...); err != nil {
		return fmt.Errorf("insert into %q: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Commit(_ context.Context) (export.Summary, error) {
	if s.tx == nil {
		return export.Summary{}, fmt.Errorf("table sink not started")
	}
	_ = s.stmt.Close()
	err := s.tx.Commit()
	s.tx, s.stmt = nil, nil
	if err != nil {
		return export.Summary{}, fmt.Errorf("commit sink tx: %w", err)
	}
	return export.Summary{}, nil
}

func (s *Sink) Abort(_ context.Context) error {
	if s.tx == nil {
		return nil
	}
	_ = s.stmt.Close()
	err := s.tx.Rollback()
	s.tx, s.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("rollback sink tx: %w", err)
	}
	return nil
}

func CreateTableSQL(driver, table string, cols []export.Column) string {
	defs := make([]string, 0, len(cols))
	for _, col := range cols {
		def := quoteIdent(col.Name) + " " + columnType(driver, col.Type)
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

func InsertSQL(table string, cols []export.Column) string {
	names := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for i, col := range cols {
		names = append(names, quoteIdent(col.Name))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(placeholders, ", "))
}

func columnType(driver string, typ typeinfo.SQLType) string {
	postgres := driver == DriverPostgres
	switch typ {
	case typeinfo.Bit, typeinfo.Boolean:
		return "BOOLEAN"
	case typeinfo.Integer:
		return "INTEGER"
	case typeinfo.BigInt:
		return "BIGINT"
	case typeinfo.Double:
		return "DOUBLE PRECISION"
	case typeinfo.Decimal:
		if postgres {
			return "NUMERIC"
		}
		return "DECIMAL(38, 10)"
	case typeinfo.Timestamp:
		return "TIMESTAMPTZ"
	case typeinfo.Binary:
		if postgres {
			return "BYTEA"
		}
		return "BLOB"
	default:
		if postgres {
			return "TEXT"
		}
		return "VARCHAR"
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
