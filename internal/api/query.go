package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docsql/docsql/internal/config"
	"github.com/docsql/docsql/internal/export"
	"github.com/docsql/docsql/internal/metadata"
	"github.com/docsql/docsql/internal/observability"
	"github.com/docsql/docsql/internal/resultset"
	"github.com/docsql/docsql/internal/schema"
	"github.com/docsql/docsql/internal/statement"
)

type queryRequest struct {
	SQL         string `json:"sql"`
	Database    string `json:"database"`
	RowLimit    int    `json:"row_limit"`
	FetchSize   *int   `json:"fetch_size"`
	TimeoutMs   *int   `json:"timeout_ms"`
	SortColumns *bool  `json:"sort_columns"`
}

type columnDescriptor struct {
	Name          string `json:"name"`
	Label         string `json:"label"`
	Table         string `json:"table"`
	Type          int    `json:"type"`
	TypeName      string `json:"type_name"`
	Nullable      string `json:"nullable"`
	DisplaySize   int    `json:"display_size"`
	Precision     int    `json:"precision"`
	Scale         int    `json:"scale"`
	Signed        bool   `json:"signed"`
	CaseSensitive bool   `json:"case_sensitive"`
}

type queryResponse struct {
	Columns   []columnDescriptor `json:"columns"`
	Rows      [][]any            `json:"rows"`
	RowCount  int                `json:"row_count"`
	Truncated bool               `json:"truncated"`
	Stats     map[string]any     `json:"stats"`
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Statements == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if !validateSQL(w, r, request.SQL) {
		return
	}

	start := time.Now()
	stmt, err := openStatement(r.Context(), deps, request)
	if err != nil {
		writeStatementError(r, w, err)
		return
	}
	defer func() { _ = stmt.Close(r.Context()) }()

	rs, err := stmt.ExecuteQuery(r.Context(), request.SQL)
	if err != nil {
		writeStatementError(r, w, err)
		return
	}

	catalog, err := rs.Metadata()
	if err != nil {
		writeStatementError(r, w, err)
		return
	}
	columns, err := describeColumns(catalog)
	if err != nil {
		writeStatementError(r, w, err)
		return
	}

	rowLimit := request.RowLimit
	if rowLimit <= 0 {
		rowLimit = cfg.Query.RowLimit
	}
	rows, truncated, err := readRows(r, rs, catalog, rowLimit)
	if err != nil {
		writeStatementError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:   columns,
		Rows:      rows,
		RowCount:  len(rows),
		Truncated: truncated,
		Stats: map[string]any{
			"duration_ms":  time.Since(start).Milliseconds(),
			"strategy":     stmt.Strategy().String(),
			"statement_id": stmt.ID(),
			"database":     stmt.Database(),
		},
	})
}

func validateSQL(w http.ResponseWriter, r *http.Request, sqlText string) bool {
	if strings.TrimSpace(sqlText) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return false
	}
	if !isAllowedSQL(sqlText) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return false
	}
	return true
}

func openStatement(ctx context.Context, deps Dependencies, request queryRequest) (*statement.Statement, error) {
	stmt, err := deps.Statements.CreateStatementFor(request.Database)
	if err != nil {
		return nil, err
	}
	apply := func() error {
		if request.FetchSize != nil {
			if err := stmt.SetFetchSize(*request.FetchSize); err != nil {
				return err
			}
		}
		if request.TimeoutMs != nil {
			if err := stmt.SetQueryTimeout(time.Duration(*request.TimeoutMs) * time.Millisecond); err != nil {
				return err
			}
		}
		if request.SortColumns != nil {
			if err := stmt.SetSortColumns(*request.SortColumns); err != nil {
				return err
			}
		}
		return nil
	}
	if err := apply(); err != nil {
		_ = stmt.Close(ctx)
		return nil, err
	}
	observability.AnnotateRequest(ctx,
		slog.Int64("statement_id", stmt.ID()),
		slog.String("strategy", stmt.Strategy().String()),
		slog.String("database", stmt.Database()),
	)
	return stmt, nil
}

func describeColumns(catalog *metadata.Catalog) ([]columnDescriptor, error) {
	out := make([]columnDescriptor, 0, catalog.ColumnCount())
	for i, col := range catalog.Columns() {
		index := i + 1
		displaySize, err := catalog.DisplaySize(index)
		if err != nil {
			return nil, err
		}
		precision, err := catalog.Precision(index)
		if err != nil {
			return nil, err
		}
		scale, err := catalog.Scale(index)
		if err != nil {
			return nil, err
		}
		signed, err := catalog.IsSigned(index)
		if err != nil {
			return nil, err
		}
		caseSensitive, err := catalog.IsCaseSensitive(index)
		if err != nil {
			return nil, err
		}
		out = append(out, columnDescriptor{
			Name:          col.Name,
			Label:         col.Name,
			Table:         col.Datasource,
			Type:          int(col.Info.SQLType),
			TypeName:      col.Info.Name,
			Nullable:      nullabilityName(col.Nullability),
			DisplaySize:   displaySize,
			Precision:     precision,
			Scale:         scale,
			Signed:        signed,
			CaseSensitive: caseSensitive,
		})
	}
	return out, nil
}

func nullabilityName(n schema.Nullability) string {
	switch n {
	case schema.NoNulls:
		return "no_nulls"
	case schema.Nullable:
		return "nullable"
	default:
		return "unknown"
	}
}

func readRows(r *http.Request, rs *resultset.ResultSet, catalog *metadata.Catalog, rowLimit int) ([][]any, bool, error) {
	columns := catalog.Columns()
	rows := make([][]any, 0)
	for {
		ok, err := rs.Next(r.Context())
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return rows, false, nil
		}
		if rowLimit > 0 && len(rows) == rowLimit {
			return rows, true, nil
		}
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i], err = export.Cell(rs, i+1, col.Info.SQLType)
			if err != nil {
				return nil, false, err
			}
		}
		rows = append(rows, row)
	}
}

func isAllowedSQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}
