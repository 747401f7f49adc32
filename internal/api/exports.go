package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/docsql/docsql/internal/config"
	"github.com/docsql/docsql/internal/export"
	"github.com/docsql/docsql/internal/export/parquet"
	"github.com/docsql/docsql/internal/observability"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/storage"
)

const (
	exportFormatParquet = "parquet"
	exportFormatTable   = "table"
	exportKeyPrefix     = "exports"
)

type exportRequest struct {
	queryRequest
	Format    string `json:"format"`
	ObjectKey string `json:"object_key"`
	Table     string `json:"table"`
}

func handleCreateExport(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Statements == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	var request exportRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if !validateSQL(w, r, request.SQL) {
		return
	}

	format := strings.ToLower(strings.TrimSpace(request.Format))
	if format == "" {
		format = exportFormatParquet
	}

	var (
		sink      export.Sink
		objectKey string
	)
	switch format {
	case exportFormatParquet:
		if deps.ObjectStore == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "object store is not configured", false, map[string]any{"format": format})
			return
		}
		var err error
		if objectKey = strings.Trim(request.ObjectKey, "/"); objectKey != "" {
			err = storage.ValidateKey(objectKey)
		} else {
			objectKey, err = storage.ExportKey(exportKeyPrefix, format, deps.Now(), uuid.NewString())
		}
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_OBJECT_KEY", err.Error(), false, nil)
			return
		}
		sink = parquet.NewSink()
	case exportFormatTable:
		if deps.TableSinks == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "table sink is not configured", false, map[string]any{"format": format})
			return
		}
		if strings.TrimSpace(request.Table) == "" {
			writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table is required for table exports", false, nil)
			return
		}
		tableSink, err := deps.TableSinks(request.Table)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TABLE", err.Error(), false, nil)
			return
		}
		sink = tableSink
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be parquet or table", false, map[string]any{"format": request.Format})
		return
	}

	target := objectKey
	if format == exportFormatTable {
		target = request.Table
	}
	observability.AnnotateRequest(r.Context(), slog.String("export_format", format), slog.String("export_target", target))

	rowLimit := request.RowLimit
	if rowLimit <= 0 {
		rowLimit = cfg.Query.RowLimit
	}

	summary, statementID, err := runExport(r, deps, request.queryRequest, sink, rowLimit)
	if err != nil {
		observability.ObserveExport(format, exportOutcome(err))
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "export failed", "format", format, "error", err)
		}
		writeStatementError(r, w, err)
		return
	}

	response := map[string]any{
		"format":    format,
		"rows":      summary.Rows,
		"truncated": summary.Truncated,
	}
	if format == exportFormatTable {
		response["table"] = request.Table
		observability.ObserveExport(format, observability.OutcomeOK)
		writeJSON(w, http.StatusCreated, response)
		return
	}

	info, err := deps.ObjectStore.Put(r.Context(), objectKey, bytes.NewReader(summary.Data), int64(len(summary.Data)), storage.PutOptions{
		ContentType: parquet.ContentType,
		Export: storage.ExportMetadata{
			Format:      format,
			Rows:        summary.Rows,
			Truncated:   summary.Truncated,
			StatementID: statementID,
		},
	})
	if err != nil {
		observability.ObserveExport(format, observability.OutcomeError)
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_FAILED", err.Error(), true, map[string]any{"object_key": objectKey})
		return
	}
	observability.ObserveExport(format, observability.OutcomeOK)
	response["object_key"] = objectKey
	response["size_bytes"] = info.Size
	response["etag"] = info.ETag
	if info.Location != "" {
		response["location"] = info.Location
	}
	writeJSON(w, http.StatusCreated, response)
}

func runExport(r *http.Request, deps Dependencies, request queryRequest, sink export.Sink, rowLimit int) (export.Summary, int64, error) {
	stmt, err := openStatement(r.Context(), deps, request)
	if err != nil {
		return export.Summary{}, 0, err
	}
	defer func() { _ = stmt.Close(r.Context()) }()

	rs, err := stmt.ExecuteQuery(r.Context(), request.SQL)
	if err != nil {
		return export.Summary{}, stmt.ID(), err
	}
	summary, err := export.Copy(r.Context(), rs, sink, rowLimit)
	return summary, stmt.ID(), err
}

func exportOutcome(err error) string {
	if errors.Is(err, sqlerr.ErrExecutionTimeout) {
		return observability.OutcomeTimeout
	}
	return observability.OutcomeError
}

func handleGetExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "object store is not configured", false, nil)
		return
	}
	key := r.PathValue("key")
	if err := storage.ValidateKey(key); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_OBJECT_KEY", err.Error(), false, nil)
		return
	}
	info, err := deps.ObjectStore.Stat(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "EXPORT_NOT_FOUND", "export not found", false, map[string]any{"object_key": key})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_FAILED", err.Error(), true, nil)
		return
	}
	body, err := deps.ObjectStore.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "EXPORT_NOT_FOUND", "export not found", false, map[string]any{"object_key": key})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_FAILED", err.Error(), true, nil)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", storage.ContentTypeFor(key))
	if info.ETag != "" {
		w.Header().Set("ETag", info.ETag)
	}
	if meta := info.Export; meta.Format != "" {
		w.Header().Set("X-Docsql-Format", meta.Format)
		w.Header().Set("X-Docsql-Rows", strconv.FormatInt(meta.Rows, 10))
		w.Header().Set("X-Docsql-Truncated", strconv.FormatBool(meta.Truncated))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "stream export failed", "object_key", key, "error", err)
	}
}
