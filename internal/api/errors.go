package api

import (
	"errors"
	"net/http"

	"github.com/docsql/docsql/internal/sqlerr"
)

type errorClass struct {
	status    int
	code      string
	retryable bool
}

var statementErrorClasses = []struct {
	target error
	class  errorClass
}{
	{sqlerr.ErrConversion, errorClass{http.StatusUnprocessableEntity, "CONVERSION_FAILED", false}},
	{sqlerr.ErrExecutionTimeout, errorClass{http.StatusGatewayTimeout, "EXECUTION_TIMEOUT", true}},
	{sqlerr.ErrSerialization, errorClass{http.StatusBadGateway, "TRANSLATOR_FAILED", true}},
	{sqlerr.ErrAmbiguousColumn, errorClass{http.StatusBadRequest, "AMBIGUOUS_COLUMN", false}},
	{sqlerr.ErrColumnNotFound, errorClass{http.StatusBadRequest, "COLUMN_NOT_FOUND", false}},
	{sqlerr.ErrQueryInvalid, errorClass{http.StatusBadRequest, "QUERY_INVALID", false}},
	{sqlerr.ErrInvalidInput, errorClass{http.StatusBadRequest, "INVALID_INPUT", false}},
	{sqlerr.ErrNotSupported, errorClass{http.StatusBadRequest, "NOT_SUPPORTED", false}},
	{sqlerr.ErrClosed, errorClass{http.StatusServiceUnavailable, "CONNECTION_CLOSED", true}},
}

// classify maps an execution error onto an HTTP response. Unclassified errors
// come from the store itself and are reported as failed executions.
func classify(err error) errorClass {
	for _, candidate := range statementErrorClasses {
		if errors.Is(err, candidate.target) {
			return candidate.class
		}
	}
	return errorClass{http.StatusBadRequest, "QUERY_EXECUTION_FAILED", false}
}

func writeStatementError(r *http.Request, w http.ResponseWriter, err error) {
	class := classify(err)
	writeError(r.Context(), w, class.status, class.code, err.Error(), class.retryable, nil)
}
