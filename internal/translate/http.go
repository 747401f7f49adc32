package translate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/sqlerr"
)

type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPTranslator sends commands to a translator service as canonical
// extended JSON documents of the form {command, options}.
type HTTPTranslator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTranslator(cfg HTTPConfig) (*HTTPTranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("translator base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPTranslator{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (t *HTTPTranslator) Namespaces(ctx context.Context, database, sql string) ([]Namespace, error) {
	raw, err := t.run(ctx, "getNamespaces", bson.D{
		{Key: "sql", Value: sql},
		{Key: "db", Value: database},
	})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Namespaces []Namespace `bson:"namespaces"`
	}
	if err := bson.Unmarshal(raw, &parsed); err != nil {
		return nil, serializationErr("decode namespaces: %v", err)
	}
	return parsed.Namespaces, nil
}

func (t *HTTPTranslator) Translate(ctx context.Context, sql, database string, catalog bson.Raw) (Result, error) {
	var catalogValue any = catalog
	if len(catalog) == 0 {
		catalogValue = bson.D{}
	}
	raw, err := t.run(ctx, "translate", bson.D{
		{Key: "sql", Value: sql},
		{Key: "db", Value: database},
		{Key: "catalog", Value: catalogValue},
		{Key: "relaxSchemaChecking", Value: true},
	})
	if err != nil {
		return Result{}, err
	}
	var result Result
	if err := bson.Unmarshal(raw, &result); err != nil {
		return Result{}, serializationErr("decode translation: %v", err)
	}
	if len(result.ResultSetSchema) == 0 {
		return Result{}, serializationErr("translation has no result_set_schema")
	}
	return result, nil
}

func (t *HTTPTranslator) run(ctx context.Context, command string, options bson.D) (bson.Raw, error) {
	body, err := bson.MarshalExtJSON(bson.D{
		{Key: "command", Value: command},
		{Key: "options", Value: options},
	}, true, false)
	if err != nil {
		return nil, serializationErr("encode %s command: %v", command, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/command", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build translator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, serializationErr("request %s: %v", command, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, serializationErr("read %s response body: %v", command, err)
	}
	if resp.StatusCode >= 500 {
		return nil, serializationErr("%s failed status=%d body=%s", command, resp.StatusCode, string(rawRespBody))
	}

	var raw bson.Raw
	if err := bson.UnmarshalExtJSON(rawRespBody, false, &raw); err != nil {
		return nil, serializationErr("decode %s response: %v", command, err)
	}
	if message, ok := raw.Lookup("error").StringValueOK(); ok && message != "" {
		internal, _ := raw.Lookup("error_is_internal").BooleanOK()
		return nil, &sqlerr.TranslatorError{Message: message, Internal: internal}
	}
	if resp.StatusCode >= 400 {
		return nil, &sqlerr.TranslatorError{Message: fmt.Sprintf("%s failed status=%d", command, resp.StatusCode)}
	}
	return raw, nil
}

func serializationErr(format string, args ...any) error {
	return &sqlerr.TranslatorError{Message: fmt.Sprintf(format, args...), Internal: true}
}
