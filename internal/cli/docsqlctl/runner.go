package docsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
	// output is "json", "table" or a file path for raw downloads.
	output string
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("docsqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "docsql API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	var (
		req request
		err error
	)
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health", output: "json"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready", output: "json"}
	case "query":
		req, err = parseQuery(fs.Args()[1:], stderr)
	case "export":
		req, err = parseExport(fs.Args()[1:], stderr)
	case "download":
		req, err = parseDownload(fs.Args()[1:], stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	switch req.output {
	case "table":
		if err := writeTable(stdout, responseBody); err != nil {
			_, _ = fmt.Fprintf(stderr, "render table: %v\n", err)
			return 1
		}
		return 0
	case "json", "":
	default:
		if err := os.WriteFile(req.output, responseBody, 0o644); err != nil {
			_, _ = fmt.Fprintf(stderr, "write %s: %v\n", req.output, err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "wrote %d bytes to %s\n", len(responseBody), req.output)
		return 0
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

type queryFlags struct {
	database  *string
	rowLimit  *int
	fetchSize *int
	timeout   *time.Duration
}

func bindQueryFlags(fs *flag.FlagSet) queryFlags {
	return queryFlags{
		database:  fs.String("database", "", "database to query instead of the connection default"),
		rowLimit:  fs.Int("row-limit", 0, "maximum rows to return (0 uses the server default)"),
		fetchSize: fs.Int("fetch-size", 0, "cursor batch size hint (0 leaves it unset)"),
		timeout:   fs.Duration("query-timeout", 0, "server-side query time limit (0 means none)"),
	}
}

func (q queryFlags) body(sqlText string) map[string]any {
	body := map[string]any{"sql": sqlText}
	if v := strings.TrimSpace(*q.database); v != "" {
		body["database"] = v
	}
	if *q.rowLimit > 0 {
		body["row_limit"] = *q.rowLimit
	}
	if *q.fetchSize > 0 {
		body["fetch_size"] = *q.fetchSize
	}
	if *q.timeout > 0 {
		body["timeout_ms"] = q.timeout.Milliseconds()
	}
	return body
}

func parseQuery(args []string, stderr io.Writer) (request, error) {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := bindQueryFlags(fs)
	output := fs.String("output", "json", "output format: json or table")
	if err := fs.Parse(args); err != nil {
		return request{}, err
	}
	sqlText, err := sqlArg(fs)
	if err != nil {
		return request{}, err
	}
	if *output != "json" && *output != "table" {
		return request{}, fmt.Errorf("unsupported output %q", *output)
	}
	return request{method: http.MethodPost, path: "/v1/query", body: flags.body(sqlText), output: *output}, nil
}

func parseExport(args []string, stderr io.Writer) (request, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := bindQueryFlags(fs)
	format := fs.String("format", "parquet", "export format: parquet or table")
	objectKey := fs.String("object-key", "", "object key for parquet exports")
	table := fs.String("table", "", "destination table for table exports")
	if err := fs.Parse(args); err != nil {
		return request{}, err
	}
	sqlText, err := sqlArg(fs)
	if err != nil {
		return request{}, err
	}
	body := flags.body(sqlText)
	body["format"] = *format
	if v := strings.TrimSpace(*objectKey); v != "" {
		body["object_key"] = v
	}
	if v := strings.TrimSpace(*table); v != "" {
		body["table"] = v
	}
	return request{method: http.MethodPost, path: "/v1/exports", body: body, output: "json"}, nil
}

func parseDownload(args []string, stderr io.Writer) (request, error) {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "file to write the export to")
	if err := fs.Parse(args); err != nil {
		return request{}, err
	}
	if fs.NArg() != 1 {
		return request{}, fmt.Errorf("expected exactly one object key")
	}
	if strings.TrimSpace(*out) == "" {
		return request{}, fmt.Errorf("-out is required")
	}
	segments := strings.Split(strings.Trim(fs.Arg(0), "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return request{method: http.MethodGet, path: "/v1/exports/" + strings.Join(segments, "/"), output: *out}, nil
}

func sqlArg(fs *flag.FlagSet) (string, error) {
	sqlText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if sqlText == "" {
		return "", fmt.Errorf("sql text is required")
	}
	return sqlText, nil
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

type tableResponse struct {
	Columns []struct {
		Label string `json:"label"`
		Table string `json:"table"`
	} `json:"columns"`
	Rows      [][]any `json:"rows"`
	Truncated bool    `json:"truncated"`
}

func writeTable(w io.Writer, raw []byte) error {
	var resp tableResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(resp.Columns))
	for i, col := range resp.Columns {
		headers[i] = col.Table + "." + col.Label
	}
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range resp.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = formatCell(cell)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if resp.Truncated {
		_, _ = fmt.Fprintf(w, "(%d rows, truncated)\n", len(resp.Rows))
	} else {
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(resp.Rows))
	}
	return nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return t
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(encoded)
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: docsqlctl [flags] <command> [command flags] [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health              GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready               GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  query <sql>         POST /v1/query")
	_, _ = fmt.Fprintln(w, "  export <sql>        POST /v1/exports")
	_, _ = fmt.Fprintln(w, "  download <key>      GET /v1/exports/<key>")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
