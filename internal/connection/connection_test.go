package connection

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/config"
	"github.com/docsql/docsql/internal/docstore"
	"github.com/docsql/docsql/internal/extjson"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/statement"
	"github.com/docsql/docsql/internal/translate"
)

type fakeClient struct {
	pings  int
	closes int
}

func (c *fakeClient) Database(name string) docstore.Database { return nil }
func (c *fakeClient) Ping(context.Context) error               { c.pings++; return nil }
func (c *fakeClient) Close(context.Context) error              { c.closes++; return nil }

type nopTranslator struct{}

func (nopTranslator) Namespaces(context.Context, string, string) ([]translate.Namespace, error) {
	return nil, nil
}

func (nopTranslator) Translate(context.Context, string, string, bson.Raw) (translate.Result, error) {
	return translate.Result{}, nil
}

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		cluster config.ClusterType
		want    statement.Strategy
	}{
		{config.ClusterAtlasDataFederation, statement.AggregationStage},
		{config.ClusterEnterprise, statement.TranslateExecute},
		{"", statement.TranslateExecute},
	}
	for _, tc := range tests {
		got, err := StrategyFor(tc.cluster)
		if err != nil {
			t.Fatalf("StrategyFor(%q) error = %v", tc.cluster, err)
		}
		if got != tc.want {
			t.Fatalf("StrategyFor(%q) = %s, want %s", tc.cluster, got, tc.want)
		}
	}
	if _, err := StrategyFor("community"); err == nil {
		t.Fatal("expected error for unknown cluster type")
	}
}

func TestNewValidation(t *testing.T) {
	client := &fakeClient{}
	if _, err := New(nil, nil, Settings{Database: "db"}, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := New(client, nil, Settings{}, nil); !errors.Is(err, sqlerr.ErrInvalidInput) {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New(client, nil, Settings{Database: "db", ClusterType: config.ClusterEnterprise}, nil); err == nil {
		t.Fatal("expected error for enterprise without translator")
	}
	var sizeErr *sqlerr.FetchSizeError
	if _, err := New(client, nil, Settings{Database: "db", FetchSize: -5, ClusterType: config.ClusterAtlasDataFederation}, nil); !errors.As(err, &sizeErr) {
		t.Fatalf("New() error = %v", err)
	}
}

func TestCreateStatementUsesCurrentDatabase(t *testing.T) {
	conn, err := New(&fakeClient{}, nopTranslator{}, Settings{Database: "sales", ClusterType: config.ClusterEnterprise}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first, err := conn.CreateStatement()
	if err != nil {
		t.Fatalf("CreateStatement() error = %v", err)
	}
	if err := conn.SetDatabase("hr"); err != nil {
		t.Fatalf("SetDatabase() error = %v", err)
	}
	second, err := conn.CreateStatement()
	if err != nil {
		t.Fatalf("CreateStatement() error = %v", err)
	}
	if first.Database() != "sales" || second.Database() != "hr" {
		t.Fatalf("databases = %q, %q", first.Database(), second.Database())
	}
	if first.ID() == second.ID() {
		t.Fatalf("statement ids not unique: %d", first.ID())
	}
	if second.Strategy() != statement.TranslateExecute {
		t.Fatalf("Strategy() = %s", second.Strategy())
	}
	other, err := conn.CreateStatementFor("archive")
	if err != nil {
		t.Fatalf("CreateStatementFor() error = %v", err)
	}
	if other.Database() != "archive" || conn.Database() != "hr" {
		t.Fatalf("CreateStatementFor() database = %q, connection = %q", other.Database(), conn.Database())
	}
	if err := conn.SetDatabase(" "); !errors.Is(err, sqlerr.ErrInvalidInput) {
		t.Fatalf("SetDatabase() error = %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	client := &fakeClient{}
	conn, err := New(client, nil, Settings{Database: "db", ClusterType: config.ClusterAtlasDataFederation}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := conn.Close(ctx); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}
	if client.closes != 1 {
		t.Fatalf("client closed %d times", client.closes)
	}
	if _, err := conn.CreateStatement(); !errors.Is(err, sqlerr.ErrClosed) {
		t.Fatalf("CreateStatement() error = %v", err)
	}
	if err := conn.Ping(ctx); !errors.Is(err, sqlerr.ErrClosed) {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg, err := config.Load("docsql-test", func(key string) (string, bool) {
		values := map[string]string{
			"DOCSQL_PROFILE":                   "test",
			"DOCSQL_STORE_DATABASE":            "sales",
			"DOCSQL_QUERY_EXT_JSON":            "true",
			"DOCSQL_QUERY_UUID_REPRESENTATION": "java_legacy",
			"DOCSQL_QUERY_FETCH_SIZE":          "25",
		}
		v, ok := values[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig() error = %v", err)
	}
	if settings.Database != "sales" || settings.FetchSize != 25 {
		t.Fatalf("settings = %+v", settings)
	}
	if !settings.Format.Extended || settings.Format.UUIDRepresentation != extjson.UUIDJavaLegacy {
		t.Fatalf("Format = %+v", settings.Format)
	}
}
