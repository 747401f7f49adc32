package statement

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/docstore"
	"github.com/docsql/docsql/internal/metadata"
	"github.com/docsql/docsql/internal/resultset"
	"github.com/docsql/docsql/internal/schema"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/translate"
)

// Diagnostics records the intermediate artifacts of an execution so that a
// failure can be logged with everything needed to reproduce it.
type Diagnostics struct {
	SQL        string
	Namespaces []translate.Namespace
	Catalog    bson.Raw
	Schema     bson.Raw
	Pipeline   []bson.Raw
}

// LogValue renders raw documents as relaxed extended JSON.
func (d Diagnostics) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("sql", d.SQL)}
	if len(d.Namespaces) > 0 {
		names := make([]string, 0, len(d.Namespaces))
		for _, ns := range d.Namespaces {
			names = append(names, ns.String())
		}
		attrs = append(attrs, slog.Any("namespaces", names))
	}
	if len(d.Catalog) > 0 {
		attrs = append(attrs, slog.String("catalog", d.Catalog.String()))
	}
	if len(d.Schema) > 0 {
		attrs = append(attrs, slog.String("schema", d.Schema.String()))
	}
	if len(d.Pipeline) > 0 {
		stages := make([]string, 0, len(d.Pipeline))
		for _, stage := range d.Pipeline {
			stages = append(stages, stage.String())
		}
		attrs = append(attrs, slog.Any("pipeline", stages))
	}
	return slog.GroupValue(attrs...)
}

func (s *Statement) executeAggregationStage(ctx context.Context, sql string) (*resultset.ResultSet, error) {
	stage, err := bson.Marshal(bson.D{{Key: "$sql", Value: bson.D{{Key: "statement", Value: sql}}}})
	if err != nil {
		return nil, fmt.Errorf("%w: encode $sql stage: %v", sqlerr.ErrSerialization, err)
	}
	pipeline := []bson.Raw{stage}
	s.diagnostics.Pipeline = pipeline

	db := s.client.Database(s.database)
	cursor, err := db.Aggregate(ctx, pipeline, s.storeOptions())
	if err != nil {
		return nil, fmt.Errorf("run $sql aggregation: %w", err)
	}

	reply, err := db.RunCommand(ctx, bson.D{
		{Key: "sqlGetResultSchema", Value: 1},
		{Key: "query", Value: sql},
		{Key: "schemaVersion", Value: 1},
	}, docstore.Options{MaxTime: s.timeout})
	if err != nil {
		_ = cursor.Close(ctx)
		return nil, fmt.Errorf("get result schema: %w", err)
	}
	s.diagnostics.Schema = reply

	resp, err := schema.DecodeSchemaResponse(reply)
	if err != nil {
		_ = cursor.Close(ctx)
		return nil, err
	}
	catalog, err := metadata.NewFromSchema(resp.Schema, resp.SelectOrder, s.sortColumns)
	if err != nil {
		_ = cursor.Close(ctx)
		return nil, err
	}
	return s.newResultSet(ctx, cursor, catalog)
}

func (s *Statement) executeTranslated(ctx context.Context, sql string) (*resultset.ResultSet, error) {
	namespaces, err := s.translator.Namespaces(ctx, s.database, sql)
	if err != nil {
		return nil, fmt.Errorf("resolve namespaces: %w", err)
	}
	s.diagnostics.Namespaces = namespaces
	if len(namespaces) > 0 && namespaces[0].Database != "" && namespaces[0].Database != s.database {
		s.logger.DebugContext(ctx, "statement_switch_database",
			slog.String("from", s.database),
			slog.String("to", namespaces[0].Database),
		)
		s.database = namespaces[0].Database
	}

	catalogDoc, err := translate.BuildCatalog(ctx, s.client, s.database, namespaces)
	if err != nil {
		return nil, err
	}
	s.diagnostics.Catalog = catalogDoc

	translation, err := s.translator.Translate(ctx, sql, s.database, catalogDoc)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	s.diagnostics.Schema = translation.ResultSetSchema
	s.diagnostics.Pipeline = translation.Pipeline

	root, err := schema.Decode(translation.ResultSetSchema)
	if err != nil {
		return nil, err
	}
	order := make([]schema.ColumnRef, 0, len(translation.SelectOrder))
	for _, parts := range translation.SelectOrder {
		ref, err := schema.NewColumnRef(parts)
		if err != nil {
			return nil, err
		}
		order = append(order, ref)
	}
	catalog, err := metadata.NewFromSchema(root, order, s.sortColumns)
	if err != nil {
		return nil, err
	}

	targetDB := translation.TargetDB
	if targetDB == "" {
		targetDB = s.database
	}
	db := s.client.Database(targetDB)
	var cursor docstore.Cursor
	if translation.TargetCollection != "" {
		cursor, err = db.AggregateCollection(ctx, translation.TargetCollection, translation.Pipeline, s.storeOptions())
	} else {
		cursor, err = db.Aggregate(ctx, translation.Pipeline, s.storeOptions())
	}
	if err != nil {
		return nil, fmt.Errorf("run translated pipeline: %w", err)
	}
	return s.newResultSet(ctx, cursor, catalog)
}

func (s *Statement) newResultSet(ctx context.Context, cursor docstore.Cursor, catalog *metadata.Catalog) (*resultset.ResultSet, error) {
	rs, err := resultset.New(cursor, catalog, s.resultSetOptions())
	if err != nil {
		_ = cursor.Close(ctx)
		return nil, err
	}
	return rs, nil
}
