package translate

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Namespace struct {
	Database   string `bson:"database"`
	Collection string `bson:"collection"`
}

// Result is an executable plan for one SQL query. An empty TargetCollection
// means the pipeline runs against the database itself.
type Result struct {
	TargetDB         string     `bson:"target_db"`
	TargetCollection string     `bson:"target_collection"`
	Pipeline         []bson.Raw `bson:"pipeline"`
	ResultSetSchema  bson.Raw   `bson:"result_set_schema"`
	SelectOrder      [][]string `bson:"select_order"`
}

// Translator turns SQL into aggregation pipelines. Failures are
// *sqlerr.TranslatorError values.
type Translator interface {
	Namespaces(ctx context.Context, database, sql string) ([]Namespace, error)
	Translate(ctx context.Context, sql, database string, catalog bson.Raw) (Result, error)
}

func (n Namespace) String() string {
	if n.Database == "" {
		return n.Collection
	}
	return n.Database + "." + n.Collection
}
