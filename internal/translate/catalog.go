package translate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/docstore"
	"github.com/docsql/docsql/internal/sqlerr"
)

// SchemaCollection holds one {_id: collection, schema: {...}} document per
// collection that can be queried with SQL.
const SchemaCollection = "__sql_schemas"

// BuildCatalog reads the stored schema of every namespace and returns the
// catalog document {database: {collection: schema}}. Namespaces without a
// database resolve against currentDB.
func BuildCatalog(ctx context.Context, client docstore.Client, currentDB string, namespaces []Namespace) (bson.Raw, error) {
	byDatabase := map[string][]string{}
	for _, ns := range namespaces {
		db := ns.Database
		if db == "" {
			db = currentDB
		}
		byDatabase[db] = appendUnique(byDatabase[db], ns.Collection)
	}
	databases := make([]string, 0, len(byDatabase))
	for db := range byDatabase {
		databases = append(databases, db)
	}
	sort.Strings(databases)

	catalog := bson.D{}
	for _, db := range databases {
		collections := byDatabase[db]
		schemas, err := loadSchemas(ctx, client.Database(db), collections)
		if err != nil {
			return nil, err
		}
		var missing []string
		entry := bson.D{}
		for _, coll := range collections {
			schema, ok := schemas[coll]
			if !ok {
				missing = append(missing, coll)
				continue
			}
			entry = append(entry, bson.E{Key: coll, Value: schema})
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: no stored schema for collections %s in database %q",
				sqlerr.ErrQueryInvalid, strings.Join(missing, ", "), db)
		}
		catalog = append(catalog, bson.E{Key: db, Value: entry})
	}
	raw, err := bson.Marshal(catalog)
	if err != nil {
		return nil, fmt.Errorf("%w: encode catalog: %v", sqlerr.ErrSerialization, err)
	}
	return raw, nil
}

func loadSchemas(ctx context.Context, db docstore.Database, collections []string) (map[string]bson.Raw, error) {
	match, err := bson.Marshal(bson.D{{Key: "$match", Value: bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: collections}}},
	}}})
	if err != nil {
		return nil, fmt.Errorf("encode schema lookup: %w", err)
	}
	cursor, err := db.AggregateCollection(ctx, SchemaCollection, []bson.Raw{match}, docstore.Options{})
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", db.Name(), SchemaCollection, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	out := map[string]bson.Raw{}
	for {
		ok, err := cursor.HasNext(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", db.Name(), SchemaCollection, err)
		}
		if !ok {
			return out, nil
		}
		doc, err := cursor.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", db.Name(), SchemaCollection, err)
		}
		name, ok := doc.Lookup("_id").StringValueOK()
		if !ok {
			continue
		}
		schema, ok := doc.Lookup("schema").DocumentOK()
		if !ok {
			return nil, fmt.Errorf("%w: schema for %q is not a document", sqlerr.ErrSerialization, name)
		}
		out[name] = schema
	}
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
