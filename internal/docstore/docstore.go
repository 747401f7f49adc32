package docstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrTimeLimitExceeded is returned when the backend aborts an operation
// because its time limit elapsed.
var ErrTimeLimitExceeded = errors.New("operation exceeded time limit")

// Options are per-operation execution controls. Zero values mean unset.
type Options struct {
	MaxTime   time.Duration
	BatchSize int32
}

// Cursor iterates documents. HasNext may block to fetch the next batch.
type Cursor interface {
	HasNext(ctx context.Context) (bool, error)
	Next(ctx context.Context) (bson.Raw, error)
	Close(ctx context.Context) error
}

type Database interface {
	Name() string
	Aggregate(ctx context.Context, pipeline []bson.Raw, opts Options) (Cursor, error)
	AggregateCollection(ctx context.Context, collection string, pipeline []bson.Raw, opts Options) (Cursor, error)
	RunCommand(ctx context.Context, command bson.D, opts Options) (bson.Raw, error)
}

type Client interface {
	Database(name string) Database
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
