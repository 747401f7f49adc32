package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/docsql/docsql/internal/docstore"
)

type Config struct {
	URI            string
	AppName        string
	ConnectTimeout time.Duration
}

type Client struct {
	client *mongo.Client
}

func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("store uri is required")
	}
	opts := options.Client().ApplyURI(strings.TrimSpace(cfg.URI))
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}
	c := &Client{client: client}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Client) Database(name string) docstore.Database {
	return &Database{db: c.client.Database(name)}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		return fmt.Errorf("ping document store: %w", err)
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("disconnect document store: %w", err)
	}
	return nil
}

type Database struct {
	db *mongo.Database
}

func (d *Database) Name() string {
	return d.db.Name()
}

func (d *Database) Aggregate(ctx context.Context, pipeline []bson.Raw, opts docstore.Options) (docstore.Cursor, error) {
	opCtx, cancel := withMaxTime(ctx, opts.MaxTime)
	defer cancel()
	cursor, err := d.db.Aggregate(opCtx, pipeline, aggregateOptions(opts))
	if err != nil {
		return nil, mapErr(fmt.Errorf("aggregate on database %q", d.db.Name()), err)
	}
	return newCursor(cursor, opts.MaxTime), nil
}

func (d *Database) AggregateCollection(ctx context.Context, collection string, pipeline []bson.Raw, opts docstore.Options) (docstore.Cursor, error) {
	opCtx, cancel := withMaxTime(ctx, opts.MaxTime)
	defer cancel()
	cursor, err := d.db.Collection(collection).Aggregate(opCtx, pipeline, aggregateOptions(opts))
	if err != nil {
		return nil, mapErr(fmt.Errorf("aggregate on %s.%s", d.db.Name(), collection), err)
	}
	return newCursor(cursor, opts.MaxTime), nil
}

func (d *Database) RunCommand(ctx context.Context, command bson.D, opts docstore.Options) (bson.Raw, error) {
	opCtx, cancel := withMaxTime(ctx, opts.MaxTime)
	defer cancel()
	raw, err := d.db.RunCommand(opCtx, command).Raw()
	if err != nil {
		return nil, mapErr(fmt.Errorf("run command on database %q", d.db.Name()), err)
	}
	return raw, nil
}

func aggregateOptions(opts docstore.Options) *options.AggregateOptionsBuilder {
	builder := options.Aggregate()
	if opts.BatchSize > 0 {
		builder.SetBatchSize(opts.BatchSize)
	}
	return builder
}

func withMaxTime(ctx context.Context, maxTime time.Duration) (context.Context, context.CancelFunc) {
	if maxTime <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, maxTime)
}

func mapErr(op error, err error) error {
	if mongo.IsTimeout(err) {
		return fmt.Errorf("%v: %w: %v", op, docstore.ErrTimeLimitExceeded, err)
	}
	return fmt.Errorf("%v: %w", op, err)
}
