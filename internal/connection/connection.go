package connection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docsql/docsql/internal/config"
	"github.com/docsql/docsql/internal/docstore"
	"github.com/docsql/docsql/internal/docstore/mongo"
	"github.com/docsql/docsql/internal/extjson"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/statement"
	"github.com/docsql/docsql/internal/translate"
)

type Settings struct {
	Database    string
	ClusterType config.ClusterType
	Format      extjson.Options
	FetchSize   int
	Timeout     time.Duration
	SortColumns bool
}

// SettingsFromConfig derives connection settings from service configuration.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	rep, err := extjson.ParseUUIDRepresentation(cfg.Query.UUIDRepresentation)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Database:    cfg.Store.Database,
		ClusterType: cfg.Store.ClusterType,
		Format:      extjson.Options{Extended: cfg.Query.ExtJSON, UUIDRepresentation: rep},
		FetchSize:   cfg.Query.FetchSize,
		Timeout:     cfg.Query.Timeout,
		SortColumns: cfg.Query.SortColumns,
	}, nil
}

// StrategyFor maps a cluster type to its execution strategy.
func StrategyFor(cluster config.ClusterType) (statement.Strategy, error) {
	switch cluster {
	case config.ClusterAtlasDataFederation:
		return statement.AggregationStage, nil
	case config.ClusterEnterprise, "":
		return statement.TranslateExecute, nil
	default:
		return 0, fmt.Errorf("unsupported cluster type %q", cluster)
	}
}

// Connection is a session against one document store. Statements created
// from it share its client and start in its current database.
type Connection struct {
	client     docstore.Client
	translator translate.Translator
	strategy   statement.Strategy
	settings   Settings
	logger     *slog.Logger

	nextID atomic.Int64

	mu       sync.RWMutex
	database string
	closed   bool
}

func New(client docstore.Client, translator translate.Translator, settings Settings, logger *slog.Logger) (*Connection, error) {
	if client == nil {
		return nil, fmt.Errorf("document store client is required")
	}
	if strings.TrimSpace(settings.Database) == "" {
		return nil, sqlerr.Invalid("database name is required")
	}
	if settings.FetchSize < 0 {
		return nil, &sqlerr.FetchSizeError{Size: settings.FetchSize}
	}
	strategy, err := StrategyFor(settings.ClusterType)
	if err != nil {
		return nil, err
	}
	if strategy == statement.TranslateExecute && translator == nil {
		return nil, fmt.Errorf("cluster type %q requires a translator", settings.ClusterType)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Connection{
		client:     client,
		translator: translator,
		strategy:   strategy,
		settings:   settings,
		logger:     logger,
		database:   settings.Database,
	}, nil
}

// Open connects to the configured store and, for enterprise clusters, the
// configured translator service.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Connection, error) {
	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	var translator translate.Translator
	if strings.TrimSpace(cfg.Translator.URL) != "" {
		translator, err = translate.NewHTTPTranslator(translate.HTTPConfig{
			BaseURL: cfg.Translator.URL,
			Timeout: cfg.Translator.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}
	client, err := mongo.Connect(ctx, mongo.Config{
		URI:            cfg.Store.URI,
		AppName:        cfg.Store.AppName,
		ConnectTimeout: cfg.Store.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	conn, err := New(client, translator, settings, logger)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}
	return conn, nil
}

func (c *Connection) Strategy() statement.Strategy {
	return c.strategy
}

// CreateStatement returns a statement bound to the current database.
func (c *Connection) CreateStatement() (*statement.Statement, error) {
	return c.CreateStatementFor("")
}

// CreateStatementFor returns a statement bound to database, or to the current
// database when it is empty. The connection's database is left unchanged.
func (c *Connection) CreateStatementFor(database string) (*statement.Statement, error) {
	c.mu.RLock()
	closed, current := c.closed, c.database
	c.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: connection", sqlerr.ErrClosed)
	}
	if database = strings.TrimSpace(database); database == "" {
		database = current
	}
	return statement.New(c.nextID.Add(1), c.strategy, statement.Options{
		Client:      c.client,
		Database:    database,
		Translator:  c.translator,
		Format:      c.settings.Format,
		SortColumns: c.settings.SortColumns,
		FetchSize:   c.settings.FetchSize,
		Timeout:     c.settings.Timeout,
		Logger:      c.logger,
	})
}

func (c *Connection) Database() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.database
}

// SetDatabase changes the database used by statements created afterwards.
func (c *Connection) SetDatabase(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return sqlerr.Invalid("database name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connection", sqlerr.ErrClosed)
	}
	c.database = name
	return nil
}

func (c *Connection) Ping(ctx context.Context) error {
	if c.IsClosed() {
		return fmt.Errorf("%w: connection", sqlerr.ErrClosed)
	}
	return c.client.Ping(ctx)
}

func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close disconnects the client. Closing twice is a no-op.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	if err := c.client.Close(ctx); err != nil {
		return fmt.Errorf("close document store client: %w", err)
	}
	return nil
}
