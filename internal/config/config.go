package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

// ClusterType selects how statements are executed against the store.
type ClusterType string

const (
	ClusterEnterprise          ClusterType = "enterprise"
	ClusterAtlasDataFederation ClusterType = "atlas_data_federation"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	Query         QueryConfig
	Translator    TranslatorConfig
	ObjectStore   ObjectStoreConfig
	Sink          SinkConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StoreConfig struct {
	URI            string
	Database       string
	ClusterType    ClusterType
	ConnectTimeout time.Duration
	AppName        string
}

type QueryConfig struct {
	ExtJSON            bool
	UUIDRepresentation string
	FetchSize          int
	Timeout            time.Duration
	RowLimit           int
	SortColumns        bool
}

type TranslatorConfig struct {
	URL     string
	Timeout time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type SinkConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

var uuidRepresentations = []string{"unspecified", "standard", "java_legacy", "csharp_legacy", "python_legacy"}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DOCSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DOCSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "DOCSQL_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DOCSQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DOCSQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DOCSQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_STORE_URI", &cfg.Store.URI); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_STORE_DATABASE", &cfg.Store.Database); err != nil {
		return Config{}, err
	}
	if err := applyClusterType(lookup, "DOCSQL_STORE_CLUSTER_TYPE", &cfg.Store.ClusterType); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DOCSQL_STORE_CONNECT_TIMEOUT", &cfg.Store.ConnectTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_STORE_APP_NAME", &cfg.Store.AppName); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DOCSQL_QUERY_EXT_JSON", &cfg.Query.ExtJSON); err != nil {
		return Config{}, err
	}
	if err := applyEnum(lookup, "DOCSQL_QUERY_UUID_REPRESENTATION", uuidRepresentations, &cfg.Query.UUIDRepresentation); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DOCSQL_QUERY_FETCH_SIZE", &cfg.Query.FetchSize); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DOCSQL_QUERY_TIMEOUT", &cfg.Query.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DOCSQL_QUERY_ROW_LIMIT", &cfg.Query.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DOCSQL_QUERY_SORT_COLUMNS", &cfg.Query.SortColumns); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_TRANSLATOR_URL", &cfg.Translator.URL); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DOCSQL_TRANSLATOR_TIMEOUT", &cfg.Translator.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DOCSQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DOCSQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyEnum(lookup, "DOCSQL_SINK_DRIVER", []string{"pgx", "duckdb"}, &cfg.Sink.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_SINK_DSN", &cfg.Sink.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DOCSQL_SINK_MAX_OPEN_CONNS", &cfg.Sink.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DOCSQL_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "DOCSQL_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DOCSQL_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DOCSQL_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Store.URI == "" {
		return Config{}, fmt.Errorf("store uri is required")
	}
	if cfg.Store.Database == "" {
		return Config{}, fmt.Errorf("store database is required")
	}
	if cfg.Query.FetchSize < 0 {
		return Config{}, fmt.Errorf("invalid DOCSQL_QUERY_FETCH_SIZE: %d, fetch size must be >= 0", cfg.Query.FetchSize)
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "docsql-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "test",
			ClusterType:    ClusterEnterprise,
			ConnectTimeout: 10 * time.Second,
			AppName:        "docsql",
		},
		Query: QueryConfig{
			ExtJSON:            false,
			UUIDRepresentation: "standard",
			FetchSize:          0,
			Timeout:            0,
			RowLimit:           1000,
			SortColumns:        true,
		},
		Translator: TranslatorConfig{
			URL:     "",
			Timeout: 15 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "docsql-exports",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Sink: SinkConfig{
			Driver:       "duckdb",
			DSN:          "",
			MaxOpenConns: 4,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.Query.Timeout = 60 * time.Second
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyEnum(lookup LookupFunc, key string, allowed []string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allowed {
		if value == candidate {
			*dst = value
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (want one of %s)", key, raw, strings.Join(allowed, ", "))
}

func applyClusterType(lookup LookupFunc, key string, dst *ClusterType) error {
	value := string(*dst)
	if err := applyEnum(lookup, key, []string{string(ClusterEnterprise), string(ClusterAtlasDataFederation)}, &value); err != nil {
		return err
	}
	*dst = ClusterType(value)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
