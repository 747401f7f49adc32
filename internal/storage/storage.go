package storage

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// ExportMetadata describes the query result an exported object holds. Stores
// keep it next to the object and return it from Stat.
type ExportMetadata struct {
	Format      string
	Rows        int64
	Truncated   bool
	StatementID int64
}

const (
	metaFormat      = "docsql-format"
	metaRows        = "docsql-rows"
	metaTruncated   = "docsql-truncated"
	metaStatementID = "docsql-statement-id"
)

// Map renders m as object user metadata. A zero m renders nothing.
func (m ExportMetadata) Map() map[string]string {
	if m == (ExportMetadata{}) {
		return nil
	}
	return map[string]string{
		metaFormat:      m.Format,
		metaRows:        strconv.FormatInt(m.Rows, 10),
		metaTruncated:   strconv.FormatBool(m.Truncated),
		metaStatementID: strconv.FormatInt(m.StatementID, 10),
	}
}

// ParseExportMetadata reads the keys written by Map. Key case is ignored since
// S3 canonicalizes metadata header names. Unparseable values read as zero.
func ParseExportMetadata(meta map[string]string) ExportMetadata {
	var out ExportMetadata
	for key, value := range meta {
		value = strings.TrimSpace(value)
		switch strings.ToLower(key) {
		case metaFormat:
			out.Format = value
		case metaRows:
			out.Rows, _ = strconv.ParseInt(value, 10, 64)
		case metaTruncated:
			out.Truncated, _ = strconv.ParseBool(value)
		case metaStatementID:
			out.StatementID, _ = strconv.ParseInt(value, 10, 64)
		}
	}
	return out
}

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	// Location is the store-qualified address of the object, e.g. s3://bucket/key.
	Location string
	Export   ExportMetadata
}

type PutOptions struct {
	// ContentType defaults from the key's extension when empty.
	ContentType string
	Export      ExportMetadata
}

// ObjectStore holds finished exports.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
