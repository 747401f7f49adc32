package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ExportKey builds the object key for one export:
// <prefix>/date=YYYY-MM-DD/<id>.<format>. An empty prefix is omitted.
func ExportKey(prefix, format string, at time.Time, id string) (string, error) {
	if err := validateKeyComponent(format, "format"); err != nil {
		return "", err
	}
	if err := validateKeyComponent(id, "export id"); err != nil {
		return "", err
	}
	parts := make([]string, 0, 3)
	for _, component := range strings.Split(strings.Trim(prefix, "/"), "/") {
		if component == "" {
			continue
		}
		if err := validateKeyComponent(component, "prefix"); err != nil {
			return "", err
		}
		parts = append(parts, component)
	}
	ts := at.UTC()
	parts = append(parts,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		id+"."+format,
	)
	return path.Join(parts...), nil
}

// ValidateKey accepts caller supplied keys made of safe components only.
func ValidateKey(key string) error {
	key = strings.Trim(key, "/")
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	for _, component := range strings.Split(key, "/") {
		if err := validateKeyComponent(component, "object key component"); err != nil {
			return err
		}
	}
	return nil
}

func validateKeyComponent(value, field string) error {
	if !keyComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

const (
	ParquetContentType = "application/vnd.apache.parquet"
	binaryContentType  = "application/octet-stream"
)

// ContentTypeFor picks the content type of an export object from its key.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".parquet":
		return ParquetContentType
	default:
		return binaryContentType
	}
}
