package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/shelfwise/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Format is an export file format
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a format name or a file extension
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(value, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s (supported: json, yaml, parquet)", value)
	}
}

// Write encodes books to w in the given format
func Write(w io.Writer, format Format, books []models.Book) error {
	if books == nil {
		books = []models.Book{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(books); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(books); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	case FormatParquet:
		return writeParquet(w, books)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func writeParquet(w io.Writer, books []models.Book) error {
	writer := parquet.NewGenericWriter[models.Book](w)
	if _, err := writer.Write(books); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
