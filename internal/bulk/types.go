package bulk

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// Scanner is the part of the engine the pipeline needs
type Scanner interface {
	ScanContext(ctx context.Context, text string) (sentinel.ScanResult, error)
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatJSONL   FileFormat = "jsonl"
	FormatParquet FileFormat = "parquet"
	FormatUnknown FileFormat = ""
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	case ".parquet":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// OutputPath returns where the shielded copy of path is written:
// <dir>/<stem><suffix><ext>. Parquet input is written as CSV.
func OutputPath(path, suffix string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	if DetectFileFormat(path) == FormatParquet {
		ext = ".csv"
	}
	return filepath.Join(filepath.Dir(path), stem+suffix+ext)
}

// ShieldedColumn names the output column holding the redacted copy of col
func ShieldedColumn(col string) string {
	return col + "_shielded"
}

// Status values for a processing result
const (
	StatusCompleted = "COMPLETED"
	StatusError     = "ERROR"
)

// Result represents the result of processing one file
type Result struct {
	Status          string                  `json:"status"`
	InputFile       string                  `json:"input_file"`
	OutputFile      string                  `json:"output_file,omitempty"`
	Format          FileFormat              `json:"format"`
	RowsProcessed   int                     `json:"rows_processed"`
	RowsSkipped     int                     `json:"rows_skipped"`
	ColumnsShielded []string                `json:"columns_shielded"`
	TotalIncidents  int                     `json:"total_incidents"`
	StatusCounts    map[sentinel.Status]int `json:"status_counts"`
	Duration        time.Duration           `json:"duration"`
	Timestamp       time.Time               `json:"timestamp"`
	Error           string                  `json:"error,omitempty"`
}

// Row is one input record. Values are aligned to the source header;
// Object is set only for JSON lines input.
type Row struct {
	Values   []string
	Object   map[string]interface{}
	Shielded []string

	statuses  []sentinel.Status
	incidents int
}
