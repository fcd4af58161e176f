package bulk

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/segmentio/parquet-go"
)

// source yields rows aligned to a fixed header
type source interface {
	Header() []string
	// Next returns io.EOF after the last row. Malformed rows return an
	// errSkipRow-wrapped error and reading may continue.
	Next() (*Row, error)
	Close() error
}

var errSkipRow = errors.New("malformed row")

func openSource(path string, format FileFormat) (source, error) {
	switch format {
	case FormatCSV:
		return openCSV(path)
	case FormatJSONL:
		return openJSONL(path)
	case FormatParquet:
		return openParquet(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", path)
	}
}

// csvSource reads a CSV file with a header row
type csvSource struct {
	file   *os.File
	reader *csv.Reader
	header []string
}

func openCSV(path string) (*csvSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("CSV file is empty: %s", path)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	return &csvSource{file: file, reader: reader, header: header}, nil
}

func (s *csvSource) Header() []string { return s.header }

func (s *csvSource) Next() (*Row, error) {
	record, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return nil, fmt.Errorf("%w: %v", errSkipRow, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV record: %w", err)
	}
	return &Row{Values: record}, nil
}

func (s *csvSource) Close() error { return s.file.Close() }

// jsonlSource reads one JSON object per line. The header is the sorted
// key set of the first object.
type jsonlSource struct {
	file    *os.File
	decoder *json.Decoder
	header  []string
	first   *Row
}

func openJSONL(path string) (*jsonlSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}

	s := &jsonlSource{file: file, decoder: json.NewDecoder(file)}

	var raw json.RawMessage
	if err := s.decoder.Decode(&raw); err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("JSON file is empty: %s", path)
		}
		return nil, fmt.Errorf("failed to read first JSON record: %w", err)
	}
	first, err := decodeObject(raw)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("first JSON record: %w", err)
	}

	for key := range first {
		s.header = append(s.header, key)
	}
	sort.Strings(s.header)
	s.first = s.row(first)

	return s, nil
}

func (s *jsonlSource) Header() []string { return s.header }

func (s *jsonlSource) Next() (*Row, error) {
	if s.first != nil {
		row := s.first
		s.first = nil
		return row, nil
	}

	var raw json.RawMessage
	if err := s.decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		// a syntax error leaves the decoder unusable
		return nil, fmt.Errorf("failed to read JSON record: %w", err)
	}

	object, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errSkipRow, err)
	}
	return s.row(object), nil
}

// decodeObject decodes one JSON value that must be an object
func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var object map[string]interface{}
	if err := decoder.Decode(&object); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	if object == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	return object, nil
}

func (s *jsonlSource) row(object map[string]interface{}) *Row {
	values := make([]string, len(s.header))
	for i, key := range s.header {
		values[i] = stringify(object[key])
	}
	return &Row{Values: values, Object: object}
}

func (s *jsonlSource) Close() error { return s.file.Close() }

// stringify renders a decoded JSON value as scannable text
func stringify(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	case bool:
		return strconv.FormatBool(value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(data)
	}
}

// parquetSource reads the leaf columns of a flat Parquet file
type parquetSource struct {
	file   *os.File
	reader *parquet.Reader
	header []string
	buf    []parquet.Row
	pos    int
	n      int
	done   bool
}

func openParquet(path string) (*parquetSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	reader := parquet.NewReader(file)

	var header []string
	for _, column := range reader.Schema().Columns() {
		header = append(header, column[len(column)-1])
	}

	return &parquetSource{
		file:   file,
		reader: reader,
		header: header,
		buf:    make([]parquet.Row, 64),
	}, nil
}

func (s *parquetSource) Header() []string { return s.header }

func (s *parquetSource) Next() (*Row, error) {
	for s.pos >= s.n {
		if s.done {
			return nil, io.EOF
		}
		n, err := s.reader.ReadRows(s.buf)
		s.pos, s.n = 0, n
		if err == io.EOF {
			s.done = true
		} else if err != nil {
			return nil, fmt.Errorf("failed to read Parquet rows: %w", err)
		}
	}

	row := s.buf[s.pos]
	s.pos++

	values := make([]string, len(s.header))
	seen := make([]bool, len(s.header))
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(values) || seen[col] {
			continue
		}
		seen[col] = true
		values[col] = parquetString(v)
	}
	return &Row{Values: values}, nil
}

func (s *parquetSource) Close() error {
	err := s.reader.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func parquetString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return fmt.Sprint(v.Int96())
	}
}
