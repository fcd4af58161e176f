package bulk

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// sink writes shielded rows in input order
type sink interface {
	WriteRow(row *Row) error
	Close() error
}

func createSink(path string, format FileFormat, header, columns []string) (sink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	switch format {
	case FormatJSONL:
		return &jsonlSink{file: file, buf: bufio.NewWriter(file), columns: columns}, nil
	default:
		s := &csvSink{file: file, writer: csv.NewWriter(file)}
		out := append([]string{}, header...)
		for _, col := range columns {
			out = append(out, ShieldedColumn(col))
		}
		if err := s.writer.Write(out); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		return s, nil
	}
}

// csvSink appends the shielded columns after the original ones
type csvSink struct {
	file   *os.File
	writer *csv.Writer
}

func (s *csvSink) WriteRow(row *Row) error {
	record := make([]string, 0, len(row.Values)+len(row.Shielded))
	record = append(record, row.Values...)
	record = append(record, row.Shielded...)
	return s.writer.Write(record)
}

func (s *csvSink) Close() error {
	s.writer.Flush()
	err := s.writer.Error()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// jsonlSink writes each input object with the shielded keys added
type jsonlSink struct {
	file    *os.File
	buf     *bufio.Writer
	columns []string
}

func (s *jsonlSink) WriteRow(row *Row) error {
	object := row.Object
	if object == nil {
		object = make(map[string]interface{}, len(s.columns))
	}
	for i, col := range s.columns {
		object[ShieldedColumn(col)] = row.Shielded[i]
	}

	data, err := json.Marshal(object)
	if err != nil {
		return fmt.Errorf("failed to encode JSON record: %w", err)
	}
	if _, err := s.buf.Write(data); err != nil {
		return err
	}
	return s.buf.WriteByte('\n')
}

func (s *jsonlSink) Close() error {
	err := s.buf.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
