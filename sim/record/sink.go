package record

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink is an open record destination. Write appends one record; Close drains
// buffered data and releases the destination. Writes are serialized by the
// owning Recorder, so implementations need no locking of their own.
type Sink interface {
	Write(rec map[string]Value) error
	Close() error
}

// Open routes on the path: a redis:// URL yields a Redis list sink, otherwise
// the file extension selects the format (.jsonl/.json for JSON-lines, .csv
// for CSV). The schema is consulted by formats that need a header.
func Open(path string, schema *Schema) (Sink, error) {
	if strings.HasPrefix(path, redisScheme) {
		return openRedisSink(path)
	}
	switch ext := filepath.Ext(path); ext {
	case ".jsonl", ".json":
		return openJSONLSink(path)
	case ".csv":
		return openCSVSink(path, schema)
	default:
		return nil, fmt.Errorf("record sink: unsupported extension %q in %q", ext, path)
	}
}

// jsonlSink writes one JSON object per record line.
type jsonlSink struct {
	f *os.File
	w *bufio.Writer
}

func openJSONLSink(path string) (*jsonlSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &jsonlSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *jsonlSink) Write(rec map[string]Value) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *jsonlSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// csvSink writes records as CSV rows. The header is derived from the schema
// at the first write after the sink is opened; keys enabled later are not
// added to the header and their values are dropped from CSV output.
type csvSink struct {
	f      *os.File
	w      *csv.Writer
	schema *Schema
	header []string
}

func openCSVSink(path string, schema *Schema) (*csvSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &csvSink{f: f, w: csv.NewWriter(f), schema: schema}, nil
}

func (s *csvSink) Write(rec map[string]Value) error {
	if s.header == nil {
		s.header = s.schema.Keys()
		if err := s.w.Write(s.header); err != nil {
			return err
		}
	}
	row := make([]string, len(s.header))
	for i, key := range s.header {
		if v, ok := rec[key]; ok {
			row[i] = v.String()
		}
	}
	return s.w.Write(row)
}

func (s *csvSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
