package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrEmptyFile is returned (wrapped) when a file has no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

// LoadError reports that a source file could not be read as a CSV table.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads a comma-separated file with a header row. The file is closed
// before Load returns, whatever the outcome.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	return Read(f, path)
}

// Read parses CSV from r. Every data row must have as many fields as the
// header. Cell values are kept verbatim; blank cells become nulls.
func Read(r io.Reader, name string) (*Table, error) {
	cr := csv.NewReader(wrapForLoad(r))
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &LoadError{Path: name, Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, &LoadError{Path: name, Err: fmt.Errorf("invalid csv: %w", err)}
	}
	values := make([][]string, len(header))
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrEncoding) {
				return nil, &LoadError{Path: name, Err: err}
			}
			return nil, &LoadError{Path: name, Err: fmt.Errorf("invalid csv: %w", err)}
		}
		for i, v := range record {
			values[i] = append(values[i], v)
		}
	}

	cols := make([]*Column, len(header))
	for i, h := range header {
		cols[i] = TextColumn(h, values[i]...)
	}

	t, err := New(name, cols...)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	return t, nil
}
