package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// Ext is the file extension of persisted tables.
const Ext = ".csv"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrMalformed is returned when persisted bytes are not a valid table.
var ErrMalformed = errors.New("malformed table")

// Encode renders the table as CSV, header first.
func (t *Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the table as CSV to w.
func (t *Table) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Decode parses CSV produced by Encode (or by any spreadsheet tool; a UTF-8
// BOM is tolerated). Empty input yields an empty table without columns.
func Decode(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return New(nil), nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	t := New(header)
	if len(t.columns) != len(header) {
		return nil, fmt.Errorf("%w: duplicate column in header", ErrMalformed)
	}

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d", ErrMalformed, line, len(rec), len(header))
		}
		t.AppendRow(rec)
	}
	return t, nil
}
