package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Natural-key attribute names shared by every layer of the pipeline.
const (
	AttrPatientID        = "PatientID"
	AttrStudyInstanceUID = "StudyInstanceUID"
	AttrSliceThickness   = "SliceThickness"
	AttrInstanceNumber   = "InstanceNumber"
)

var (
	// ErrMissingNaturalKey is returned when a record lacks PatientID or StudyInstanceUID.
	ErrMissingNaturalKey = errors.New("record is missing its natural key")
	// ErrUnsafeNaturalKey is returned when a key part cannot be used as a path segment.
	ErrUnsafeNaturalKey = errors.New("natural key is not a safe path segment")
)

// AttributeRecord is one object's extracted metadata: an ordered set of
// attribute names, each either holding a scalar value or absent.
// Records are immutable once built.
type AttributeRecord struct {
	columns []string
	values  map[string]string
}

// NewAttributeRecord builds a record over columns. Only names listed in
// columns are kept; entries of values for other names are ignored.
// Duplicate column names collapse onto their first position.
func NewAttributeRecord(columns []string, values map[string]string) AttributeRecord {
	seen := make(map[string]struct{}, len(columns))
	cols := make([]string, 0, len(columns))
	vals := make(map[string]string, len(values))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
		if v, ok := values[c]; ok {
			vals[c] = v
		}
	}
	return AttributeRecord{columns: cols, values: vals}
}

// RecordFromRow builds a record from a header and a row of cells, treating
// empty cells as absent.
func RecordFromRow(columns, row []string) AttributeRecord {
	values := make(map[string]string, len(columns))
	for i, c := range columns {
		if i < len(row) && row[i] != "" {
			values[c] = row[i]
		}
	}
	return NewAttributeRecord(columns, values)
}

// Columns returns a copy of the record's column names in order.
func (r AttributeRecord) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Get returns the value stored under name and whether it is present.
func (r AttributeRecord) Get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Row renders the record as cells aligned with Columns; absent values
// become empty cells.
func (r AttributeRecord) Row() []string {
	row := make([]string, len(r.columns))
	for i, c := range r.columns {
		row[i] = r.values[c]
	}
	return row
}

// Len returns the number of columns.
func (r AttributeRecord) Len() int { return len(r.columns) }

// IsEmpty reports whether the record carries no present value at all.
func (r AttributeRecord) IsEmpty() bool { return len(r.values) == 0 }

// Key derives the record's natural key.
func (r AttributeRecord) Key() (EntityKey, error) {
	key := EntityKey{
		PatientID:        strings.TrimSpace(r.values[AttrPatientID]),
		StudyInstanceUID: strings.TrimSpace(r.values[AttrStudyInstanceUID]),
	}
	if err := key.Validate(); err != nil {
		return EntityKey{}, err
	}
	return key, nil
}

// EntityKey identifies one consolidated study file.
type EntityKey struct {
	PatientID        string `json:"patient_id"`
	StudyInstanceUID string `json:"study_instance_uid"`
}

// Validate checks that both parts are present and usable as path segments.
func (k EntityKey) Validate() error {
	if k.PatientID == "" || k.StudyInstanceUID == "" {
		return ErrMissingNaturalKey
	}
	for _, part := range []string{k.PatientID, k.StudyInstanceUID} {
		if !SafeSegment(part) {
			return fmt.Errorf("%w: %q", ErrUnsafeNaturalKey, part)
		}
	}
	return nil
}

func (k EntityKey) String() string {
	return k.PatientID + "/" + k.StudyInstanceUID
}

// SafeSegment reports whether s can be used as a single directory or file
// name without escaping its parent.
func SafeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}
