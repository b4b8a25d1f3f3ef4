package domain

import (
	"fmt"
	"slices"
)

// DatamartCategory is a named, column-projected partition of consolidated
// records. PrimaryKey is empty for categories deduplicated on whole rows.
type DatamartCategory struct {
	Name       string   `json:"name" yaml:"name" validate:"required"`
	Columns    []string `json:"columns" yaml:"columns" validate:"required,min=1,dive,required"`
	PrimaryKey string   `json:"primary_key,omitempty" yaml:"primary_key"`
}

// HasPrimaryKey reports whether incremental loads are keyed.
func (c DatamartCategory) HasPrimaryKey() bool { return c.PrimaryKey != "" }

// Validate checks the category is usable as an output partition.
func (c DatamartCategory) Validate() error {
	if !SafeSegment(c.Name) {
		return fmt.Errorf("datamart name %q is not a safe path segment", c.Name)
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("datamart %s has no columns", c.Name)
	}
	if c.HasPrimaryKey() && !slices.Contains(c.Columns, c.PrimaryKey) {
		return fmt.Errorf("datamart %s primary key %s is not one of its columns", c.Name, c.PrimaryKey)
	}
	return nil
}

// DatamartInfo describes the current state of one datamart file.
type DatamartInfo struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Columns    []string `json:"columns"`
	PrimaryKey string   `json:"primary_key,omitempty"`
	Rows       int      `json:"rows"`
	Exists     bool     `json:"exists"`
}
