package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_Constants(t *testing.T) {
	tests := []struct {
		errType  ErrorType
		expected string
	}{
		{ErrTypeDecode, "DECODE"},
		{ErrTypeExtraction, "EXTRACTION"},
		{ErrTypeEmptyRecord, "EMPTY_RECORD"},
		{ErrTypePersistence, "PERSISTENCE"},
		{ErrTypeAggregation, "AGGREGATION"},
		{ErrTypeSource, "SOURCE"},
		{ErrTypeValidation, "VALIDATION"},
		{ErrTypeNotFound, "NOT_FOUND"},
		{ErrTypeConfig, "CONFIG"},
		{ErrTypeConflict, "CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.errType))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "error without cause",
			appError:    &AppError{Type: ErrTypeEmptyRecord, Message: "record has no natural key"},
			wantMessage: "[EMPTY_RECORD] record has no natural key",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypePersistence,
				Message: "rename entity file",
				Cause:   fmt.Errorf("permission denied"),
			},
			wantMessage: "[PERSISTENCE] rename entity file: permission denied",
		},
		{
			name:        "error with empty message",
			appError:    &AppError{Type: ErrTypeValidation},
			wantMessage: "[VALIDATION] ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_UnwrapAndIs(t *testing.T) {
	root := errors.New("unexpected EOF")
	err := NewDecodeError("parse object", root)

	assert.Equal(t, root, err.Unwrap())
	assert.True(t, errors.Is(err, root))

	wrapped := fmt.Errorf("object a/b.dcm: %w", err)
	var appErr *AppError
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, ErrTypeDecode, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := &AppError{Type: ErrTypeSource, Message: "list objects"}
	got := err.WithContext("bucket", "raw").WithContext("prefix", "lidc/")

	assert.Same(t, err, got)
	assert.Equal(t, "raw", got.Context["bucket"])
	assert.Equal(t, "lidc/", got.Context["prefix"])
}

func TestTypeOfAndIsType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{name: "nil", err: nil, wantType: ""},
		{name: "plain error", err: errors.New("boom"), wantType: ""},
		{name: "direct", err: NewAggregationError("missing column", nil), wantType: ErrTypeAggregation},
		{name: "wrapped", err: fmt.Errorf("run: %w", NewExtractionError("bad value", nil)), wantType: ErrTypeExtraction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, TypeOf(tt.err))
			if tt.wantType != "" {
				assert.True(t, IsType(tt.err, tt.wantType))
			}
			assert.False(t, IsType(tt.err, ErrTypeConflict))
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("cause")
	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
	}{
		{"decode", NewDecodeError("m", cause), ErrTypeDecode},
		{"extraction", NewExtractionError("m", cause), ErrTypeExtraction},
		{"empty record", NewEmptyRecordError("m", cause), ErrTypeEmptyRecord},
		{"persistence", NewPersistenceError("m", cause), ErrTypePersistence},
		{"aggregation", NewAggregationError("m", cause), ErrTypeAggregation},
		{"source", NewSourceError("m", cause), ErrTypeSource},
		{"validation", NewAppValidationError("m", cause), ErrTypeValidation},
		{"config", NewConfigError("m", cause), ErrTypeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, "m", tt.err.Message)
			assert.Equal(t, cause, tt.err.Cause)
			assert.NotNil(t, tt.err.Context)
		})
	}

	nf := NewNotFoundError("run")
	assert.Equal(t, "run not found", nf.Message)
	assert.Nil(t, nf.Cause)

	conflict := NewConflictError("a run is already in progress")
	assert.Equal(t, ErrTypeConflict, conflict.Type)
}
