package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// Problem type URIs (RFC 7807 "type" member).
const (
	TypeValidation    = "/errors/validation"
	TypeNotFound      = "/errors/not-found"
	TypeConflict      = "/errors/conflict"
	TypeInternal      = "/errors/internal"
	TypeTimeout       = "/errors/timeout"
	TypeRateLimit     = "/errors/rate-limit"
	TypeAggregation   = "/errors/data/aggregation"
	TypeDataCorrupted = "/errors/data/corrupted"
	TypeSourceFailure = "/errors/source/unavailable"
)

type problemKind struct {
	status int
	uri    string
	title  string
}

var internalProblem = problemKind{http.StatusInternalServerError, TypeInternal, "Internal Server Error"}

// problemKinds maps the pipeline error taxonomy onto HTTP. Types missing
// here are internal errors.
var problemKinds = map[ErrorType]problemKind{
	ErrTypeValidation:  {http.StatusBadRequest, TypeValidation, "Validation Failed"},
	ErrTypeConfig:      {http.StatusBadRequest, TypeValidation, "Validation Failed"},
	ErrTypeNotFound:    {http.StatusNotFound, TypeNotFound, "Resource Not Found"},
	ErrTypeConflict:    {http.StatusConflict, TypeConflict, "Conflict"},
	ErrTypeAggregation: {http.StatusUnprocessableEntity, TypeAggregation, "Aggregation Failed"},
	ErrTypeSource:      {http.StatusBadGateway, TypeSourceFailure, "Source Unavailable"},
	ErrTypePersistence: {http.StatusInternalServerError, TypeDataCorrupted, "Data Error"},
	ErrTypeDecode:      {http.StatusInternalServerError, TypeDataCorrupted, "Data Error"},
	ErrTypeExtraction:  {http.StatusInternalServerError, TypeDataCorrupted, "Data Error"},
	ErrTypeEmptyRecord: {http.StatusInternalServerError, TypeDataCorrupted, "Data Error"},
}

func kindOf(t ErrorType) problemKind {
	if k, ok := problemKinds[t]; ok {
		return k
	}
	return internalProblem
}

// ProblemDetails is an RFC 7807 problem document. Extensions are written as
// top-level members next to the standard ones.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]any `json:"-"`
}

// NewProblemDetails creates a problem with an empty extension set.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: map[string]any{},
	}
}

// WithExtension sets an extension member and returns pd for chaining.
func (pd *ProblemDetails) WithExtension(key string, value any) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = map[string]any{}
	}
	pd.Extensions[key] = value
	return pd
}

// Render sets the response status for render.Render.
func (pd *ProblemDetails) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens Extensions into the document. Standard members win
// over an extension of the same name.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	type plain ProblemDetails
	base, err := json.Marshal((*plain)(pd))
	if err != nil || len(pd.Extensions) == 0 {
		return base, err
	}

	out := make(map[string]json.RawMessage, len(pd.Extensions)+5)
	for k, v := range pd.Extensions {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	var std map[string]json.RawMessage
	if err := json.Unmarshal(base, &std); err != nil {
		return nil, err
	}
	for k, v := range std {
		out[k] = v
	}
	return json.Marshal(out)
}
