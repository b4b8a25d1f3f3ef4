package middleware

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "dicommart/internal/errors"
)

// MaxBodySize caps request bodies read by RequestValidator.
const MaxBodySize = 1 << 20

// RequestValidator decodes JSON request bodies and validates them against
// their struct tags. Besides the built-in tags it knows "keyprefix": a
// relative object key prefix without ".." segments.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates a validator.
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	_ = v.RegisterValidation("keyprefix", isKeyPrefix)

	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

// Decode reads the JSON body of r into v and validates it. An empty body
// leaves v at its zero value. Failures are returned as *errors.APIError.
func (rv *RequestValidator) Decode(r *http.Request, v any) error {
	if r.Body != nil && r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)
		if err := render.DecodeJSON(r.Body, v); err != nil && !stderrors.Is(err, io.EOF) {
			return apierrors.InvalidRequestWithError(err)
		}
	}
	return rv.Struct(v)
}

// Struct validates v.
func (rv *RequestValidator) Struct(v any) error {
	err := rv.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}
	details := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatFieldError(fe),
		})
	}
	return apierrors.NewWithDetails(http.StatusBadRequest, apierrors.CodeValidationFailed, "Request validation failed", details)
}

func formatFieldError(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "keyprefix":
		return fmt.Sprintf("%s must be a relative key prefix", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func isKeyPrefix(fl validator.FieldLevel) bool {
	prefix := fl.Field().String()
	if strings.HasPrefix(prefix, "/") {
		return false
	}
	for _, seg := range strings.Split(prefix, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
