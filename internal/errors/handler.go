package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorHandler renders errors as RFC 7807 problems.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates an ErrorHandler. includeStack adds goroutine stacks
// to responses and is meant for development only.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and writes it as a problem document.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	reqID := middleware.GetReqID(r.Context())

	problem := h.ErrorToProblem(err, r)
	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	problem.WithExtension("trace_id", reqID)
	if h.includeStack {
		problem.WithExtension("stack", stackTrace())
	}
	_ = render.Render(w, r, problem)
}

// ErrorToProblem converts err without writing anything. Cancellation maps to
// a timeout, APIError and AppError keep their own status, anything else is
// an opaque internal error.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request was cancelled before it completed", r.URL.Path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		uri := TypeInternal
		switch {
		case apiErr.ErrorCode == CodeValidationFailed || apiErr.ErrorCode == CodeInvalidRequest:
			uri = TypeValidation
		case apiErr.StatusCode == http.StatusNotFound:
			uri = TypeNotFound
		case apiErr.StatusCode == http.StatusConflict:
			uri = TypeConflict
		}
		problem := NewProblemDetails(apiErr.StatusCode, uri, http.StatusText(apiErr.StatusCode), apiErr.Message, r.URL.Path).
			WithExtension("error_code", apiErr.ErrorCode)
		if apiErr.Details != nil {
			problem.WithExtension("details", apiErr.Details)
		}
		return problem
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		k := kindOf(appErr.Type)
		problem := NewProblemDetails(k.status, k.uri, k.title, appErr.Message, r.URL.Path).
			WithExtension("error_type", string(appErr.Type))
		if len(appErr.Context) > 0 {
			problem.WithExtension("context", appErr.Context)
		}
		return problem
	}

	return NewProblemDetails(internalProblem.status, internalProblem.uri, internalProblem.title,
		"An unexpected error occurred while processing your request", r.URL.Path)
}

// HandlePanic writes a 500 for a recovered panic.
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered any) {
	reqID := middleware.GetReqID(r.Context())
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())))

	problem := NewProblemDetails(internalProblem.status, internalProblem.uri, internalProblem.title,
		"An unexpected error occurred", r.URL.Path).
		WithExtension("trace_id", reqID)
	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprint(recovered))
		problem.WithExtension("stack", stackTrace())
	}
	_ = render.Render(w, r, problem)
}

// NotFound is the router's 404 handler.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"The requested resource was not found", r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context())))
}

// MethodNotAllowed is the router's 405 handler.
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeValidation, "Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method), r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context())))
}

func stackTrace() string {
	buf := make([]byte, 8<<10)
	return string(buf[:runtime.Stack(buf, false)])
}
