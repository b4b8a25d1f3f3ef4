package errors

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxLoggedBody   = 500
	maxCapturedBody = 64 << 10
)

// redactedFields are replaced before a request body reaches the log.
var redactedFields = map[string]struct{}{
	"password":          {},
	"token":             {},
	"secret":            {},
	"api_key":           {},
	"access_key_id":     {},
	"secret_access_key": {},
	"session_token":     {},
}

// ErrorMiddleware recovers panics into problem responses and writes one log
// line per request. Failed requests also log their (redacted) body.
type ErrorMiddleware struct {
	handler *ErrorHandler
	logger  *slog.Logger
}

// NewErrorMiddleware creates the middleware around handler.
func NewErrorMiddleware(handler *ErrorHandler, logger *slog.Logger) *ErrorMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorMiddleware{handler: handler, logger: logger.With(slog.String("component", "http"))}
}

// Handler wraps next.
func (m *ErrorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		body := captureBody(r)
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				m.handler.HandlePanic(ww, r, rec)
			}
			m.logRequest(r, ww, body, time.Since(start))
		}()

		next.ServeHTTP(ww, r)
	})
}

func (m *ErrorMiddleware) logRequest(r *http.Request, ww middleware.WrapResponseWriter, body []byte, d time.Duration) {
	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", d),
		slog.Int("bytes", ww.BytesWritten()),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	}
	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", r.URL.RawQuery))
	}
	if status >= 400 && len(body) > 0 {
		logged := sanitizeRequestBody(string(body))
		if len(logged) > maxLoggedBody {
			logged = logged[:maxLoggedBody] + "..."
		}
		attrs = append(attrs, slog.String("request_body", logged))
	}
	m.logger.LogAttrs(r.Context(), level, "http request", attrs...)
}

// captureBody reads a small request body and puts it back for the handler.
// Streams and large bodies are left alone.
func captureBody(r *http.Request) []byte {
	if r.Body == nil || r.ContentLength <= 0 || r.ContentLength > maxCapturedBody {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return data
}

// sanitizeRequestBody redacts credential-like members of a JSON object.
// Anything that is not a JSON object is returned as is.
func sanitizeRequestBody(body string) string {
	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return body
	}
	for k := range data {
		if _, ok := redactedFields[strings.ToLower(k)]; ok {
			data[k] = "[REDACTED]"
		}
	}
	out, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return string(out)
}
