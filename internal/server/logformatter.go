package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// logFormatter adapts chi's request logger to zerolog, the way the teacher
// wires middleware.RequestLogger everywhere else in its HTTP stack.
type logFormatter struct {
	logger zerolog.Logger
}

func (f *logFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{
		logger: f.logger,
		method: r.Method,
		path:   r.URL.Path,
		reqID:  middleware.GetReqID(r.Context()),
	}
}

type logEntry struct {
	logger zerolog.Logger
	method string
	path   string
	reqID  string
}

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.logger.Info().
		Str("request_id", e.reqID).
		Str("method", e.method).
		Str("path", e.path).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("http request")
}

func (e *logEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error().
		Str("request_id", e.reqID).
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("http handler panicked")
}
