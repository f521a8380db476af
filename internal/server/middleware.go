package server

import (
	"net/http"
)

// SecurityHeadersMiddleware masks version headers in HTTP responses.
// It removes the default Server header, drops X-Powered-By, and sets a
// generic Server token without version info.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapper := &headerRemovalWriter{ResponseWriter: w}
		next.ServeHTTP(wrapper, r)

		if !wrapper.headerWritten {
			wrapper.writeSecurityHeaders()
		}
	})
}

// headerRemovalWriter wraps http.ResponseWriter to intercept and modify headers
type headerRemovalWriter struct {
	http.ResponseWriter
	headerWritten bool
}

// WriteHeader intercepts WriteHeader to apply security headers
func (w *headerRemovalWriter) WriteHeader(statusCode int) {
	w.writeSecurityHeaders()
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write ensures security headers are applied before writing body
func (w *headerRemovalWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.writeSecurityHeaders()
	}
	return w.ResponseWriter.Write(b)
}

// writeSecurityHeaders applies the security header changes
func (w *headerRemovalWriter) writeSecurityHeaders() {
	if w.headerWritten {
		return
	}
	w.headerWritten = true

	h := w.ResponseWriter.Header()
	h.Del("Server")
	h.Del("X-Powered-By")
	h.Set("Server", "A2AHUB")
}

// Flush implements http.Flusher for streaming responses
func (w *headerRemovalWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
