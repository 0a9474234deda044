package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
)

const (
	maxLoggedBody = 4 << 10
	redacted      = "[FILTERED]"
	redactedText  = "[FILTERED - Contains sensitive data]"
)

// sensitiveKeys match header names and JSON keys by substring, case-insensitively.
// Provider payloads carry payer and card data, so those are masked too.
var sensitiveKeys = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"key",
	"session",
	"credential",
	"auth",
	"payer",
	"card",
	"identification",
}

// LoggingMiddleware logs each request and its response with credentials masked.
// Bodies are captured up to maxLoggedBody bytes.
func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := middleware.GetReqID(r.Context())
			if reqID == "" {
				reqID = w.Header().Get(RequestIDHeader)
			}

			reqBody := peekBody(r)
			logger.Info("incoming request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", redactHeaders(r.Header),
				"body", redactBody(reqBody),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			respBody := &limitedBuffer{max: maxLoggedBody}
			ww.Tee(respBody)

			next.ServeHTTP(ww, r)

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

			logger.Log(r.Context(), level, "response",
				"request_id", reqID,
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", ww.BytesWritten(),
				"body", redactBody(respBody.Bytes()),
			)
		})
	}
}

// peekBody reads up to maxLoggedBody bytes and puts them back in front of the
// unread remainder so handlers still see the full body.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	head, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	return head
}

type limitedBuffer struct {
	bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

func isSensitive(name string) bool {
	name = strings.ToLower(name)
	for _, key := range sensitiveKeys {
		if strings.Contains(name, key) {
			return true
		}
	}
	return false
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = redacted
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func redactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		lower := strings.ToLower(string(body))
		for _, key := range sensitiveKeys {
			if strings.Contains(lower, key) {
				return redactedText
			}
		}
		return string(body)
	}

	out, err := json.Marshal(redactValue(doc))
	if err != nil {
		return redactedText
	}
	return string(out)
}

func redactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			if isSensitive(k) {
				t[k] = redacted
				continue
			}
			t[k] = redactValue(child)
		}
		return t
	case []interface{}:
		for i, child := range t {
			t[i] = redactValue(child)
		}
		return t
	default:
		return v
	}
}
