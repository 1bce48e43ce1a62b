// logging.go — журнал запросов консоли через slog.
// Каждая запись несёт шаблон маршрута chi, ресурс и запись из URL,
// короткий идентификатор сессии и исход проверки сессии.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// responseWriter — обёртка для перехвата статус-кода и размера ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// sessionIDLen — длина идентификатора сессии в журнале.
const sessionIDLen = 8

type traceKey struct{}

// sessionTrace заполняется проверкой сессии глубже по цепочке
// и читается журналом после ответа.
type sessionTrace struct {
	id     string
	reason string
}

// TraceSession отмечает в журнале запроса сессию и причину её отказа
// (пустая reason — сессия действительна). Вне RequestLogger ничего не делает.
func TraceSession(ctx context.Context, id, reason string) {
	t, ok := ctx.Value(traceKey{}).(*sessionTrace)
	if !ok {
		return
	}
	if len(id) > sessionIDLen {
		id = id[:sessionIDLen]
	}
	t.id = id
	t.reason = reason
}

// RequestLogger возвращает middleware журнала запросов.
// Уровень зависит от статус-кода: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
// Для редиректов пишется Location: так видны отправки на /login.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			trace := &sessionTrace{}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), traceKey{}, trace)))

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				for _, key := range []string{"kind", "id"} {
					if v := rctx.URLParam(key); v != "" {
						attrs = append(attrs, slog.String(key, v))
					}
				}
			}
			if trace.id != "" {
				attrs = append(attrs, slog.String("session", trace.id))
			}
			if trace.reason != "" {
				attrs = append(attrs, slog.String("session_reason", trace.reason))
			}
			if wrapped.statusCode >= 300 && wrapped.statusCode < 400 {
				if loc := wrapped.Header().Get("Location"); loc != "" {
					attrs = append(attrs, slog.String("location", loc))
				}
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
