package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

const recoveredBody = `{"error":"unexpected error while handling request"}` + "\n"

// Recovery turns a panic in a handler into a 500 response with a generic
// JSON error body. http.ErrAbortHandler is re-raised.
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"))

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(recoveredBody))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
