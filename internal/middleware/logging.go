package middleware

import (
	"net/http"
	"runtime/debug"

	reqctx "infinite-experiment/vitals/internal/context"
	"infinite-experiment/vitals/internal/logging"
)

// Recoverer turns a handler panic into a 500 and logs the stack, so one bad
// request never takes the process down.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.Error("Handler panicked",
				"request_id", reqctx.GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
