package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"example.com/yatube/internal/logger"
	chimw "github.com/go-chi/chi/v5/middleware"
)

var logg = logger.New()

// RequestLogger writes one structured line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logg.Info("http", fmt.Sprintf("%s %s %s status=%s bytes=%d dur=%s",
			chimw.GetReqID(r.Context()), r.Method, r.URL.Path,
			strconv.Itoa(status), ww.BytesWritten(), time.Since(start).Round(time.Microsecond)))
	})
}

// Recoverer converts a panic into onPanic, which renders the error page.
func Recoverer(onPanic func(w http.ResponseWriter, r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logg.Error("http", "Recovered from panic at "+r.URL.Path, fmt.Errorf("%v\n%s", rec, debug.Stack()))
					onPanic(w, r)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
