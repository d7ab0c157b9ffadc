package pagecache

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"example.com/yatube/internal/logger"
)

var logg = logger.New()

// cachedResponse is what gets stored; the store only ever sees the encoded bytes.
type cachedResponse struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Key normalizes a request into a cache key: prefix, path and the query
// string with its parameters sorted.
func Key(prefix string, r *http.Request) string {
	key := prefix + ":" + r.URL.Path
	if q := r.URL.Query(); len(q) > 0 {
		key += "?" + q.Encode()
	}
	return key
}

// Middleware caches successful GET responses of next for ttl. A cached page
// is replayed verbatim until it expires or the store is cleared; writes
// elsewhere do not invalidate it.
func Middleware(store Store, prefix string, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(prefix, r)
			if raw, ok := store.Get(key); ok {
				var cached cachedResponse
				if err := json.Unmarshal(raw, &cached); err == nil {
					w.Header().Set("Content-Type", cached.ContentType)
					w.Header().Set("X-Cache", "HIT")
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write(cached.Body)
					return
				}
				logg.Warn("pagecache", "Dropping undecodable cache entry", nil)
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)

			if rec.status != http.StatusOK {
				return
			}
			raw, err := json.Marshal(cachedResponse{
				ContentType: w.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				logg.Error("pagecache", "Failed to encode response", err)
				return
			}
			store.Set(key, raw, ttl)
		})
	}
}

// recorder tees the response body so it can be stored after it is sent.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
