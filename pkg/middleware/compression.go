package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"streamgate/pkg/logging"
)

// Pooled writers at BestSpeed: playlist responses are small and frequent,
// throughput beats ratio.
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	},
}

// gzipResponseWriter compresses response bodies transparently. Header
// write state is tracked so the status code lands before the first
// compressed chunk.
type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
	wroteHeader bool
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.Writer.Write(b)
}

func (w *gzipResponseWriter) Flush() {
	if gzw, ok := w.Writer.(*gzip.Writer); ok {
		gzw.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Gzip compresses text responses for clients that advertise gzip support.
// Binary media passes through untouched; segments are already compressed
// formats and recompressing them wastes CPU on both ends.
func Gzip(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}
			// promhttp compresses its own response body when the
			// scraper advertises gzip; wrapping it again would
			// double-encode the scrape.
			if r.URL.Path == "/metrics" || isMediaPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Del("Content-Length")

			gz := gzipWriterPool.Get().(*gzip.Writer)
			gz.Reset(w)
			defer func() {
				if err := gz.Close(); err != nil {
					log.Error("closing gzip writer",
						"method", r.Method,
						"path", r.URL.Path,
						"error", err)
				}
				gzipWriterPool.Put(gz)
			}()

			next.ServeHTTP(&gzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
		})
	}
}

func isMediaPath(path string) bool {
	return strings.HasSuffix(path, "/segment") || strings.HasSuffix(path, "/key") ||
		strings.HasSuffix(path, "/stream")
}
