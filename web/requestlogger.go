package web

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

type loggingResponseWriter struct {
	http.ResponseWriter

	status  int
	written int64
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// RequestLogger writes one line per request to out, typically a lumberjack
// rotating log.
func RequestLogger(out io.Writer) func(http.Handler) http.Handler {
	handler := func(inner http.Handler) http.Handler {
		mw := func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			lw := &loggingResponseWriter{ResponseWriter: w}

			inner.ServeHTTP(lw, r)

			out.Write([]byte(fmt.Sprintf("%s %d %4dms %6db %s %s\n",
				started.Format(time.RFC3339), lw.status, time.Since(started).Milliseconds(), lw.written, r.Method, r.RequestURI)))
		}

		return http.HandlerFunc(mw)
	}

	return handler
}
