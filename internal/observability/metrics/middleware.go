package metrics

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// ResponseRecorder captures the status code written by a handler while
// passing Flusher, Hijacker, and ReaderFrom through to the wrapped writer.
type ResponseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

// Status reports the recorded status code, 200 when the handler never called
// WriteHeader.
func (rr *ResponseRecorder) Status() int {
	return rr.status
}

// WriteHeader records the first status code only; later calls are passed
// through for net/http to complain about.
func (rr *ResponseRecorder) WriteHeader(status int) {
	if !rr.wroteHeader {
		rr.status = status
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *ResponseRecorder) Flush() {
	if flusher, ok := rr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rr *ResponseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// ReadFrom keeps the sendfile fast path available; range responses copy
// large files through here.
func (rr *ResponseRecorder) ReadFrom(r io.Reader) (int64, error) {
	if readerFrom, ok := rr.ResponseWriter.(io.ReaderFrom); ok {
		return readerFrom.ReadFrom(r)
	}
	return io.Copy(rr.ResponseWriter, r)
}

// HTTPMiddleware times each request and feeds the observation to rec,
// falling back to the shared recorder when rec is nil.
func HTTPMiddleware(rec *Recorder, next http.Handler) http.Handler {
	if rec == nil {
		rec = Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewResponseRecorder(w)
		started := time.Now()
		next.ServeHTTP(recorder, r)
		rec.ObserveRequest(r.Method, r.URL.Path, recorder.Status(), time.Since(started))
	})
}
