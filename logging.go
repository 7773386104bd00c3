package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log"
)

func newLogger(w io.Writer) log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(w))
	return log.With(l, "ts", log.DefaultTimestampUTC)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(handler http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rc := recover(); rc != nil {
				_ = logger.Log("level", "ERR", "msg", "server error", "url", r.URL.String(), "error", fmt.Sprint(rc))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		t0 := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(rec, r)
		_ = logger.Log("level", "INFO", "remote", r.RemoteAddr, "method", r.Method,
			"url", r.URL.String(), "status", rec.status, "time", time.Since(t0))
	})
}
