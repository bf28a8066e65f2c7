package util

import (
	"bufio"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var httpResponses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vilero_http_responses_total",
	Help: "HTTP responses served, by method and status class.",
}, []string{"method", "class"})

// LogHandler provides middleware that logs all requests and response codes
// using logrus and counts responses by status class.
func LogHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rwi := &rwInterceptor{ResponseWriter: w}
		next.ServeHTTP(rwi, r)
		code := rwi.statusCode

		httpResponses.WithLabelValues(r.Method, statusClass(code)).Inc()
		if code >= 500 {
			log.Errorf("%s %s -> %d", r.Method, r.URL.Path, code)
		} else if code >= 400 {
			log.Warnf("%s %s -> %d", r.Method, r.URL.Path, code)
		} else {
			log.Debugf("%s %s -> %d", r.Method, r.URL.Path, code)
		}
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type rwInterceptor struct {
	http.ResponseWriter
	statusCode int
}

func (rwi *rwInterceptor) WriteHeader(code int) {
	rwi.statusCode = code
	rwi.ResponseWriter.WriteHeader(code)
}

func (rwi *rwInterceptor) Write(b []byte) (int, error) {
	if rwi.statusCode == 0 {
		rwi.statusCode = http.StatusOK
	}
	return rwi.ResponseWriter.Write(b)
}

func (rwi *rwInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return rwi.ResponseWriter.(http.Hijacker).Hijack()
}

func (rwi *rwInterceptor) Flush() {
	if fl, ok := rwi.ResponseWriter.(http.Flusher); ok {
		fl.Flush()
	}
}
