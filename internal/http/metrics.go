package http

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// serverMetrics holds the counters served as plain text on /metrics.
type serverMetrics struct {
	requestsTotal      atomic.Int64
	requestErrorsTotal atomic.Int64
	rateLimitedTotal   atomic.Int64
	summaryCacheHits   atomic.Int64
	summaryCacheMisses atomic.Int64
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "fintrack_http_requests_total %d\n", s.metrics.requestsTotal.Load())
	fmt.Fprintf(w, "fintrack_http_request_errors_total %d\n", s.metrics.requestErrorsTotal.Load())
	fmt.Fprintf(w, "fintrack_http_rate_limited_total %d\n", s.metrics.rateLimitedTotal.Load())
	fmt.Fprintf(w, "fintrack_summary_cache_hits_total %d\n", s.metrics.summaryCacheHits.Load())
	fmt.Fprintf(w, "fintrack_summary_cache_misses_total %d\n", s.metrics.summaryCacheMisses.Load())
}
