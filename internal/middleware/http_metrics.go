package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// unmeasuredRoutes are probe and scrape endpoints kept out of HTTP metrics.
var unmeasuredRoutes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// HTTPMetrics records request count, latency and response size per route.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeOf(r.URL.Path)
			if _, skip := unmeasuredRoutes[route]; skip {
				next.ServeHTTP(w, r)
				return
			}

			metrics.inFlight.Inc()
			defer metrics.inFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds(), rec.bytes)
		})
	}
}
