package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts pipeline stages and HTTP requests.
type Recorder struct {
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	reqTotal      *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyweaver",
			Name:      "stage_total",
			Help:      "Pipeline and listing stage executions by outcome",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storyweaver",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each stage, collaborators included",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyweaver",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(r.stageTotal, r.stageDuration, r.reqTotal)
	return r
}

func (r *Recorder) ObserveStage(stage string, d time.Duration, outcome string) {
	r.stageTotal.WithLabelValues(stage, outcome).Inc()
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by their mux route template so ids do not explode label cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, req)

		route := "unmatched"
		if cr := mux.CurrentRoute(req); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		r.reqTotal.WithLabelValues(req.Method, route, strconv.Itoa(sw.code)).Inc()
	})
}
