package webfetcher

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semfetch/fetcherr"
)

const metricsNamespace = "semfetch"

// metrics holds the pipeline's Prometheus collectors.
type metrics struct {
	requests      *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	bodyBytes     prometheus.Histogram
	textRunes     prometheus.Histogram
}

// newMetrics creates the collectors and registers them on reg. A nil reg
// leaves the collectors unregistered. Collectors already registered on reg
// are reused.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Pipeline calls by outcome (ok or error kind).",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of HTTP fetches by status class.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"status_class"}),
		bodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "response_body_bytes",
			Help:      "Size of accepted response bodies.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		textRunes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "extracted_text_runes",
			Help:      "Length of extracted text in characters.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.fetchDuration, err = register(reg, m.fetchDuration); err != nil {
		return nil, err
	}
	if m.bodyBytes, err = register(reg, m.bodyBytes); err != nil {
		return nil, err
	}
	if m.textRunes, err = register(reg, m.textRunes); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observeOutcome(kind fetcherr.Kind) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *metrics) observeFetch(statusCode int, elapsed time.Duration) {
	m.fetchDuration.WithLabelValues(statusClass(statusCode)).Observe(elapsed.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
