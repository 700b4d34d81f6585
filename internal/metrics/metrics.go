package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_active_connections",
		Help: "Authenticated websocket connections currently open",
	})

	AuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_auth_failures_total",
		Help: "Handshakes rejected because the bearer token did not verify",
	})

	DroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_dropped_frames_total",
		Help: "Outbound frames dropped because a connection buffer was full",
	})

	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Inbound events handled, by type and outcome",
	}, []string{"event", "outcome"})

	Published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_published_total",
		Help: "Outbound events published to rooms, by event name",
	}, []string{"event"})
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Connections, AuthFailures, DroppedFrames, Events, Published)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
